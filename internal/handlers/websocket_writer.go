package handlers

import (
	"context"
	"strings"
	"sync"

	plog "github.com/phuslu/log"
	"github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/scrutor/internal/common"
)

const (
	// Buffer size for the arbor log batch channel
	defaultWebSocketLogBuffer = 100
)

// WebSocketWriter drains arbor log batches from a channel and streams
// filtered lines to WebSocket clients. Attach the channel to the logger
// with SetChannel; correlation-scoped job logs then flow to the UI.
type WebSocketWriter struct {
	handler         *WebSocketHandler
	channel         chan []arbormodels.LogEvent
	minLevel        levels.LogLevel
	excludePatterns []string
	cancel          context.CancelFunc
	wg              sync.WaitGroup
}

// NewWebSocketWriter creates a WebSocket log writer from config. Nil
// config falls back to info level with the standard exclusions.
func NewWebSocketWriter(handler *WebSocketHandler, wsConfig *common.WebSocketConfig) *WebSocketWriter {
	minLevel := levels.InfoLevel
	var excludePatterns []string

	if wsConfig != nil {
		minLevel = parseLogLevel(wsConfig.MinLevel)
		excludePatterns = wsConfig.ExcludePatterns
	}
	if len(excludePatterns) == 0 {
		excludePatterns = []string{
			"WebSocket client connected",
			"WebSocket client disconnected",
			"HTTP request",
			"HTTP response",
			"Publishing event",
		}
	}

	return &WebSocketWriter{
		handler:         handler,
		channel:         make(chan []arbormodels.LogEvent, defaultWebSocketLogBuffer),
		minLevel:        minLevel,
		excludePatterns: excludePatterns,
	}
}

// Channel returns the channel arbor sends log batches to
func (w *WebSocketWriter) Channel() chan []arbormodels.LogEvent {
	return w.channel
}

// Start launches the drain goroutine
func (w *WebSocketWriter) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(1)
	common.SafeGoWithContext(ctx, nil, "websocketLogDrain", func() {
		w.drain(ctx)
	})
}

// Close stops the drain goroutine. Batches still buffered are dropped;
// the file and console writers remain the durable record.
func (w *WebSocketWriter) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return nil
}

// drain consumes log batches until the channel closes or Close is called
func (w *WebSocketWriter) drain(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-w.channel:
			if !ok {
				return
			}
			for _, event := range batch {
				w.forward(event)
			}
		}
	}
}

// forward filters one log event and broadcasts it
func (w *WebSocketWriter) forward(event arbormodels.LogEvent) {
	arborLevel := plogToArborLevel(event.Level)
	if arborLevel < w.minLevel {
		return
	}

	for _, pattern := range w.excludePatterns {
		if strings.Contains(event.Message, pattern) {
			return
		}
	}

	w.handler.BroadcastLog(LogEntry{
		Timestamp: event.Timestamp.Format("15:04:05"),
		Level:     mapLevel(arborLevel),
		Message:   event.Message,
	})
}

// plogToArborLevel converts phuslu/log.Level to arbor levels.LogLevel
func plogToArborLevel(level plog.Level) levels.LogLevel {
	switch level {
	case plog.ErrorLevel:
		return levels.ErrorLevel
	case plog.WarnLevel:
		return levels.WarnLevel
	case plog.InfoLevel:
		return levels.InfoLevel
	case plog.DebugLevel:
		return levels.DebugLevel
	default:
		return levels.InfoLevel
	}
}

// parseLogLevel converts string log level to arbor levels.LogLevel
func parseLogLevel(level string) levels.LogLevel {
	switch strings.ToLower(level) {
	case "error":
		return levels.ErrorLevel
	case "warn", "warning":
		return levels.WarnLevel
	case "info":
		return levels.InfoLevel
	case "debug":
		return levels.DebugLevel
	default:
		return levels.InfoLevel
	}
}

// mapLevel maps arbor log levels to UI strings
func mapLevel(level levels.LogLevel) string {
	switch level {
	case levels.ErrorLevel:
		return "error"
	case levels.WarnLevel:
		return "warn"
	case levels.InfoLevel:
		return "info"
	case levels.DebugLevel:
		return "debug"
	default:
		return "info"
	}
}
