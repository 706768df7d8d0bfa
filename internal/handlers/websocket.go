package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/services/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for everything sent over the socket
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// LogEntry is the wire shape of one streamed log line
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// HelloPayload is sent once per connection. Clients compare the server
// instance ID against their cached one to detect restarts.
type HelloPayload struct {
	ServerInstanceID string `json:"server_instance_id"`
	Version          string `json:"version"`
}

// WebSocketHandler broadcasts job lifecycle events and streamed logs to
// connected UI clients. Progress events are coalesced per job so a large
// analysis cannot flood the socket.
type WebSocketHandler struct {
	logger             arbor.ILogger
	clients            map[*websocket.Conn]bool
	clientMutex        map[*websocket.Conn]*sync.Mutex
	mu                 sync.RWMutex
	eventService       interfaces.EventService
	allowedEvents      map[string]bool // Whitelist of events to broadcast (empty = allow all)
	progressAggregator *events.ProgressAggregator
	serverInstanceID   string // Unique ID generated on startup - clients use to detect server restart
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized with server instance ID")

	// Empty whitelist means allow all events
	h.allowedEvents = make(map[string]bool)
	if config != nil && len(config.AllowedEvents) > 0 {
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
		logger.Debug().
			Int("allowed_events", len(h.allowedEvents)).
			Msg("Initialized event whitelist for WebSocketHandler")
	}

	// Progress events share one aggregator; the delivery interval comes
	// from config, default one update per second per job.
	interval := time.Second
	if config != nil {
		if intervalStr, ok := config.ThrottleIntervals[string(interfaces.EventJobProgress)]; ok {
			if parsed, err := time.ParseDuration(intervalStr); err == nil {
				interval = parsed
			} else {
				logger.Warn().
					Err(err).
					Str("interval", intervalStr).
					Msg("Failed to parse job.progress throttle interval - using default")
			}
		}
	}
	h.progressAggregator = events.NewProgressAggregator(interval, h.broadcastEvent, logger)
	h.progressAggregator.StartPeriodicFlush(context.Background())

	logger.Debug().
		Dur("interval", interval).
		Msg("Progress aggregator initialized for WebSocket broadcasts")

	if eventService != nil {
		h.SubscribeToJobEvents()
	}

	return h
}

// SubscribeToJobEvents wires the handler into the event bus. Lifecycle
// events broadcast immediately; progress events pass through the
// aggregator; terminal events flush any parked progress first so the last
// update reaches clients before the terminal message.
func (h *WebSocketHandler) SubscribeToJobEvents() {
	if h.eventService == nil {
		return
	}

	for _, eventType := range []interfaces.EventType{
		interfaces.EventJobQueued,
		interfaces.EventJobStarted,
		interfaces.EventJobPhase,
	} {
		h.eventService.Subscribe(eventType, func(ctx context.Context, event interfaces.Event) error {
			if !h.eventAllowed(event.Type) {
				return nil
			}
			h.broadcastEvent(ctx, event)
			return nil
		})
	}

	h.eventService.Subscribe(interfaces.EventJobProgress, func(ctx context.Context, event interfaces.Event) error {
		if !h.eventAllowed(event.Type) {
			return nil
		}
		h.progressAggregator.Record(ctx, event)
		return nil
	})

	for _, eventType := range []interfaces.EventType{
		interfaces.EventJobCompleted,
		interfaces.EventJobFailed,
		interfaces.EventJobCancelled,
	} {
		h.eventService.Subscribe(eventType, func(ctx context.Context, event interfaces.Event) error {
			h.progressAggregator.FlushJob(ctx, event.JobID)
			if !h.eventAllowed(event.Type) {
				return nil
			}
			h.broadcastEvent(ctx, event)
			return nil
		})
	}
}

// eventAllowed checks the whitelist (empty = allow all)
func (h *WebSocketHandler) eventAllowed(eventType interfaces.EventType) bool {
	if len(h.allowedEvents) == 0 {
		return true
	}
	return h.allowedEvents[string(eventType)]
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendHello(conn)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// sendHello sends the connection greeting to a single client
func (h *WebSocketHandler) sendHello(conn *websocket.Conn) {
	msg := WSMessage{
		Type: "hello",
		Payload: HelloPayload{
			ServerInstanceID: h.serverInstanceID,
			Version:          common.GetVersion(),
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal hello message")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()

	if mutex != nil {
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send hello")
		}
	}
}

// broadcastEvent fans a job lifecycle event out to every client. Also the
// delivery sink of the progress aggregator.
func (h *WebSocketHandler) broadcastEvent(ctx context.Context, event interfaces.Event) {
	msg := WSMessage{
		Type:    string(event.Type),
		Payload: event.Payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to marshal event message")
		return
	}

	h.fanOut(data, string(event.Type))
}

// BroadcastLog streams one log line to every client. Called by the
// WebSocket log writer, so it must never log through the same logger at a
// level the writer forwards.
func (h *WebSocketHandler) BroadcastLog(entry LogEntry) {
	msg := WSMessage{
		Type:    "log",
		Payload: entry,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.fanOut(data, "log")
}

// fanOut writes raw bytes to all connected clients. Each connection has
// its own write mutex because gorilla/websocket allows only one
// concurrent writer per connection.
func (h *WebSocketHandler) fanOut(data []byte, what string) {
	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil && what != "log" {
			h.logger.Warn().Err(err).Str("message_type", what).Msg("Failed to send message to client")
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
