// Package events is the in-process pub/sub bus that fans job lifecycle
// events out to the WebSocket layer and the log subscriber.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
)

// Service implements interfaces.EventService over a per-type subscriber
// list.
type Service struct {
	mu          sync.RWMutex
	subscribers map[interfaces.EventType][]interfaces.EventHandler
	logger      arbor.ILogger
}

// NewService creates an empty event bus.
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[interfaces.EventType][]interfaces.EventHandler),
		logger:      logger,
	}
}

// Subscribe registers a handler for one event type. Handlers cannot be
// removed individually; subscriptions live until Close.
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	s.subscribers[eventType] = append(s.subscribers[eventType], handler)
	count := len(s.subscribers[eventType])
	s.mu.Unlock()

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", count).
		Msg("Event handler subscribed")

	return nil
}

// Publish delivers the event to every subscriber on its own goroutine.
// Publishers never wait and never see handler errors; a misbehaving
// subscriber only shows up in the log.
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	event = stamped(event)

	for _, h := range s.handlersFor(event.Type) {
		h := h
		common.SafeGo(s.logger, "publishEvent", func() {
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
			}
		})
	}

	return nil
}

// PublishSync delivers the event and waits for every handler. The error
// reports how many handlers failed; individual failures are in the log.
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	event = stamped(event)
	handlers := s.handlersFor(event.Type)
	if len(handlers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	var failed int64
	var mu sync.Mutex

	for _, handler := range handlers {
		wg.Add(1)
		h := handler
		common.SafeGo(s.logger, "publishEventSync", func() {
			defer wg.Done()
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
				mu.Lock()
				failed++
				mu.Unlock()
			}
		})
	}

	wg.Wait()
	if failed > 0 {
		return fmt.Errorf("event handlers failed: %d errors", failed)
	}
	return nil
}

// Close drops all subscriptions. Events published afterwards go nowhere.
func (s *Service) Close() error {
	s.mu.Lock()
	s.subscribers = make(map[interfaces.EventType][]interfaces.EventHandler)
	s.mu.Unlock()

	s.logger.Info().Msg("Event service closed")
	return nil
}

func (s *Service) handlersFor(eventType interfaces.EventType) []interfaces.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribers[eventType]
}

// stamped fills the event timestamp if the publisher left it zero.
func stamped(event interfaces.Event) interfaces.Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return event
}
