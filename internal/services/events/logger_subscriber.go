package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// allEventTypes lists every type the bus can emit; the log subscriber
// attaches to all of them.
var allEventTypes = []interfaces.EventType{
	interfaces.EventJobQueued,
	interfaces.EventJobStarted,
	interfaces.EventJobPhase,
	interfaces.EventJobProgress,
	interfaces.EventJobCompleted,
	interfaces.EventJobFailed,
	interfaces.EventJobCancelled,
}

// NewLoggerSubscriber returns a handler that writes one debug line per
// event, with job status and phase attached when the payload carries a
// snapshot.
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		line := logger.Debug().Str("event_type", string(event.Type))
		if event.JobID != "" {
			line = line.Str("job_id", event.JobID)
		}
		if snapshot, ok := event.Payload.(models.JobSnapshot); ok {
			line = line.
				Str("status", string(snapshot.Status)).
				Str("phase", string(snapshot.Phase))
		}
		line.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents attaches a logging subscriber to every
// event type.
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)
	for _, eventType := range allEventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("subscribe logger to %s: %w", eventType, err)
		}
	}

	logger.Info().
		Int("event_type_count", len(allEventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
