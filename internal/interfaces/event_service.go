package interfaces

import (
	"context"
	"time"
)

// EventType names a class of bus event. Job lifecycle types mirror the
// job status transitions; log.entry carries streamed log lines.
type EventType string

const (
	EventJobQueued    EventType = "job.queued"
	EventJobStarted   EventType = "job.started"
	EventJobPhase     EventType = "job.phase"
	EventJobProgress  EventType = "job.progress"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
	EventJobCancelled EventType = "job.cancelled"
	EventLogEntry     EventType = "log.entry"
)

// Event is one bus message. Payload is type-asserted by subscribers;
// job events carry a models.JobSnapshot.
type Event struct {
	Type      EventType   `json:"type"`
	JobID     string      `json:"job_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// EventHandler receives one event. Errors are logged by the bus, not
// returned to the publisher.
type EventHandler func(ctx context.Context, event Event) error

// EventService is the in-process pub/sub bus.
type EventService interface {
	// Subscribe registers a handler for one event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish delivers asynchronously; it never blocks on handlers.
	Publish(ctx context.Context, event Event) error

	// PublishSync delivers and waits for every handler to finish.
	PublishSync(ctx context.Context, event Event) error

	// Close drops all subscriptions.
	Close() error
}
