package interfaces

import "errors"

// Sentinel errors shared across service boundaries. Handlers map these
// to HTTP status codes; services return them wrapped with context.
var (
	// ErrJobNotFound means the job ID is unknown to the queue
	ErrJobNotFound = errors.New("job not found")

	// ErrResultsNotReady means the job exists but has not completed
	ErrResultsNotReady = errors.New("results not ready")

	// ErrQueueDestroyed means the queue was torn down while the call was
	// in flight
	ErrQueueDestroyed = errors.New("queue destroyed")

	// ErrScheduleNotFound means the schedule name is not configured
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrNoSessions means sampling exhausted every window without finding
	// a single candidate session
	ErrNoSessions = errors.New("no sessions found in any sampling window")

	// ErrInvalidCredentials means the upstream store rejected the bot
	// credentials
	ErrInvalidCredentials = errors.New("invalid store credentials")
)
