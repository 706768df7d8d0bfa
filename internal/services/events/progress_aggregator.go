package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
)

// ProgressAggregator coalesces high-frequency progress events so WebSocket
// clients are not flooded on large jobs. Each job gets a rate limiter
// (one delivery per interval, burst 1); events arriving faster than that
// are parked, latest wins. Parked events go out on the periodic flush once
// the limiter has a token again, or immediately via FlushJob when the job
// reaches a terminal status.
type ProgressAggregator struct {
	mu       sync.Mutex
	interval time.Duration

	// Per-job tracking
	pending  map[string]interfaces.Event // job_id -> latest undelivered progress event
	limiters map[string]*rate.Limiter    // job_id -> delivery rate limiter

	// Callback that delivers the event to clients
	sink func(ctx context.Context, event interfaces.Event)

	logger arbor.ILogger
}

// NewProgressAggregator creates an aggregator with interval-based delivery
func NewProgressAggregator(interval time.Duration, sink func(ctx context.Context, event interfaces.Event), logger arbor.ILogger) *ProgressAggregator {
	if interval <= 0 {
		interval = time.Second
	}

	return &ProgressAggregator{
		interval: interval,
		pending:  make(map[string]interfaces.Event),
		limiters: make(map[string]*rate.Limiter),
		sink:     sink,
		logger:   logger,
	}
}

// Record accepts a progress event. If the job's limiter has a token the
// event is delivered right away, otherwise it is parked (replacing any
// older pending one).
func (a *ProgressAggregator) Record(ctx context.Context, event interfaces.Event) {
	if event.JobID == "" {
		return
	}

	a.mu.Lock()
	if !a.limiterLocked(event.JobID).Allow() {
		a.pending[event.JobID] = event
		a.mu.Unlock()
		return
	}
	delete(a.pending, event.JobID)
	a.mu.Unlock()

	go a.safeSink(ctx, event)
}

// FlushJob delivers any pending progress for a job immediately and clears
// its tracking. Called when the job goes terminal so the last progress
// reaches clients before the terminal event.
func (a *ProgressAggregator) FlushJob(ctx context.Context, jobID string) {
	a.mu.Lock()
	event, ok := a.pending[jobID]
	delete(a.pending, jobID)
	delete(a.limiters, jobID)
	a.mu.Unlock()

	if ok {
		a.safeSink(ctx, event)
	}
}

// FlushAll delivers all pending events (used on shutdown)
func (a *ProgressAggregator) FlushAll(ctx context.Context) {
	a.mu.Lock()
	events := make([]interfaces.Event, 0, len(a.pending))
	for jobID, event := range a.pending {
		events = append(events, event)
		delete(a.pending, jobID)
	}
	a.mu.Unlock()

	if len(events) > 0 {
		a.logger.Debug().
			Int("job_count", len(events)).
			Msg("Progress aggregator flushing all pending events")
		for _, event := range events {
			go a.safeSink(ctx, event)
		}
	}
}

// StartPeriodicFlush starts a background goroutine that delivers parked
// events once their job's limiter has a token again.
func (a *ProgressAggregator) StartPeriodicFlush(ctx context.Context) {
	common.SafeGo(a.logger, "progressFlush", func() {
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				a.FlushAll(context.Background())
				return
			case <-ticker.C:
				a.flushPending(ctx)
			}
		}
	})
}

// flushPending delivers pending events for jobs whose limiter allows it
func (a *ProgressAggregator) flushPending(ctx context.Context) {
	a.mu.Lock()
	events := make([]interfaces.Event, 0)

	for jobID, event := range a.pending {
		if !a.limiterLocked(jobID).Allow() {
			continue
		}
		events = append(events, event)
		delete(a.pending, jobID)
	}
	a.mu.Unlock()

	for _, event := range events {
		go a.safeSink(ctx, event)
	}
}

// Cleanup removes tracking data for a finished job
func (a *ProgressAggregator) Cleanup(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.pending, jobID)
	delete(a.limiters, jobID)
}

// limiterLocked returns the job's limiter, creating it on first use.
// Callers hold a.mu.
func (a *ProgressAggregator) limiterLocked(jobID string) *rate.Limiter {
	lim, ok := a.limiters[jobID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(a.interval), 1)
		a.limiters[jobID] = lim
	}
	return lim
}

// safeSink wraps the sink with panic recovery to prevent crashes
func (a *ProgressAggregator) safeSink(ctx context.Context, event interfaces.Event) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("job_id", event.JobID).
				Msg("PANIC in ProgressAggregator sink - recovered")
		}
	}()
	a.sink(ctx, event)
}
