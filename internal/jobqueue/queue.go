// Package jobqueue holds the process-wide registry of analysis jobs:
// enqueue schedules the orchestration goroutine, lookups serve snapshots,
// cancel flips the job's cooperative cancellation flag, destroy tears the
// registry down. No job state survives the process.
package jobqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// RunFunc is the orchestration body executed for one job. It must seal
// the job with a terminal status before returning; the queue backstops
// it if it does not.
type RunFunc func(ctx context.Context, job *models.AnalysisJob)

// jobEntry pairs a job with its cancellation handle.
type jobEntry struct {
	job    *models.AnalysisJob
	cancel context.CancelFunc
	done   chan struct{}
}

// Queue is the in-memory job registry. The map is created lazily on
// first enqueue and released by Destroy; a later enqueue re-creates it.
type Queue struct {
	mu     sync.RWMutex
	jobs   map[string]*jobEntry
	order  []string
	logger arbor.ILogger
}

// New creates an empty queue. The registry itself is initialized on
// first use.
func New(logger arbor.ILogger) *Queue {
	return &Queue{logger: logger}
}

// Enqueue registers the job and schedules run on its own goroutine.
// The call never blocks on the job's work. A panic or an early return
// inside run converts the job to error instead of leaving it running.
func (q *Queue) Enqueue(job *models.AnalysisJob, run RunFunc) error {
	ctx, cancel := context.WithCancel(context.Background())
	entry := &jobEntry{job: job, cancel: cancel, done: make(chan struct{})}

	q.mu.Lock()
	if q.jobs == nil {
		q.jobs = make(map[string]*jobEntry)
	}
	if _, exists := q.jobs[job.ID]; exists {
		q.mu.Unlock()
		cancel()
		return fmt.Errorf("job %s already enqueued", job.ID)
	}
	q.jobs[job.ID] = entry
	q.order = append(q.order, job.ID)
	q.mu.Unlock()

	q.logger.Info().
		Str("job_id", job.ID).
		Str("bot_id", job.Credentials.BotID).
		Msg("Job enqueued")

	go func() {
		defer close(entry.done)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				q.logger.Error().
					Str("job_id", job.ID).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", common.GetStackTrace()).
					Msg("Job goroutine panicked")
				job.MarkError(fmt.Sprintf("internal error: %v", r))
			}
		}()

		run(ctx, job)

		if !job.IsTerminal() {
			job.MarkError("job finished without a terminal status")
		}
	}()

	return nil
}

// Adopt registers a job that is already terminal without starting a
// goroutine for it. Used for imported reports, which arrive complete.
func (q *Queue) Adopt(job *models.AnalysisJob) error {
	if !job.IsTerminal() {
		return fmt.Errorf("job %s is not terminal", job.ID)
	}

	done := make(chan struct{})
	close(done)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.jobs == nil {
		q.jobs = make(map[string]*jobEntry)
	}
	if _, exists := q.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already enqueued", job.ID)
	}
	q.jobs[job.ID] = &jobEntry{job: job, cancel: func() {}, done: done}
	q.order = append(q.order, job.ID)

	q.logger.Info().
		Str("job_id", job.ID).
		Str("bot_id", job.Credentials.BotID).
		Msg("Imported job adopted")

	return nil
}

// GetJob returns the current snapshot of one job.
func (q *Queue) GetJob(jobID string) (*models.JobSnapshot, error) {
	entry, err := q.entry(jobID)
	if err != nil {
		return nil, err
	}
	snapshot := entry.job.Snapshot()
	return &snapshot, nil
}

// Job returns the job entity itself, for the service layer's report
// assembly. Callers read it only through its lock-guarded methods.
func (q *Queue) Job(jobID string) (*models.AnalysisJob, error) {
	entry, err := q.entry(jobID)
	if err != nil {
		return nil, err
	}
	return entry.job, nil
}

// ListJobs returns snapshots of every known job, newest first.
func (q *Queue) ListJobs() []models.JobSnapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()

	snapshots := make([]models.JobSnapshot, 0, len(q.order))
	for i := len(q.order) - 1; i >= 0; i-- {
		if entry, ok := q.jobs[q.order[i]]; ok {
			snapshots = append(snapshots, entry.job.Snapshot())
		}
	}
	return snapshots
}

// Cancel requests cooperative cancellation. The orchestrator observes
// the flag at its checkpoints; in-flight calls are never aborted. Cancel
// on an already-terminal job is an acknowledged no-op.
func (q *Queue) Cancel(jobID string) error {
	entry, err := q.entry(jobID)
	if err != nil {
		return err
	}

	entry.cancel()
	q.logger.Info().Str("job_id", jobID).Msg("Job cancellation requested")
	return nil
}

// Count returns the number of registered jobs.
func (q *Queue) Count() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.jobs)
}

// Destroy cancels every job and releases the registry. Lookups for old
// job IDs fail afterwards; running goroutines observe their cancelled
// contexts at the next checkpoint. The next Enqueue re-initializes the
// registry.
func (q *Queue) Destroy() {
	q.mu.Lock()
	entries := make([]*jobEntry, 0, len(q.jobs))
	for _, entry := range q.jobs {
		entries = append(entries, entry)
	}
	q.jobs = nil
	q.order = nil
	q.mu.Unlock()

	for _, entry := range entries {
		entry.cancel()
	}

	q.logger.Info().Int("jobs", len(entries)).Msg("Job queue destroyed")
}

// WaitForJob blocks until the job's goroutine has finished, for tests
// and orderly shutdown.
func (q *Queue) WaitForJob(jobID string) error {
	entry, err := q.entry(jobID)
	if err != nil {
		return err
	}
	<-entry.done
	return nil
}

func (q *Queue) entry(jobID string) (*jobEntry, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	entry, ok := q.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, interfaces.ErrJobNotFound)
	}
	return entry, nil
}
