// -----------------------------------------------------------------------
// Analysis Job - Unit of work owned by the job queue
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"sync"
	"time"
)

// JobStatus is the lifecycle status of an analysis job. Status is
// monotonic: once a job reaches complete, error or cancelled it never
// transitions again.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusComplete  JobStatus = "complete"
	JobStatusError     JobStatus = "error"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobPhase is the macro-stage a running job is in. Sampling strictly
// precedes analyzing; aggregation happens inside the transition to
// complete.
type JobPhase string

const (
	JobPhaseSampling  JobPhase = "sampling"
	JobPhaseAnalyzing JobPhase = "analyzing"
	JobPhaseComplete  JobPhase = "complete"
	JobPhaseError     JobPhase = "error"
)

// AnalysisConfig is the caller-supplied configuration for one analysis
// run. Validation tags back the synchronous contract check at start:
// requests that fail validation are rejected before anything is enqueued.
type AnalysisConfig struct {
	StartDate       string  `json:"start_date" validate:"required"`            // "2006-01-02"
	StartTime       string  `json:"start_time"`                                // "15:04", default "00:00"
	Timezone        string  `json:"timezone"`                                  // IANA name, default "UTC"
	TargetCount     int     `json:"target_count" validate:"required,gt=0"`     // Distinct sessions to sample
	Model           string  `json:"model" validate:"required"`                 // Inference model identifier
	APIKey          string  `json:"api_key" validate:"required"`               // Inference provider key
	Temperature     float64 `json:"temperature" validate:"gte=0,lte=2"`        //
	MaxTokens       int     `json:"max_tokens" validate:"gte=0"`               //
	BatchSize       int     `json:"batch_size" validate:"gte=0"`               // Sessions per inference call
	Concurrency     int     `json:"concurrency" validate:"gte=0"`              // Max in-flight inference calls
	MinMessages     int     `json:"min_messages" validate:"gte=0"`             // Sampler filter floor
	ContainmentType string  `json:"containment_type" validate:"omitempty,oneof=selfService dropOff agent"`
}

// ResolveStart parses the configured date, time and zone into the
// absolute instant the sampling ladder anchors on.
func (c *AnalysisConfig) ResolveStart() (time.Time, error) {
	tz := c.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	startTime := c.StartTime
	if startTime == "" {
		startTime = "00:00"
	}

	start, err := time.ParseInLocation("2006-01-02 15:04", c.StartDate+" "+startTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start date/time %q %q: %w", c.StartDate, startTime, err)
	}
	return start, nil
}

// StoreCredentials identify and authenticate a bot against the upstream
// transcript store. BotID keys the per-bot orchestrator registry.
type StoreCredentials struct {
	BotID        string `json:"bot_id" validate:"required"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret" validate:"required"`
	BaseURL      string `json:"base_url"`  // Overrides the configured store base URL
	AuthMode     string `json:"auth_mode" validate:"omitempty,oneof=token oauth2"`
}

// Progress is the caller-visible progress record of a job. All fields are
// scalars so a struct copy is always a consistent snapshot; updates
// replace the whole record under the job lock, never edit it in place.
type Progress struct {
	CurrentStep       string    `json:"current_step"`
	SessionsFound     int       `json:"sessions_found"`
	SessionsProcessed int       `json:"sessions_processed"`
	TotalSessions     int       `json:"total_sessions"`
	BatchesCompleted  int       `json:"batches_completed"`
	TotalBatches      int       `json:"total_batches"`
	TokensUsed        int       `json:"tokens_used"`
	EstimatedCost     float64   `json:"estimated_cost"`
	StartTime         time.Time `json:"start_time"`
}

// JobSnapshot is the immutable view of a job handed to status pollers.
type JobSnapshot struct {
	ID          string     `json:"id"`
	AnalysisID  string     `json:"analysis_id"`
	BotID       string     `json:"bot_id"`
	Status      JobStatus  `json:"status"`
	Phase       JobPhase   `json:"phase,omitempty"`
	Progress    Progress   `json:"progress"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AnalysisJob is the unit of work tracked by the job queue. The
// orchestrator goroutine running the job is the only writer once the job
// starts; everyone else reads through Snapshot. All mutation goes through
// the lifecycle methods, which hold the job lock and enforce monotonic
// status.
type AnalysisJob struct {
	mu sync.RWMutex

	ID          string
	AnalysisID  string
	Config      AnalysisConfig
	Credentials StoreCredentials
	Status      JobStatus
	Phase       JobPhase
	Progress    Progress
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	results []AnalysisResult
	summary *AnalysisSummary
}

// NewAnalysisJob creates a queued job with the given identity, config and
// credentials.
func NewAnalysisJob(jobID, analysisID string, config AnalysisConfig, credentials StoreCredentials) *AnalysisJob {
	return &AnalysisJob{
		ID:          jobID,
		AnalysisID:  analysisID,
		Config:      config,
		Credentials: credentials,
		Status:      JobStatusQueued,
		CreatedAt:   time.Now(),
	}
}

// ImportedJob reconstructs a completed job from a previously exported
// report so its results are servable again. The job gets a fresh ID; the
// analysis identity and timestamps come from the report.
func ImportedJob(jobID string, report *AnalysisReport) *AnalysisJob {
	summary := report.Summary
	results := make([]AnalysisResult, len(report.Results))
	copy(results, report.Results)

	generatedAt := report.GeneratedAt

	return &AnalysisJob{
		ID:          jobID,
		AnalysisID:  report.AnalysisID,
		Config:      report.Config,
		Credentials: StoreCredentials{BotID: report.BotID},
		Status:      JobStatusComplete,
		Phase:       JobPhaseComplete,
		Progress: Progress{
			CurrentStep:       "Imported",
			SessionsFound:     summary.TotalSessions,
			SessionsProcessed: summary.TotalSessions,
			TotalSessions:     summary.TotalSessions,
			TokensUsed:        summary.TokensUsed,
			EstimatedCost:     summary.EstimatedCost,
			StartTime:         generatedAt,
		},
		CreatedAt:   time.Now(),
		StartedAt:   &generatedAt,
		CompletedAt: &generatedAt,
		results:     results,
		summary:     &summary,
	}
}

// terminalLocked reports whether the job status is terminal. Callers must
// hold the lock.
func (j *AnalysisJob) terminalLocked() bool {
	return j.Status == JobStatusComplete ||
		j.Status == JobStatusError ||
		j.Status == JobStatusCancelled
}

// IsTerminal returns true if the job is in a terminal state
func (j *AnalysisJob) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.terminalLocked()
}

// MarkRunning transitions the job to running and stamps the start time.
// Returns false when the job already reached a terminal state (a cancel
// that raced ahead of the orchestrator, or a destroyed queue).
func (j *AnalysisJob) MarkRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.terminalLocked() {
		return false
	}

	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Progress.StartTime = now
	return true
}

// SetPhase records the macro-stage and a human-readable step description.
// Ignored once the job is terminal.
func (j *AnalysisJob) SetPhase(phase JobPhase, step string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.terminalLocked() {
		return
	}

	j.Phase = phase
	if step != "" {
		progress := j.Progress
		progress.CurrentStep = step
		j.Progress = progress
	}
}

// UpdateProgress applies fn to a copy of the progress record and swaps the
// whole record back in under the lock, so readers never observe a
// half-written update. Ignored once the job is terminal.
func (j *AnalysisJob) UpdateProgress(fn func(*Progress)) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.terminalLocked() {
		return
	}

	progress := j.Progress
	fn(&progress)
	j.Progress = progress
}

// MarkComplete stores the final results and summary and seals the job.
func (j *AnalysisJob) MarkComplete(results []AnalysisResult, summary *AnalysisSummary) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.terminalLocked() {
		return
	}

	now := time.Now()
	j.Status = JobStatusComplete
	j.Phase = JobPhaseComplete
	j.CompletedAt = &now
	j.results = results
	j.summary = summary
}

// MarkError seals the job with an error message surfaced verbatim to
// callers via the snapshot and progress record.
func (j *AnalysisJob) MarkError(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.terminalLocked() {
		return
	}

	now := time.Now()
	j.Status = JobStatusError
	j.Phase = JobPhaseError
	j.Error = msg
	j.CompletedAt = &now

	progress := j.Progress
	progress.CurrentStep = "Error: " + msg
	j.Progress = progress
}

// MarkCancelled seals the job as cancelled. The phase keeps its last
// value so callers can see how far the job got.
func (j *AnalysisJob) MarkCancelled() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancelLocked(nil, nil)
}

// MarkCancelledWithResults seals the job as cancelled, attaching the
// partial report assembled from batches that finished before the cancel
// checkpoint.
func (j *AnalysisJob) MarkCancelledWithResults(results []AnalysisResult, summary *AnalysisSummary) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancelLocked(results, summary)
}

func (j *AnalysisJob) cancelLocked(results []AnalysisResult, summary *AnalysisSummary) {
	if j.terminalLocked() {
		return
	}

	now := time.Now()
	j.Status = JobStatusCancelled
	j.CompletedAt = &now
	j.results = results
	j.summary = summary

	progress := j.Progress
	progress.CurrentStep = "Cancelled"
	j.Progress = progress
}

// Snapshot returns a consistent copy of the job's caller-visible state.
func (j *AnalysisJob) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return JobSnapshot{
		ID:          j.ID,
		AnalysisID:  j.AnalysisID,
		BotID:       j.Credentials.BotID,
		Status:      j.Status,
		Phase:       j.Phase,
		Progress:    j.Progress,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

// ProgressSnapshot returns a copy of just the progress record.
func (j *AnalysisJob) ProgressSnapshot() Progress {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Progress
}

// Results returns the final results and summary once the job has a
// report: either completed normally or cancelled after partial work. The
// bool is false while no report exists.
func (j *AnalysisJob) Results() ([]AnalysisResult, *AnalysisSummary, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.summary == nil {
		return nil, nil, false
	}

	results := make([]AnalysisResult, len(j.results))
	copy(results, j.results)
	summary := *j.summary
	return results, &summary, true
}
