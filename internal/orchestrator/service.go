package orchestrator

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/inference"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/jobqueue"
	"github.com/ternarybob/scrutor/internal/models"
)

// Service is the caller-facing analysis service: it validates start
// requests synchronously, hands accepted jobs to the queue, and serves
// lookups. It implements interfaces.AnalysisService.
type Service struct {
	config   *common.Config
	queue    *jobqueue.Queue
	registry *Registry
	events   interfaces.EventService
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewService wires the analysis service over the queue and registry.
func NewService(config *common.Config, queue *jobqueue.Queue, registry *Registry, events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		config:   config,
		queue:    queue,
		registry: registry,
		events:   events,
		validate: validator.New(),
		logger:   logger,
	}
}

// Start validates the request and enqueues a new job. Contract
// violations (bad target count, missing model or credentials, an
// unparseable start instant) are rejected here and never enqueued.
func (s *Service) Start(ctx context.Context, req interfaces.StartRequest) (*models.JobSnapshot, error) {
	config := s.applyDefaults(req.Config)

	if err := s.validate.Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid analysis config: %w", err)
	}
	if err := s.validate.Struct(&req.Credentials); err != nil {
		return nil, fmt.Errorf("invalid store credentials: %w", err)
	}
	if _, err := config.ResolveStart(); err != nil {
		return nil, fmt.Errorf("invalid analysis config: %w", err)
	}
	if _, err := inference.DetectProvider(config.Model); err != nil {
		return nil, fmt.Errorf("invalid analysis config: %w", err)
	}

	job := models.NewAnalysisJob(common.NewJobID(), common.NewAnalysisID(), config, req.Credentials)
	orch := s.registry.GetOrCreate(req.Credentials)

	if err := s.queue.Enqueue(job, orch.RunJob); err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventJobQueued,
			JobID:   job.ID,
			Payload: job.Snapshot(),
		})
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("bot_id", req.Credentials.BotID).
		Str("model", config.Model).
		Int("target_count", config.TargetCount).
		Msg("Analysis job accepted")

	snapshot := job.Snapshot()
	return &snapshot, nil
}

// GetJob returns the current snapshot of one job.
func (s *Service) GetJob(jobID string) (*models.JobSnapshot, error) {
	return s.queue.GetJob(jobID)
}

// ListJobs returns snapshots of all known jobs, newest first.
func (s *Service) ListJobs() []models.JobSnapshot {
	return s.queue.ListJobs()
}

// GetProgress returns just the progress record of one job.
func (s *Service) GetProgress(jobID string) (*models.Progress, error) {
	job, err := s.queue.Job(jobID)
	if err != nil {
		return nil, err
	}
	progress := job.ProgressSnapshot()
	return &progress, nil
}

// GetResults assembles the report for a job that has one. Jobs still
// queued or running, and terminal jobs that never produced results,
// return ErrResultsNotReady.
func (s *Service) GetResults(jobID string) (*models.AnalysisReport, error) {
	job, err := s.queue.Job(jobID)
	if err != nil {
		return nil, err
	}

	results, summary, ok := job.Results()
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, interfaces.ErrResultsNotReady)
	}

	return &models.AnalysisReport{
		SchemaVersion: models.ReportSchemaVersion,
		AnalysisID:    job.AnalysisID,
		JobID:         job.ID,
		BotID:         job.Credentials.BotID,
		GeneratedAt:   summary.GeneratedAt,
		Config:        job.Config.Redacted(),
		Summary:       *summary,
		Results:       results,
	}, nil
}

// ImportReport registers a previously exported report as a completed job.
// The job gets a fresh ID so re-importing the same report never collides.
func (s *Service) ImportReport(report *models.AnalysisReport) (*models.JobSnapshot, error) {
	job := models.ImportedJob(common.NewJobID(), report)
	if err := s.queue.Adopt(job); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("analysis_id", job.AnalysisID).
		Str("bot_id", job.Credentials.BotID).
		Msg("Report imported")

	snapshot := job.Snapshot()
	return &snapshot, nil
}

// Cancel requests cooperative cancellation of one job.
func (s *Service) Cancel(jobID string) error {
	return s.queue.Cancel(jobID)
}

// Destroy tears down the queue and the orchestrator registry. Both
// re-initialize lazily on the next Start.
func (s *Service) Destroy() {
	s.queue.Destroy()
	s.registry.Reset()
}

// applyDefaults fills unset knobs from the configured analysis defaults.
func (s *Service) applyDefaults(config models.AnalysisConfig) models.AnalysisConfig {
	defaults := s.config.Analysis

	if config.Model == "" {
		config.Model = defaults.DefaultModel
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.Temperature <= 0 {
		config.Temperature = defaults.Temperature
	}
	if config.MinMessages <= 0 {
		config.MinMessages = s.config.Sampler.MinMessages
	}
	if config.Timezone == "" {
		config.Timezone = "UTC"
	}
	if config.StartTime == "" {
		config.StartTime = "00:00"
	}
	return config
}
