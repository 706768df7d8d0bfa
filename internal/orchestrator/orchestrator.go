// Package orchestrator coordinates one analysis job end to end: sampling,
// batch analysis, aggregation. One orchestrator exists per bot identity;
// jobs for the same bot share it and its current credential set.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/analyzer"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
	"github.com/ternarybob/scrutor/internal/sampler"
)

// SourceFactory builds the session source for one job's credentials.
type SourceFactory func(creds models.StoreCredentials) (interfaces.SessionSource, error)

// InferenceFactory builds the inference service for one job's config.
type InferenceFactory func(ctx context.Context, config models.AnalysisConfig) (interfaces.InferenceService, error)

// Orchestrator runs analysis jobs for a single bot identity.
type Orchestrator struct {
	botID string

	mu          sync.RWMutex
	credentials models.StoreCredentials

	windowHours  []int
	newSource    SourceFactory
	newInference InferenceFactory
	events       interfaces.EventService
	logger       arbor.ILogger
}

func newOrchestrator(creds models.StoreCredentials, windowHours []int, newSource SourceFactory, newInference InferenceFactory, events interfaces.EventService, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		botID:        creds.BotID,
		credentials:  creds,
		windowHours:  windowHours,
		newSource:    newSource,
		newInference: newInference,
		events:       events,
		logger:       logger,
	}
}

// UpdateCredentials replaces the stored credential set. Jobs already
// running keep the snapshot they took at start; only future jobs see the
// new credentials.
func (o *Orchestrator) UpdateCredentials(creds models.StoreCredentials) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.credentials = creds
}

// credentialSnapshot returns the credentials a job starting now should
// use.
func (o *Orchestrator) credentialSnapshot() models.StoreCredentials {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.credentials
}

// RunJob drives one job through sampling, analysis and aggregation. It
// always seals the job with a terminal status before returning.
// Cancellation is observed at stage boundaries and batch checkpoints;
// once any batch work has finished, cancellation still yields a partial
// report instead of discarding it.
func (o *Orchestrator) RunJob(ctx context.Context, job *models.AnalysisJob) {
	logger := o.logger.WithCorrelationId(job.ID)

	if ctx.Err() != nil {
		job.MarkCancelled()
		o.publish(interfaces.EventJobCancelled, job)
		return
	}

	if !job.MarkRunning() {
		logger.Warn().Str("job_id", job.ID).Msg("Job reached a terminal state before starting")
		return
	}
	o.publish(interfaces.EventJobStarted, job)

	logger.Info().
		Str("job_id", job.ID).
		Str("bot_id", o.botID).
		Str("model", job.Config.Model).
		Int("target_count", job.Config.TargetCount).
		Msg("Job started")

	creds := o.credentialSnapshot()
	source, err := o.newSource(creds)
	if err != nil {
		o.fail(job, logger, fmt.Sprintf("failed to connect to transcript store: %v", err))
		return
	}
	defer source.Close()

	// Phase 1: sampling
	samplingResult, err := o.runSampling(ctx, job, source, logger)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			job.MarkCancelled()
			o.publish(interfaces.EventJobCancelled, job)
			logger.Info().Str("job_id", job.ID).Msg("Job cancelled during sampling")
			return
		}
		o.fail(job, logger, err.Error())
		return
	}

	sessions := samplingResult.Sessions
	if len(sessions) == 0 {
		o.fail(job, logger, interfaces.ErrNoSessions.Error())
		return
	}

	job.UpdateProgress(func(p *models.Progress) {
		p.SessionsFound = len(sessions)
		p.TotalSessions = len(sessions)
		p.CurrentStep = fmt.Sprintf("Sampled %d sessions across %d windows", len(sessions), samplingResult.WindowsSearched)
	})
	o.publish(interfaces.EventJobProgress, job)

	// Phase 2: analysis. A cancelled context short-circuits every batch,
	// so the run still produces one (unanalyzed) result per session.
	analysisResult, err := o.runAnalysis(ctx, job, sessions, logger)
	if err != nil {
		o.fail(job, logger, err.Error())
		return
	}

	// Phase 3: aggregation
	summary := BuildSummary(analysisResult.Results, samplingResult, job.Config.Model, analysisResult.TokensUsed, analysisResult.EstimatedCost)

	if ctx.Err() != nil {
		job.MarkCancelledWithResults(analysisResult.Results, summary)
		o.publish(interfaces.EventJobCancelled, job)
		logger.Info().
			Str("job_id", job.ID).
			Int("analyzed", summary.AnalyzedSessions).
			Int("unanalyzed", summary.UnanalyzedSessions).
			Msg("Job cancelled, partial report retained")
		return
	}

	job.UpdateProgress(func(p *models.Progress) {
		p.CurrentStep = "Complete"
	})
	job.MarkComplete(analysisResult.Results, summary)
	o.publish(interfaces.EventJobCompleted, job)

	logger.Info().
		Str("job_id", job.ID).
		Int("sessions", summary.TotalSessions).
		Int("analyzed", summary.AnalyzedSessions).
		Int("unanalyzed", summary.UnanalyzedSessions).
		Float64("containment_rate", summary.ContainmentRate).
		Int("tokens_used", summary.TokensUsed).
		Msg("Job complete")
}

// runSampling executes the sampling phase and reports progress into the
// job record.
func (o *Orchestrator) runSampling(ctx context.Context, job *models.AnalysisJob, source interfaces.SessionSource, logger arbor.ILogger) (*sampler.Result, error) {
	job.SetPhase(models.JobPhaseSampling, "Searching session windows")
	o.publish(interfaces.EventJobPhase, job)

	start, err := job.Config.ResolveStart()
	if err != nil {
		return nil, err
	}

	req := sampler.Request{
		Start:           start,
		TargetCount:     job.Config.TargetCount,
		MinMessages:     job.Config.MinMessages,
		ContainmentType: job.Config.ContainmentType,
	}

	s := sampler.New(source, o.windowHours, logger)
	return s.Sample(ctx, req, func(found int, windowLabel string) {
		job.UpdateProgress(func(p *models.Progress) {
			p.SessionsFound = found
			p.CurrentStep = fmt.Sprintf("Searched window %s, %d sessions found", windowLabel, found)
		})
		o.publish(interfaces.EventJobProgress, job)
	})
}

// runAnalysis executes the batch analysis phase.
func (o *Orchestrator) runAnalysis(ctx context.Context, job *models.AnalysisJob, sessions []models.SessionRecord, logger arbor.ILogger) (*analyzer.Result, error) {
	job.SetPhase(models.JobPhaseAnalyzing, fmt.Sprintf("Analyzing %d sessions", len(sessions)))
	o.publish(interfaces.EventJobPhase, job)

	service, err := o.newInference(ctx, job.Config)
	if err != nil {
		return nil, err
	}
	defer service.Close()

	req := analyzer.Request{
		Sessions:    sessions,
		Model:       job.Config.Model,
		Temperature: job.Config.Temperature,
		MaxTokens:   job.Config.MaxTokens,
		BatchSize:   job.Config.BatchSize,
		Concurrency: job.Config.Concurrency,
	}

	a := analyzer.New(service, logger)
	return a.Analyze(ctx, req, func(p analyzer.Progress) {
		job.UpdateProgress(func(pr *models.Progress) {
			pr.BatchesCompleted = p.BatchesCompleted
			pr.TotalBatches = p.TotalBatches
			pr.SessionsProcessed = p.SessionsProcessed
			pr.TokensUsed = p.TokensUsed
			pr.EstimatedCost = p.EstimatedCost
			pr.CurrentStep = fmt.Sprintf("Analyzed batch %d of %d", p.BatchesCompleted, p.TotalBatches)
		})
		o.publish(interfaces.EventJobProgress, job)
	})
}

// fail seals the job with the error message surfaced verbatim.
func (o *Orchestrator) fail(job *models.AnalysisJob, logger arbor.ILogger, msg string) {
	job.MarkError(msg)
	o.publish(interfaces.EventJobFailed, job)
	logger.Error().Str("job_id", job.ID).Str("error", msg).Msg("Job failed")
}

// publish sends a job lifecycle event, carrying the current snapshot.
func (o *Orchestrator) publish(eventType interfaces.EventType, job *models.AnalysisJob) {
	if o.events == nil {
		return
	}
	snapshot := job.Snapshot()
	o.events.Publish(context.Background(), interfaces.Event{
		Type:    eventType,
		JobID:   job.ID,
		Payload: snapshot,
	})
}
