// Package analyzer partitions sampled sessions into fixed-size batches
// and drives one inference call per batch under a concurrency bound,
// merging successes and failures into exactly one result per session.
package analyzer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/inference"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// Progress is the cumulative accounting pushed after each batch
// completes. Batches finish out of submission order; the numbers only
// ever grow and never double-count.
type Progress struct {
	BatchesCompleted  int
	TotalBatches      int
	SessionsProcessed int
	TokensUsed        int
	EstimatedCost     float64
}

// ProgressFunc receives the running totals in batch completion order.
type ProgressFunc func(Progress)

// Request carries the per-job analysis parameters.
type Request struct {
	Sessions    []models.SessionRecord
	Model       string
	Temperature float64
	MaxTokens   int
	BatchSize   int
	Concurrency int
}

// Result is the outcome of one analysis run.
type Result struct {
	Results          []models.AnalysisResult
	BatchesCompleted int
	TotalBatches     int
	TokensUsed       int
	EstimatedCost    float64
}

// batchOutcome is what one batch worker reports back, success or not.
type batchOutcome struct {
	batch        models.Batch
	facts        map[string]models.SessionFacts
	failReason   string
	inputTokens  int
	outputTokens int
	skipped      bool
	fatal        error
}

// Analyzer runs batches against one inference service.
type Analyzer struct {
	service interfaces.InferenceService
	retry   *inference.RetryConfig
	logger  arbor.ILogger
}

// New creates an analyzer with the default batch retry policy.
func New(service interfaces.InferenceService, logger arbor.ILogger) *Analyzer {
	return &Analyzer{
		service: service,
		retry:   inference.NewDefaultRetryConfig(),
		logger:  logger,
	}
}

// Analyze partitions the sessions into batches and runs them with
// bounded concurrency. Every input session yields exactly one result:
// analyzed when its batch parsed cleanly, unanalyzed with the failure
// reason otherwise.
//
// Cancellation is observed before each batch starts; batches already in
// flight run to completion and their results are still merged. A fatal
// provider failure (credential or account rejection) stops new batches
// and is returned as the error, aborting the whole run.
func (a *Analyzer) Analyze(ctx context.Context, req Request, onProgress ProgressFunc) (*Result, error) {
	batches := models.PartitionSessions(req.Sessions, req.BatchSize)
	if len(batches) == 0 {
		return &Result{}, nil
	}

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	a.logger.Info().
		Int("sessions", len(req.Sessions)).
		Int("batches", len(batches)).
		Int("batch_size", req.BatchSize).
		Int("concurrency", concurrency).
		Str("model", req.Model).
		Msg("Starting batch analysis")

	sem := make(chan struct{}, concurrency)
	outcomes := make(chan batchOutcome, len(batches))
	var wg sync.WaitGroup
	var aborted atomic.Bool

	for _, batch := range batches {
		wg.Add(1)
		go func(batch models.Batch) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error().
						Int("batch", batch.Index).
						Str("panic", fmt.Sprintf("%v", r)).
						Str("stack", common.GetStackTrace()).
						Msg("Batch worker panicked")
					outcomes <- batchOutcome{
						batch:      batch,
						failReason: fmt.Sprintf("batch worker panic: %v", r),
					}
				}
			}()

			sem <- struct{}{}
			defer func() { <-sem }()

			// Cancellation checkpoint: once cancel or a fatal failure is
			// observed, batches not yet started stay unanalyzed.
			if ctx.Err() != nil || aborted.Load() {
				outcomes <- batchOutcome{
					batch:      batch,
					skipped:    true,
					failReason: "analysis stopped before batch started",
				}
				return
			}

			// In-flight calls are never aborted mid-flight; the provider
			// client's own timeout bounds them.
			outcomes <- a.processBatch(context.WithoutCancel(ctx), req, batch)
		}(batch)
	}

	resultsByID := make(map[string]models.AnalysisResult, len(req.Sessions))
	progress := Progress{TotalBatches: len(batches)}
	var fatalErr error

	for range batches {
		o := <-outcomes

		if o.fatal != nil {
			aborted.Store(true)
			if fatalErr == nil {
				fatalErr = o.fatal
			}
		}

		for _, session := range o.batch.Sessions {
			if f, ok := o.facts[session.SessionID]; ok {
				resultsByID[session.SessionID] = models.AnalyzedResult(session, f)
			} else {
				resultsByID[session.SessionID] = models.UnanalyzedResult(session, o.failReason)
			}
		}

		if !o.skipped {
			progress.BatchesCompleted++
			progress.SessionsProcessed += len(o.batch.Sessions)
			progress.TokensUsed += o.inputTokens + o.outputTokens
			progress.EstimatedCost += inference.EstimateCost(req.Model, o.inputTokens, o.outputTokens)
			if onProgress != nil {
				onProgress(progress)
			}
		}
	}
	wg.Wait()

	if fatalErr != nil {
		return nil, fatalErr
	}

	// Exactly one result per input session, in input order
	results := make([]models.AnalysisResult, 0, len(req.Sessions))
	for _, session := range req.Sessions {
		results = append(results, resultsByID[session.SessionID])
	}

	return &Result{
		Results:          results,
		BatchesCompleted: progress.BatchesCompleted,
		TotalBatches:     progress.TotalBatches,
		TokensUsed:       progress.TokensUsed,
		EstimatedCost:    progress.EstimatedCost,
	}, nil
}

// processBatch runs one batch to completion: prompt, inference call,
// strict parse, with one bounded retry for transient or parse failures.
// Tokens spent on failed attempts still count toward the totals.
func (a *Analyzer) processBatch(ctx context.Context, req Request, batch models.Batch) batchOutcome {
	outcome := batchOutcome{batch: batch}

	ids := make([]string, len(batch.Sessions))
	for i, s := range batch.Sessions {
		ids[i] = s.SessionID
	}

	compReq := interfaces.CompletionRequest{
		Model:       req.Model,
		Prompt:      BuildPrompt(batch.Sessions),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= a.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := a.retry.Backoff(attempt-1, inference.ExtractRetryDelay(lastErr))
			a.logger.Warn().
				Int("batch", batch.Index).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("Retrying batch")
			time.Sleep(backoff)
		}

		resp, err := a.service.Complete(ctx, compReq)
		if err != nil {
			if inference.IsAuthError(err) {
				outcome.fatal = err
				outcome.failReason = err.Error()
				return outcome
			}
			lastErr = err
			if inference.IsTransient(err) && attempt < a.retry.MaxRetries {
				continue
			}
			break
		}

		outcome.inputTokens += resp.InputTokens
		outcome.outputTokens += resp.OutputTokens

		facts, perr := ParseBatchResponse(resp.Text, ids)
		if perr != nil {
			lastErr = fmt.Errorf("parse response: %w", perr)
			if attempt < a.retry.MaxRetries {
				continue
			}
			break
		}

		outcome.facts = facts
		return outcome
	}

	outcome.failReason = lastErr.Error()
	a.logger.Warn().
		Int("batch", batch.Index).
		Int("sessions", len(batch.Sessions)).
		Str("reason", outcome.failReason).
		Msg("Batch failed, sessions marked unanalyzed")
	return outcome
}
