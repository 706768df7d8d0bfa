package interfaces

import (
	"context"

	"github.com/ternarybob/scrutor/internal/models"
)

// StartRequest is the caller-facing payload that launches one analysis
// run: the run configuration plus the store credentials that scope it to
// a bot.
type StartRequest struct {
	Config      models.AnalysisConfig   `json:"config"`
	Credentials models.StoreCredentials `json:"credentials"`
}

// AnalysisService is the per-bot entry point for running analyses.
// Start validates synchronously and enqueues; everything after that is
// observed through the job queue accessors.
type AnalysisService interface {
	// Start validates the request, creates a queued job and returns its
	// snapshot. Contract violations are rejected here, before any work
	// begins.
	Start(ctx context.Context, req StartRequest) (*models.JobSnapshot, error)

	// GetJob returns the current snapshot of one job
	GetJob(jobID string) (*models.JobSnapshot, error)

	// ListJobs returns snapshots of all known jobs, newest first
	ListJobs() []models.JobSnapshot

	// GetProgress returns just the progress record of one job
	GetProgress(jobID string) (*models.Progress, error)

	// GetResults assembles the full report for a completed job. Returns
	// ErrResultsNotReady while the job is still queued or running.
	GetResults(jobID string) (*models.AnalysisReport, error)

	// ImportReport registers a previously exported report as a completed
	// job so GetResults can serve it again.
	ImportReport(report *models.AnalysisReport) (*models.JobSnapshot, error)

	// Cancel requests cooperative cancellation of a running job
	Cancel(jobID string) error

	// Destroy cancels everything and drops all job state. The service
	// re-initializes lazily on the next call.
	Destroy()
}
