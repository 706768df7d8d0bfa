package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/services/export"
)

// AnalysisHandler handles HTTP requests for analysis jobs
type AnalysisHandler struct {
	analysisService interfaces.AnalysisService
	exportService   *export.Service
	logger          arbor.ILogger
}

// NewAnalysisHandler creates a new AnalysisHandler
func NewAnalysisHandler(analysisService interfaces.AnalysisService, exportService *export.Service, logger arbor.ILogger) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
		exportService:   exportService,
		logger:          logger,
	}
}

// StartAnalysisHandler starts a new analysis job
// POST /api/analyses
func (h *AnalysisHandler) StartAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	var req interfaces.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	snapshot, err := h.analysisService.Start(r.Context(), req)
	if err != nil {
		h.logger.Warn().Err(err).Str("bot_id", req.Credentials.BotID).Msg("Analysis start rejected")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, snapshot)
}

// ListAnalysesHandler returns all known job snapshots, newest first
// GET /api/analyses
func (h *AnalysisHandler) ListAnalysesHandler(w http.ResponseWriter, r *http.Request) {
	jobs := h.analysisService.ListJobs()

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := jobs[:0]
		for _, job := range jobs {
			if string(job.Status) == status {
				filtered = append(filtered, job)
			}
		}
		jobs = filtered
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetAnalysisHandler returns a single job snapshot
// GET /api/analyses/{id}
func (h *AnalysisHandler) GetAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobIDFromPath(w, r)
	if !ok {
		return
	}

	snapshot, err := h.analysisService.GetJob(jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Job %s not found", jobID))
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	WriteJSON(w, http.StatusOK, snapshot)
}

// GetProgressHandler returns just the progress record of a job
// GET /api/analyses/{id}/progress
func (h *AnalysisHandler) GetProgressHandler(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobIDFromPath(w, r)
	if !ok {
		return
	}

	progress, err := h.analysisService.GetProgress(jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Job %s not found", jobID))
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get progress")
		WriteError(w, http.StatusInternalServerError, "Failed to get progress")
		return
	}

	WriteJSON(w, http.StatusOK, progress)
}

// GetResultsHandler returns the full report for a completed job.
// Jobs that are still queued or running answer 409 so callers can poll.
// GET /api/analyses/{id}/results
func (h *AnalysisHandler) GetResultsHandler(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobIDFromPath(w, r)
	if !ok {
		return
	}

	report, err := h.analysisService.GetResults(jobID)
	if err != nil {
		switch {
		case errors.Is(err, interfaces.ErrJobNotFound):
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Job %s not found", jobID))
		case errors.Is(err, interfaces.ErrResultsNotReady):
			WriteError(w, http.StatusConflict, fmt.Sprintf("Job %s has no results yet", jobID))
		default:
			h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get results")
			WriteError(w, http.StatusInternalServerError, "Failed to get results")
		}
		return
	}

	WriteJSON(w, http.StatusOK, report)
}

// CancelAnalysisHandler requests cooperative cancellation of a job
// POST /api/analyses/{id}/cancel
func (h *AnalysisHandler) CancelAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobIDFromPath(w, r)
	if !ok {
		return
	}

	if err := h.analysisService.Cancel(jobID); err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Job %s not found", jobID))
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to cancel job")
		WriteError(w, http.StatusInternalServerError, "Failed to cancel job")
		return
	}

	h.logger.Info().Str("job_id", jobID).Msg("Job cancellation requested")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":  jobID,
		"message": "Cancellation requested",
	})
}

// ExportAnalysisHandler streams the report of a completed job in the
// requested format
// GET /api/analyses/{id}/export?format=json|markdown|html|pdf
func (h *AnalysisHandler) ExportAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobIDFromPath(w, r)
	if !ok {
		return
	}

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.analysisService.GetResults(jobID)
	if err != nil {
		switch {
		case errors.Is(err, interfaces.ErrJobNotFound):
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Job %s not found", jobID))
		case errors.Is(err, interfaces.ErrResultsNotReady):
			WriteError(w, http.StatusConflict, fmt.Sprintf("Job %s has no results yet", jobID))
		default:
			h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get results for export")
			WriteError(w, http.StatusInternalServerError, "Failed to get results")
		}
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(report, format)))

	if err := h.exportService.Export(report, format, w); err != nil {
		// Headers are already out; all we can do is log.
		h.logger.Error().Err(err).Str("job_id", jobID).Str("format", string(format)).Msg("Export failed mid-stream")
		return
	}

	h.logger.Info().Str("job_id", jobID).Str("format", string(format)).Msg("Report exported")
}

// ImportAnalysisHandler registers a previously exported report as a
// completed job
// POST /api/analyses/import
func (h *AnalysisHandler) ImportAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.exportService.Import(r.Body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshot, err := h.analysisService.ImportReport(report)
	if err != nil {
		h.logger.Error().Err(err).Str("analysis_id", report.AnalysisID).Msg("Failed to import report")
		WriteError(w, http.StatusInternalServerError, "Failed to import report")
		return
	}

	WriteJSON(w, http.StatusCreated, snapshot)
}

// jobIDFromPath extracts the job ID from paths shaped like
// /api/analyses/{id} or /api/analyses/{id}/action. Writes a 400 and
// returns false when the segment is missing.
func (h *AnalysisHandler) jobIDFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 || pathParts[2] == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return "", false
	}
	return pathParts[2], true
}
