package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	analysisService interfaces.AnalysisService
	logger          arbor.ILogger
	startTime       time.Time
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(analysisService interfaces.AnalysisService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		analysisService: analysisService,
		logger:          logger,
		startTime:       time.Now(),
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobs := h.analysisService.ListJobs()
	counts := map[string]int{}
	for _, job := range jobs {
		counts[string(job.Status)]++
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"version":        common.GetVersion(),
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
		"goroutines":     common.GetGoroutineCount(),
		"jobs": map[string]interface{}{
			"total":     len(jobs),
			"queued":    counts[string(models.JobStatusQueued)],
			"running":   counts[string(models.JobStatusRunning)],
			"complete":  counts[string(models.JobStatusComplete)],
			"error":     counts[string(models.JobStatusError)],
			"cancelled": counts[string(models.JobStatusCancelled)],
		},
	})
}
