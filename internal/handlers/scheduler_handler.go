package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/interfaces"
)

// SchedulerHandler handles scheduler-related endpoints
type SchedulerHandler struct {
	schedulerService interfaces.SchedulerService
	logger           arbor.ILogger
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(schedulerService interfaces.SchedulerService, logger arbor.ILogger) *SchedulerHandler {
	return &SchedulerHandler{
		schedulerService: schedulerService,
		logger:           logger,
	}
}

// ListSchedulesHandler returns the status of every configured schedule
// GET /api/schedules
func (h *SchedulerHandler) ListSchedulesHandler(w http.ResponseWriter, r *http.Request) {
	statuses := h.schedulerService.GetAllStatuses()

	schedules := make([]*interfaces.ScheduleStatus, 0, len(statuses))
	for _, status := range statuses {
		schedules = append(schedules, status)
	}
	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].Name < schedules[j].Name
	})

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

// GetScheduleHandler returns the status of one schedule
// GET /api/schedules/{name}
func (h *SchedulerHandler) GetScheduleHandler(w http.ResponseWriter, r *http.Request) {
	name, ok := h.scheduleNameFromPath(w, r)
	if !ok {
		return
	}

	status, err := h.schedulerService.GetStatus(name)
	if err != nil {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("Schedule %q not found", name))
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// TriggerScheduleHandler launches a configured schedule immediately
// POST /api/schedules/{name}/trigger
func (h *SchedulerHandler) TriggerScheduleHandler(w http.ResponseWriter, r *http.Request) {
	name, ok := h.scheduleNameFromPath(w, r)
	if !ok {
		return
	}

	if err := h.schedulerService.TriggerNow(name); err != nil {
		if errors.Is(err, interfaces.ErrScheduleNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Schedule %q not found", name))
			return
		}
		h.logger.Error().Err(err).Str("schedule", name).Msg("Failed to trigger schedule")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info().Str("schedule", name).Msg("Schedule triggered manually")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"schedule": name,
		"message":  "Schedule triggered",
	})
}

// scheduleNameFromPath extracts the schedule name from paths shaped like
// /api/schedules/{name} or /api/schedules/{name}/trigger
func (h *SchedulerHandler) scheduleNameFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 || pathParts[2] == "" {
		WriteError(w, http.StatusBadRequest, "Schedule name is required")
		return "", false
	}
	return pathParts[2], true
}
