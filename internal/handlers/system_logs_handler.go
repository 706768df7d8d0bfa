package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/services/logviewer"
)

// SystemLogsHandler exposes the service's own log files for the UI log
// viewer. It reads through arbor's logviewer, pointed at the same
// directory the file writer logs to.
type SystemLogsHandler struct {
	service *logviewer.Service
	logger  arbor.ILogger
}

func NewSystemLogsHandler(service *logviewer.Service, logger arbor.ILogger) *SystemLogsHandler {
	return &SystemLogsHandler{service: service, logger: logger}
}

// ListLogFilesHandler handles GET /api/system/logs/files
func (h *SystemLogsHandler) ListLogFilesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	files, err := h.service.ListLogFiles()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list log files")
		WriteError(w, http.StatusInternalServerError, "Failed to list log files")
		return
	}

	WriteJSON(w, http.StatusOK, files)
}

// GetLogContentHandler handles GET /api/system/logs/content with
// filename, optional limit (default 1000) and an optional comma-joined
// level filter.
func (h *SystemLogsHandler) GetLogContentHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		WriteError(w, http.StatusBadRequest, "Filename is required")
		return
	}

	limit := 1000
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	var levels []string
	if v := r.URL.Query().Get("levels"); v != "" {
		levels = strings.Split(v, ",")
	}

	entries, err := h.service.GetLogContent(filename, limit, levels)
	if err != nil {
		h.logger.Error().Err(err).Str("filename", filename).Msg("Failed to read log content")
		WriteError(w, http.StatusInternalServerError, "Failed to read log content")
		return
	}

	WriteJSON(w, http.StatusOK, entries)
}
