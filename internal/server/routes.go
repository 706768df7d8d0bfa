package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Analyses
	mux.HandleFunc("/api/analyses", s.handleAnalysesRoute)   // GET (list), POST (start)
	mux.HandleFunc("/api/analyses/", s.handleAnalysisRoutes) // /{id} and subpaths, /import

	// API routes - Schedules
	mux.HandleFunc("/api/schedules", s.app.SchedulerHandler.ListSchedulesHandler) // GET - schedule statuses
	mux.HandleFunc("/api/schedules/", s.handleScheduleRoutes)                     // /{name} and /{name}/trigger

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// API routes - Logs
	mux.HandleFunc("/api/system/logs/files", s.app.SystemLogsHandler.ListLogFilesHandler)
	mux.HandleFunc("/api/system/logs/content", s.app.SystemLogsHandler.GetLogContentHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleAnalysesRoute routes /api/analyses requests (list and start)
func (s *Server) handleAnalysesRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET":  s.app.AnalysisHandler.ListAnalysesHandler,
		"POST": s.app.AnalysisHandler.StartAnalysisHandler,
	})
}

// handleAnalysisRoutes routes /api/analyses/{id} requests and subpaths
func (s *Server) handleAnalysisRoutes(w http.ResponseWriter, r *http.Request) {
	// POST /api/analyses/import
	if r.URL.Path == "/api/analyses/import" {
		RouteByMethod(w, r, MethodRouter{
			"POST": s.app.AnalysisHandler.ImportAnalysisHandler,
		})
		return
	}

	switch r.Method {
	case "POST":
		// POST /api/analyses/{id}/cancel
		if RouteByPathSuffix(w, r, "/api/analyses/", []PathSuffixRouter{
			{Suffix: "/cancel", Handler: s.app.AnalysisHandler.CancelAnalysisHandler},
		}) {
			return
		}
	case "GET":
		// GET /api/analyses/{id}/progress|results|export
		if RouteByPathSuffix(w, r, "/api/analyses/", []PathSuffixRouter{
			{Suffix: "/progress", Handler: s.app.AnalysisHandler.GetProgressHandler},
			{Suffix: "/results", Handler: s.app.AnalysisHandler.GetResultsHandler},
			{Suffix: "/export", Handler: s.app.AnalysisHandler.ExportAnalysisHandler},
		}) {
			return
		}

		// GET /api/analyses/{id}
		s.app.AnalysisHandler.GetAnalysisHandler(w, r)
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// handleScheduleRoutes routes /api/schedules/{name} requests and subpaths
func (s *Server) handleScheduleRoutes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "POST":
		// POST /api/schedules/{name}/trigger
		if RouteByPathSuffix(w, r, "/api/schedules/", []PathSuffixRouter{
			{Suffix: "/trigger", Handler: s.app.SchedulerHandler.TriggerScheduleHandler},
		}) {
			return
		}
	case "GET":
		// GET /api/schedules/{name}
		s.app.SchedulerHandler.GetScheduleHandler(w, r)
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}
