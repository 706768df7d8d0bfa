package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/arbor/services/logviewer"
	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/handlers"
	"github.com/ternarybob/scrutor/internal/inference"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/jobqueue"
	"github.com/ternarybob/scrutor/internal/models"
	"github.com/ternarybob/scrutor/internal/orchestrator"
	"github.com/ternarybob/scrutor/internal/services/events"
	"github.com/ternarybob/scrutor/internal/services/export"
	"github.com/ternarybob/scrutor/internal/services/scheduler"
	"github.com/ternarybob/scrutor/internal/transcripts"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Event-driven services
	EventService interfaces.EventService

	// Analysis pipeline
	Queue            *jobqueue.Queue
	Registry         *orchestrator.Registry
	AnalysisService  interfaces.AnalysisService
	ExportService    *export.Service
	SchedulerService interfaces.SchedulerService

	// System logs (reads the same files the logger writes)
	SystemLogsService *logviewer.Service

	// HTTP handlers
	APIHandler        *handlers.APIHandler
	AnalysisHandler   *handlers.AnalysisHandler
	SchedulerHandler  *handlers.SchedulerHandler
	StatusHandler     *handlers.StatusHandler
	SystemLogsHandler *handlers.SystemLogsHandler
	WSHandler         *handlers.WebSocketHandler

	wsWriter *handlers.WebSocketWriter
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Event bus first; everything downstream publishes through it
	app.EventService = events.NewService(app.Logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
		return nil, fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	// WebSocket handler early so clients see jobs launched right after boot
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, app.Logger, &cfg.WebSocket)

	// Stream correlation-scoped job logs to WebSocket clients through the
	// arbor log channel
	app.wsWriter = handlers.NewWebSocketWriter(app.WSHandler, &cfg.WebSocket)
	app.wsWriter.Start()
	app.Logger.SetChannel("websocket", app.wsWriter.Channel())

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	// Scheduler starts last so triggered runs land on a fully wired service
	if err := app.SchedulerService.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info().
		Str("store_mode", cfg.Store.Mode).
		Int("schedules", len(cfg.Schedules)).
		Msg("Application initialization complete")

	return app, nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	a.Queue = jobqueue.New(a.Logger)

	// Factories hand each job its own store client and inference service,
	// bound to the job's credentials and model.
	inferenceFactory := inference.NewFactory(a.Config, a.Logger)
	sourceFactory := func(creds models.StoreCredentials) (interfaces.SessionSource, error) {
		return transcripts.NewSource(a.Config, creds, a.Logger)
	}

	a.Registry = orchestrator.NewRegistry(
		a.Config.Sampler.WindowHours,
		sourceFactory,
		inferenceFactory.ServiceFor,
		a.EventService,
		a.Logger,
	)

	a.AnalysisService = orchestrator.NewService(a.Config, a.Queue, a.Registry, a.EventService, a.Logger)
	a.Logger.Debug().Msg("Analysis service initialized")

	a.ExportService = export.NewService(a.Config, a.Logger)
	a.Logger.Debug().Str("export_dir", a.Config.Export.Dir).Msg("Export service initialized")

	a.SchedulerService = scheduler.NewService(a.Config, a.AnalysisService, a.Logger)

	// System logs service points at the directory the file writer logs to
	execPath, err := os.Executable()
	var logsDir string
	if err == nil {
		logsDir = filepath.Join(filepath.Dir(execPath), "logs")
	} else {
		logsDir = "logs"
	}

	logViewerConfig := arbormodels.WriterConfiguration{
		Type:       arbormodels.LogWriterTypeFile,
		FileName:   filepath.Join(logsDir, "scrutor.log"),
		TimeFormat: "15:04:05",
	}
	a.SystemLogsService = logviewer.NewService(logViewerConfig)
	a.Logger.Debug().Str("logs_dir", logsDir).Msg("System logs service initialized")

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.AnalysisHandler = handlers.NewAnalysisHandler(a.AnalysisService, a.ExportService, a.Logger)
	a.SchedulerHandler = handlers.NewSchedulerHandler(a.SchedulerService, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.AnalysisService, a.Logger)
	a.SystemLogsHandler = handlers.NewSystemLogsHandler(a.SystemLogsService, a.Logger)

	a.Logger.Debug().Msg("HTTP handlers initialized")
}

// Close closes all application resources
func (a *App) Close() error {
	// Stop scheduler first so no new jobs arrive during teardown
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	// Destroy cancels running jobs and drops all job state
	if a.AnalysisService != nil {
		a.AnalysisService.Destroy()
		a.Logger.Info().Msg("Analysis service destroyed")
	}

	// Stop the WebSocket log stream
	if a.wsWriter != nil {
		if err := a.wsWriter.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close WebSocket log writer")
		}
	}

	// Close event service
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	return nil
}
