package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/inference"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// scheduleEntry is one configured recurring analysis with its runtime state
type scheduleEntry struct {
	config    common.ScheduleConfig
	cronID    cron.EntryID
	lastRun   *time.Time
	lastJobID string
	lastError string
}

// Service implements SchedulerService. Each [[schedule]] block in the
// config becomes a cron entry that launches an analysis; a schedule whose
// previous job is still live skips its tick instead of stacking runs.
type Service struct {
	analysis  interfaces.AnalysisService
	config    *common.Config
	cron      *cron.Cron
	logger    arbor.ILogger
	mu        sync.Mutex // Protects schedules map and running flag
	schedules map[string]*scheduleEntry
	running   bool
}

// NewService creates a scheduler over the configured schedule blocks
func NewService(config *common.Config, analysis interfaces.AnalysisService, logger arbor.ILogger) interfaces.SchedulerService {
	return &Service{
		analysis:  analysis,
		config:    config,
		cron:      cron.New(),
		logger:    logger,
		schedules: make(map[string]*scheduleEntry),
	}
}

// Start registers all configured schedules and starts the cron loop
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	for _, scheduleConfig := range s.config.Schedules {
		if err := s.registerLocked(scheduleConfig); err != nil {
			return fmt.Errorf("schedule %q: %w", scheduleConfig.Name, err)
		}
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Int("schedule_count", len(s.schedules)).
		Msg("Scheduler started")

	return nil
}

// Stop halts the cron loop. In-flight analysis jobs are owned by the job
// queue and keep running; only future ticks stop.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cron.Stop()
	s.running = false

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// registerLocked validates and registers one schedule. Callers hold s.mu.
func (s *Service) registerLocked(scheduleConfig common.ScheduleConfig) error {
	if scheduleConfig.Name == "" {
		return fmt.Errorf("schedule name is required")
	}
	if _, exists := s.schedules[scheduleConfig.Name]; exists {
		return fmt.Errorf("schedule already registered")
	}
	if err := common.ValidateSchedule(scheduleConfig.Cron); err != nil {
		return err
	}

	entry := &scheduleEntry{config: scheduleConfig}

	// Disabled schedules are tracked for status but get no cron entry
	if scheduleConfig.Enabled {
		name := scheduleConfig.Name
		cronID, err := s.cron.AddFunc(scheduleConfig.Cron, func() {
			s.runSchedule(name)
		})
		if err != nil {
			return fmt.Errorf("failed to add cron entry: %w", err)
		}
		entry.cronID = cronID
	}

	s.schedules[scheduleConfig.Name] = entry

	s.logger.Info().
		Str("schedule", scheduleConfig.Name).
		Str("cron", scheduleConfig.Cron).
		Bool("enabled", scheduleConfig.Enabled).
		Msg("Schedule registered")

	return nil
}

// TriggerNow launches a configured schedule immediately, even a disabled
// one. Fails when the previous run is still live.
func (s *Service) TriggerNow(name string) error {
	s.mu.Lock()
	_, exists := s.schedules[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("schedule %q: %w", name, interfaces.ErrScheduleNotFound)
	}

	s.logger.Info().Str("schedule", name).Msg("Manual schedule trigger requested")
	return s.runSchedule(name)
}

// GetStatus returns the status of one schedule
func (s *Service) GetStatus(name string) (*interfaces.ScheduleStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.schedules[name]
	if !exists {
		return nil, fmt.Errorf("schedule %q: %w", name, interfaces.ErrScheduleNotFound)
	}

	return s.statusLocked(entry), nil
}

// GetAllStatuses returns all schedule statuses keyed by name
func (s *Service) GetAllStatuses() map[string]*interfaces.ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make(map[string]*interfaces.ScheduleStatus, len(s.schedules))
	for name, entry := range s.schedules {
		statuses[name] = s.statusLocked(entry)
	}
	return statuses
}

// statusLocked builds the caller-visible status. Callers hold s.mu.
func (s *Service) statusLocked(entry *scheduleEntry) *interfaces.ScheduleStatus {
	var nextRun *time.Time
	if entry.config.Enabled {
		for _, cronEntry := range s.cron.Entries() {
			if cronEntry.ID == entry.cronID {
				next := cronEntry.Next
				nextRun = &next
				break
			}
		}
	}

	return &interfaces.ScheduleStatus{
		Name:      entry.config.Name,
		Cron:      entry.config.Cron,
		Enabled:   entry.config.Enabled,
		LastRun:   entry.lastRun,
		NextRun:   nextRun,
		IsRunning: s.jobLive(entry.lastJobID),
		LastJobID: entry.lastJobID,
		LastError: entry.lastError,
	}
}

// runSchedule launches one analysis for the schedule. The tick is skipped
// when the previous job is still live, so a slow analysis never stacks
// concurrent runs of the same schedule.
func (s *Service) runSchedule(name string) error {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("schedule", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in schedule execution")
		}
	}()

	s.mu.Lock()
	entry, exists := s.schedules[name]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("schedule %q: %w", name, interfaces.ErrScheduleNotFound)
	}
	lastJobID := entry.lastJobID
	scheduleConfig := entry.config
	s.mu.Unlock()

	if s.jobLive(lastJobID) {
		s.logger.Info().
			Str("schedule", name).
			Str("job_id", lastJobID).
			Msg("Previous run still live, skipping this tick")
		return nil
	}

	request, err := s.buildRequest(scheduleConfig)
	if err != nil {
		s.recordRun(name, "", err)
		return err
	}

	snapshot, err := s.analysis.Start(context.Background(), request)
	if err != nil {
		s.recordRun(name, "", err)
		s.logger.Error().
			Str("schedule", name).
			Err(err).
			Msg("Scheduled analysis failed to start")
		return err
	}

	s.recordRun(name, snapshot.ID, nil)
	s.logger.Info().
		Str("schedule", name).
		Str("job_id", snapshot.ID).
		Msg("Scheduled analysis started")

	return nil
}

// recordRun stores the outcome of one tick on the schedule entry
func (s *Service) recordRun(name, jobID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.schedules[name]
	if !exists {
		return
	}

	now := time.Now()
	entry.lastRun = &now
	if jobID != "" {
		entry.lastJobID = jobID
	}
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
}

// jobLive reports whether the job exists and has not reached a terminal
// status yet.
func (s *Service) jobLive(jobID string) bool {
	if jobID == "" {
		return false
	}
	snapshot, err := s.analysis.GetJob(jobID)
	if err != nil {
		return false
	}
	return snapshot.Status == models.JobStatusQueued || snapshot.Status == models.JobStatusRunning
}

// buildRequest turns a schedule block into a start request. The start
// instant is "now minus lookback" in the schedule's zone; the API key
// comes from the environment or the configured provider key.
func (s *Service) buildRequest(scheduleConfig common.ScheduleConfig) (interfaces.StartRequest, error) {
	timezone := scheduleConfig.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return interfaces.StartRequest{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}

	lookback := scheduleConfig.LookbackHours
	if lookback <= 0 {
		lookback = 24
	}
	start := time.Now().In(location).Add(-time.Duration(lookback) * time.Hour)

	model := scheduleConfig.Model
	if model == "" {
		model = s.config.Analysis.DefaultModel
	}

	apiKey, err := inference.ResolveKey(s.config, model)
	if err != nil {
		return interfaces.StartRequest{}, err
	}

	return interfaces.StartRequest{
		Config: models.AnalysisConfig{
			StartDate:       start.Format("2006-01-02"),
			StartTime:       start.Format("15:04"),
			Timezone:        timezone,
			TargetCount:     scheduleConfig.TargetCount,
			Model:           model,
			APIKey:          apiKey,
			ContainmentType: scheduleConfig.ContainmentType,
		},
		Credentials: models.StoreCredentials{
			BotID:        scheduleConfig.BotID,
			ClientID:     scheduleConfig.ClientID,
			ClientSecret: scheduleConfig.ClientSecret,
			BaseURL:      scheduleConfig.BaseURL,
		},
	}, nil
}
