package interfaces

import "time"

// ScheduleStatus represents the current status of a configured schedule
type ScheduleStatus struct {
	Name      string     `json:"name"`
	Cron      string     `json:"cron"`
	Enabled   bool       `json:"enabled"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	IsRunning bool       `json:"is_running"`
	LastJobID string     `json:"last_job_id,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// SchedulerService manages cron-based recurring analyses
type SchedulerService interface {
	// Start registers all configured schedules and starts the cron loop
	Start() error

	// Stop halts the cron loop, letting in-flight runs finish
	Stop() error

	// TriggerNow launches a configured schedule immediately
	TriggerNow(name string) error

	// GetStatus returns the status of one schedule
	GetStatus(name string) (*ScheduleStatus, error)

	// GetAllStatuses returns all schedule statuses
	GetAllStatuses() map[string]*ScheduleStatus
}
