package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// fakeAnalysis records start requests and serves scripted job statuses
type fakeAnalysis struct {
	mu       sync.Mutex
	started  []interfaces.StartRequest
	statuses map[string]models.JobStatus
	startErr error
}

func newFakeAnalysis() *fakeAnalysis {
	return &fakeAnalysis{statuses: make(map[string]models.JobStatus)}
}

func (f *fakeAnalysis) Start(ctx context.Context, req interfaces.StartRequest) (*models.JobSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.startErr != nil {
		return nil, f.startErr
	}

	f.started = append(f.started, req)
	jobID := fmt.Sprintf("job_fake-%d", len(f.started))
	f.statuses[jobID] = models.JobStatusQueued
	return &models.JobSnapshot{ID: jobID, Status: models.JobStatusQueued}, nil
}

func (f *fakeAnalysis) GetJob(jobID string) (*models.JobSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	status, ok := f.statuses[jobID]
	if !ok {
		return nil, interfaces.ErrJobNotFound
	}
	return &models.JobSnapshot{ID: jobID, Status: status}, nil
}

func (f *fakeAnalysis) setStatus(jobID string, status models.JobStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[jobID] = status
}

func (f *fakeAnalysis) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

func (f *fakeAnalysis) ListJobs() []models.JobSnapshot { return nil }
func (f *fakeAnalysis) GetProgress(jobID string) (*models.Progress, error) {
	return nil, interfaces.ErrJobNotFound
}
func (f *fakeAnalysis) GetResults(jobID string) (*models.AnalysisReport, error) {
	return nil, interfaces.ErrJobNotFound
}
func (f *fakeAnalysis) ImportReport(report *models.AnalysisReport) (*models.JobSnapshot, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeAnalysis) Cancel(jobID string) error { return nil }
func (f *fakeAnalysis) Destroy()                  {}

func schedulerConfig(schedules ...common.ScheduleConfig) *common.Config {
	config := common.NewDefaultConfig()
	config.Schedules = schedules
	return config
}

func TestStartRegistersConfiguredSchedules(t *testing.T) {
	config := schedulerConfig(
		common.ScheduleConfig{
			Name:        "nightly",
			Cron:        "0 2 * * *",
			Enabled:     true,
			TargetCount: 50,
			BotID:       "bot-1",
		},
		common.ScheduleConfig{
			Name:        "weekly",
			Cron:        "0 6 * * 1",
			Enabled:     false,
			TargetCount: 200,
			BotID:       "bot-1",
		},
	)

	service := NewService(config, newFakeAnalysis(), arbor.NewLogger())
	require.NoError(t, service.Start())
	defer service.Stop()

	statuses := service.GetAllStatuses()
	require.Len(t, statuses, 2)

	nightly := statuses["nightly"]
	require.NotNil(t, nightly)
	assert.True(t, nightly.Enabled)
	assert.NotNil(t, nightly.NextRun, "enabled schedule should have a next run")

	weekly := statuses["weekly"]
	require.NotNil(t, weekly)
	assert.False(t, weekly.Enabled)
	assert.Nil(t, weekly.NextRun, "disabled schedule should have no next run")
}

func TestStartRejectsInvalidCron(t *testing.T) {
	config := schedulerConfig(common.ScheduleConfig{
		Name:    "too-frequent",
		Cron:    "* * * * *",
		Enabled: true,
	})

	service := NewService(config, newFakeAnalysis(), arbor.NewLogger())
	err := service.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too-frequent")
}

func TestStartRejectsDuplicateNames(t *testing.T) {
	config := schedulerConfig(
		common.ScheduleConfig{Name: "dup", Cron: "0 2 * * *", Enabled: true},
		common.ScheduleConfig{Name: "dup", Cron: "0 3 * * *", Enabled: true},
	)

	service := NewService(config, newFakeAnalysis(), arbor.NewLogger())
	err := service.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestTriggerNowStartsAnalysis(t *testing.T) {
	t.Setenv("SCRUTOR_CLAUDE_API_KEY", "test-key")

	config := schedulerConfig(common.ScheduleConfig{
		Name:            "nightly",
		Cron:            "0 2 * * *",
		Enabled:         true,
		Model:           "claude-haiku-3-5-20241022",
		TargetCount:     75,
		LookbackHours:   48,
		ContainmentType: "selfService",
		BotID:           "bot-7",
		ClientSecret:    "secret",
	})

	analysis := newFakeAnalysis()
	service := NewService(config, analysis, arbor.NewLogger())
	require.NoError(t, service.Start())
	defer service.Stop()

	require.NoError(t, service.TriggerNow("nightly"))

	require.Equal(t, 1, analysis.startCount())
	request := analysis.started[0]
	assert.Equal(t, 75, request.Config.TargetCount)
	assert.Equal(t, "claude-haiku-3-5-20241022", request.Config.Model)
	assert.Equal(t, "test-key", request.Config.APIKey)
	assert.Equal(t, "selfService", request.Config.ContainmentType)
	assert.Equal(t, "bot-7", request.Credentials.BotID)

	// The start instant is now minus the lookback window
	startInstant, err := request.Config.ResolveStart()
	require.NoError(t, err)
	expected := time.Now().UTC().Add(-48 * time.Hour)
	assert.WithinDuration(t, expected, startInstant, 2*time.Minute)

	status, err := service.GetStatus("nightly")
	require.NoError(t, err)
	assert.Equal(t, "job_fake-1", status.LastJobID)
	assert.NotNil(t, status.LastRun)
	assert.Empty(t, status.LastError)
	assert.True(t, status.IsRunning, "queued job counts as live")
}

func TestOverlappingRunsAreSkipped(t *testing.T) {
	t.Setenv("SCRUTOR_CLAUDE_API_KEY", "test-key")

	config := schedulerConfig(common.ScheduleConfig{
		Name:         "nightly",
		Cron:         "0 2 * * *",
		Enabled:      true,
		Model:        "claude-haiku-3-5-20241022",
		TargetCount:  10,
		BotID:        "bot-7",
		ClientSecret: "secret",
	})

	analysis := newFakeAnalysis()
	service := NewService(config, analysis, arbor.NewLogger())
	require.NoError(t, service.Start())
	defer service.Stop()

	require.NoError(t, service.TriggerNow("nightly"))
	require.Equal(t, 1, analysis.startCount())

	// Previous job still queued: the next tick must not start another
	require.NoError(t, service.TriggerNow("nightly"))
	assert.Equal(t, 1, analysis.startCount())

	// Once the job is terminal the schedule fires again
	analysis.setStatus("job_fake-1", models.JobStatusComplete)
	require.NoError(t, service.TriggerNow("nightly"))
	assert.Equal(t, 2, analysis.startCount())
}

func TestTriggerNowUnknownSchedule(t *testing.T) {
	service := NewService(schedulerConfig(), newFakeAnalysis(), arbor.NewLogger())
	require.NoError(t, service.Start())
	defer service.Stop()

	err := service.TriggerNow("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrScheduleNotFound)
}
