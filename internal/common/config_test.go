package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const baseTOML = `environment = "production"

[server]
port = 9001

[logging]
level = "debug"

[store]
base_url = "https://store.example.com"
page_limit = 250

[analysis]
default_model = "claude-sonnet-4"
`

func TestLoadFromFilesPrecedence(t *testing.T) {
	base := writeTOML(t, "base.toml", baseTOML)
	override := writeTOML(t, "override.toml", `[server]
port = 9002

[sampler]
window_hours = [1, 2]
min_messages = 5
`)

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	// Later files override earlier files.
	assert.Equal(t, 9002, config.Server.Port)
	assert.Equal(t, []int{1, 2}, config.Sampler.WindowHours)
	assert.Equal(t, 5, config.Sampler.MinMessages)

	// Values only the first file sets survive.
	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "https://store.example.com", config.Store.BaseURL)
	assert.Equal(t, 250, config.Store.PageLimit)
	assert.Equal(t, "claude-sonnet-4", config.Analysis.DefaultModel)

	// Untouched knobs keep their defaults.
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 10, config.Analysis.BatchSize)
}

func TestLoadFromFilesEnvironmentOverrides(t *testing.T) {
	base := writeTOML(t, "base.toml", baseTOML)

	t.Setenv("SCRUTOR_SERVER_PORT", "7777")
	t.Setenv("SCRUTOR_LOG_LEVEL", "warn")
	t.Setenv("SCRUTOR_STORE_MODE", "mock")
	t.Setenv("SCRUTOR_SAMPLER_WINDOW_HOURS", "4, 8")
	t.Setenv("SCRUTOR_ANALYSIS_TEMPERATURE", "0.7")

	config, err := LoadFromFiles(base)
	require.NoError(t, err)

	assert.Equal(t, 7777, config.Server.Port, "environment beats the config file")
	assert.Equal(t, "warn", config.Logging.Level)
	assert.Equal(t, "mock", config.Store.Mode)
	assert.Equal(t, []int{4, 8}, config.Sampler.WindowHours)
	assert.InDelta(t, 0.7, config.Analysis.Temperature, 1e-9)
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadFromFilesSkipsEmptyPaths(t *testing.T) {
	base := writeTOML(t, "base.toml", baseTOML)

	config, err := LoadFromFiles("", base, "")
	require.NoError(t, err)
	assert.Equal(t, 9001, config.Server.Port)
}

func TestLoadFromFilesRejectsMalformedTOML(t *testing.T) {
	bad := writeTOML(t, "bad.toml", "[server\nport = 1")

	_, err := LoadFromFiles(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, 9090, "0.0.0.0", "error")
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, "error", config.Logging.Level)

	// Zero values leave the config untouched.
	ApplyFlagOverrides(config, 0, "", "")
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, "error", config.Logging.Level)
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantErr  string
	}{
		{name: "every 15 minutes", schedule: "*/15 * * * *"},
		{name: "daily at 2am", schedule: "0 2 * * *"},
		{name: "every 5 minutes", schedule: "*/5 * * * *"},
		{
			name:     "every minute",
			schedule: "* * * * *",
			wantErr:  "minimum 5-minute interval",
		},
		{
			name:     "every 2 minutes",
			schedule: "*/2 * * * *",
			wantErr:  "at least 5 minutes",
		},
		{
			name:     "not a cron expression",
			schedule: "whenever",
			wantErr:  "invalid cron expression",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchedule(tt.schedule)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStoreDurationFallbacks(t *testing.T) {
	config := NewDefaultConfig()
	assert.Equal(t, 250*time.Millisecond, config.StoreRateInterval())
	assert.Equal(t, 30*time.Second, config.StoreRequestTimeout())

	config.Store.RateLimit = "2s"
	config.Store.RequestTimeout = "45s"
	assert.Equal(t, 2*time.Second, config.StoreRateInterval())
	assert.Equal(t, 45*time.Second, config.StoreRequestTimeout())

	config.Store.RateLimit = "not-a-duration"
	config.Store.RequestTimeout = "-10s"
	assert.Equal(t, 250*time.Millisecond, config.StoreRateInterval())
	assert.Equal(t, 30*time.Second, config.StoreRequestTimeout())
}

func TestIsProduction(t *testing.T) {
	config := NewDefaultConfig()
	assert.False(t, config.IsProduction())

	config.Environment = "production"
	assert.True(t, config.IsProduction())

	config.Environment = " PROD "
	assert.True(t, config.IsProduction())
}
