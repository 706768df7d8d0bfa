package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Logging     LoggingConfig    `toml:"logging"`
	Store       StoreConfig      `toml:"store"`
	Sampler     SamplerConfig    `toml:"sampler"`
	Analysis    AnalysisDefaults `toml:"analysis"`
	Gemini      GeminiConfig     `toml:"gemini"`
	Claude      ClaudeConfig     `toml:"claude"`
	WebSocket   WebSocketConfig  `toml:"websocket"`
	Export      ExportConfig     `toml:"export"`
	Schedules   []ScheduleConfig `toml:"schedule"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// StoreConfig configures the upstream transcript store client.
type StoreConfig struct {
	Mode           string `toml:"mode"`            // "http" for the real store, "mock" for a YAML scenario store
	BaseURL        string `toml:"base_url"`        // Store API base URL (credentials may override per bot)
	AuthMode       string `toml:"auth_mode"`       // "token" or "oauth2" (client-credentials grant)
	TokenURL       string `toml:"token_url"`       // OAuth2 token endpoint when auth_mode = "oauth2"
	RateLimit      string `toml:"rate_limit"`      // Minimum interval between store requests, e.g. "250ms"
	RequestTimeout string `toml:"request_timeout"` // HTTP request timeout, e.g. "30s"
	PageLimit      int    `toml:"page_limit"`      // Per-window session limit; one large call, no paging
	ScenarioFile   string `toml:"scenario_file"`   // YAML scenario for mock mode
}

// SamplerConfig holds the time-window ladder used to search for sessions.
// The ladder is a fixed, monotonically increasing sequence of window
// durations; each window starts at the job's start instant and extends
// further than the previous one. The defaults (3h, 6h, 12h, 144h) are
// deliberate constants, not an adaptive policy.
type SamplerConfig struct {
	WindowHours []int `toml:"window_hours"` // Expanding ladder durations in hours (default: [3, 6, 12, 144])
	MinMessages int   `toml:"min_messages"` // Sessions with fewer messages are filtered out (default: 2)
}

// AnalysisDefaults are fallback values applied to analysis requests that
// do not set the corresponding knob themselves.
type AnalysisDefaults struct {
	BatchSize    int     `toml:"batch_size"`    // Sessions per inference call (default: 10)
	Concurrency  int     `toml:"concurrency"`   // Max in-flight inference calls per job (default: 3)
	MaxTokens    int     `toml:"max_tokens"`    // Max response tokens per inference call (default: 4096)
	Temperature  float64 `toml:"temperature"`   // Completion temperature (default: 0.3)
	DefaultModel string  `toml:"default_model"` // Model when the request omits one
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey    string `toml:"api_key"`    // Google Gemini API key
	Timeout   string `toml:"timeout"`    // Operation timeout as duration string (default: "5m")
	RateLimit string `toml:"rate_limit"` // Rate limit duration string (default: "4s" for 15 RPM)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey    string `toml:"api_key"`    // Anthropic API key
	Timeout   string `toml:"timeout"`    // Operation timeout as duration string (default: "5m")
	RateLimit string `toml:"rate_limit"` // Rate limit duration string (default: "1s")
}

// WebSocketConfig contains configuration for WebSocket event/log streaming
type WebSocketConfig struct {
	MinLevel        string   `toml:"min_level"`        // Minimum log level to broadcast ("debug", "info", "warn", "error")
	ExcludePatterns []string `toml:"exclude_patterns"` // Log message patterns to exclude from broadcasting
	// Whitelist of event types to broadcast. Empty list allows all events.
	AllowedEvents []string `toml:"allowed_events"`
	// Throttle intervals for high-frequency events, e.g. {"job.progress" = "1s"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// ExportConfig configures report export.
type ExportConfig struct {
	Dir string `toml:"dir"` // Directory for exported report files (default: "./reports")
}

// ScheduleConfig defines a recurring analysis registered with the scheduler.
// The start instant of each run is "now minus lookback_hours" in the
// schedule's time zone.
type ScheduleConfig struct {
	Name            string `toml:"name"`
	Cron            string `toml:"cron"`    // Standard 5-field cron expression
	Enabled         bool   `toml:"enabled"` // Disabled schedules are registered but never fire
	Model           string `toml:"model"`
	TargetCount     int    `toml:"target_count"`
	LookbackHours   int    `toml:"lookback_hours"` // How far back the sampled window starts (default: 24)
	Timezone        string `toml:"timezone"`
	ContainmentType string `toml:"containment_type"` // Optional session filter: selfService, dropOff, agent
	BotID           string `toml:"bot_id"`
	ClientID        string `toml:"client_id"`
	ClientSecret    string `toml:"client_secret"`
	BaseURL         string `toml:"base_url"` // Overrides store.base_url for this schedule
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in scrutor.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Store: StoreConfig{
			Mode:           "http",
			AuthMode:       "token",
			RateLimit:      "250ms",
			RequestTimeout: "30s",
			PageLimit:      10000, // One large-limit call per window instead of paging
		},
		Sampler: SamplerConfig{
			WindowHours: []int{3, 6, 12, 144},
			MinMessages: 2,
		},
		Analysis: AnalysisDefaults{
			BatchSize:    10,
			Concurrency:  3,
			MaxTokens:    4096,
			Temperature:  0.3,
			DefaultModel: "claude-haiku-3-5-20241022",
		},
		Gemini: GeminiConfig{
			APIKey:    "", // User must provide API key (GEMINI_API_KEY or config)
			Timeout:   "5m",
			RateLimit: "4s", // Default to 4s (15 RPM) for free tier
		},
		Claude: ClaudeConfig{
			APIKey:    "", // User must provide API key (ANTHROPIC_API_KEY or config)
			Timeout:   "5m",
			RateLimit: "1s",
		},
		WebSocket: WebSocketConfig{
			MinLevel: "info",
			ExcludePatterns: []string{
				"WebSocket client connected",
				"WebSocket client disconnected",
				"HTTP request",
				"HTTP response",
			},
			AllowedEvents: []string{},
			// Throttle progress events to prevent WebSocket flooding on large jobs
			ThrottleIntervals: map[string]string{
				"job.progress": "1s",
			},
		},
		Export: ExportConfig{
			Dir: "./reports",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files; later files override
// earlier files. Priority: CLI flags > environment variables > last config
// file > ... > first config file > defaults.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: SCRUTOR_ENV, fallback: GO_ENV)
	if env := os.Getenv("SCRUTOR_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("SCRUTOR_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SCRUTOR_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("SCRUTOR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("SCRUTOR_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("SCRUTOR_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Store configuration
	if mode := os.Getenv("SCRUTOR_STORE_MODE"); mode != "" {
		config.Store.Mode = mode
	}
	if baseURL := os.Getenv("SCRUTOR_STORE_BASE_URL"); baseURL != "" {
		config.Store.BaseURL = baseURL
	}
	if authMode := os.Getenv("SCRUTOR_STORE_AUTH_MODE"); authMode != "" {
		config.Store.AuthMode = authMode
	}
	if tokenURL := os.Getenv("SCRUTOR_STORE_TOKEN_URL"); tokenURL != "" {
		config.Store.TokenURL = tokenURL
	}
	if rateLimit := os.Getenv("SCRUTOR_STORE_RATE_LIMIT"); rateLimit != "" {
		if _, err := time.ParseDuration(rateLimit); err == nil {
			config.Store.RateLimit = rateLimit
		}
	}
	if timeout := os.Getenv("SCRUTOR_STORE_REQUEST_TIMEOUT"); timeout != "" {
		if _, err := time.ParseDuration(timeout); err == nil {
			config.Store.RequestTimeout = timeout
		}
	}
	if pageLimit := os.Getenv("SCRUTOR_STORE_PAGE_LIMIT"); pageLimit != "" {
		if pl, err := strconv.Atoi(pageLimit); err == nil && pl > 0 {
			config.Store.PageLimit = pl
		}
	}
	if scenario := os.Getenv("SCRUTOR_STORE_SCENARIO_FILE"); scenario != "" {
		config.Store.ScenarioFile = scenario
	}

	// Sampler configuration
	if hours := os.Getenv("SCRUTOR_SAMPLER_WINDOW_HOURS"); hours != "" {
		parsed := []int{}
		for _, h := range strings.Split(hours, ",") {
			if v, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && v > 0 {
				parsed = append(parsed, v)
			}
		}
		if len(parsed) > 0 {
			config.Sampler.WindowHours = parsed
		}
	}
	if minMessages := os.Getenv("SCRUTOR_SAMPLER_MIN_MESSAGES"); minMessages != "" {
		if mm, err := strconv.Atoi(minMessages); err == nil && mm >= 0 {
			config.Sampler.MinMessages = mm
		}
	}

	// Analysis defaults
	if batchSize := os.Getenv("SCRUTOR_ANALYSIS_BATCH_SIZE"); batchSize != "" {
		if bs, err := strconv.Atoi(batchSize); err == nil && bs > 0 {
			config.Analysis.BatchSize = bs
		}
	}
	if concurrency := os.Getenv("SCRUTOR_ANALYSIS_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil && c > 0 {
			config.Analysis.Concurrency = c
		}
	}
	if maxTokens := os.Getenv("SCRUTOR_ANALYSIS_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil && mt > 0 {
			config.Analysis.MaxTokens = mt
		}
	}
	if temperature := os.Getenv("SCRUTOR_ANALYSIS_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 64); err == nil {
			config.Analysis.Temperature = t
		}
	}
	if model := os.Getenv("SCRUTOR_ANALYSIS_DEFAULT_MODEL"); model != "" {
		config.Analysis.DefaultModel = model
	}

	// Gemini configuration
	if apiKey := os.Getenv("SCRUTOR_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if timeout := os.Getenv("SCRUTOR_GEMINI_TIMEOUT"); timeout != "" {
		config.Gemini.Timeout = timeout
	}
	if rateLimit := os.Getenv("SCRUTOR_GEMINI_RATE_LIMIT"); rateLimit != "" {
		config.Gemini.RateLimit = rateLimit
	}

	// Claude configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("SCRUTOR_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // SCRUTOR_ prefix takes priority
	}
	if timeout := os.Getenv("SCRUTOR_CLAUDE_TIMEOUT"); timeout != "" {
		config.Claude.Timeout = timeout
	}
	if rateLimit := os.Getenv("SCRUTOR_CLAUDE_RATE_LIMIT"); rateLimit != "" {
		config.Claude.RateLimit = rateLimit
	}

	// WebSocket configuration
	if minLevel := os.Getenv("SCRUTOR_WEBSOCKET_MIN_LEVEL"); minLevel != "" {
		config.WebSocket.MinLevel = minLevel
	}
	if allowedEvents := os.Getenv("SCRUTOR_WEBSOCKET_ALLOWED_EVENTS"); allowedEvents != "" {
		events := []string{}
		for _, e := range strings.Split(allowedEvents, ",") {
			if trimmed := strings.TrimSpace(e); trimmed != "" {
				events = append(events, trimmed)
			}
		}
		if len(events) > 0 {
			config.WebSocket.AllowedEvents = events
		}
	}
	if progressThrottle := os.Getenv("SCRUTOR_WEBSOCKET_THROTTLE_PROGRESS"); progressThrottle != "" {
		if _, err := time.ParseDuration(progressThrottle); err == nil {
			if config.WebSocket.ThrottleIntervals == nil {
				config.WebSocket.ThrottleIntervals = make(map[string]string)
			}
			config.WebSocket.ThrottleIntervals["job.progress"] = progressThrottle
		}
	}

	// Export configuration
	if exportDir := os.Getenv("SCRUTOR_EXPORT_DIR"); exportDir != "" {
		config.Export.Dir = exportDir
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string, logLevel string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
}

// ResolveAPIKey resolves an inference API key for the given provider with
// environment variable priority: environment -> config fallback -> error.
func ResolveAPIKey(provider string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"claude": {"SCRUTOR_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"gemini": {"SCRUTOR_GEMINI_API_KEY", "GEMINI_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[provider]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key for provider '%s' not found in environment or config", provider)
}

// ValidateSchedule validates a cron schedule expression and ensures a
// minimum 5-minute interval so recurring analyses cannot stack up.
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]

	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}

	if strings.HasPrefix(minuteField, "*/") {
		intervalStr := strings.TrimPrefix(minuteField, "*/")
		interval, err := strconv.Atoi(intervalStr)
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// StoreRateInterval returns the parsed store rate-limit interval, falling
// back to 250ms when the configured value is missing or malformed.
func (c *Config) StoreRateInterval() time.Duration {
	d, err := time.ParseDuration(c.Store.RateLimit)
	if err != nil || d <= 0 {
		return 250 * time.Millisecond
	}
	return d
}

// StoreRequestTimeout returns the parsed store request timeout, falling
// back to 30s when the configured value is missing or malformed.
func (c *Config) StoreRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Store.RequestTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
