// Package inference wraps the LLM provider SDKs behind a single
// completion interface. Services are built per job because each run
// carries its own API key and model.
package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
)

// DetectProvider determines the provider type from a model string.
// Model strings can be:
// - "claude-haiku-3-5-20241022" -> Claude
// - "claude/claude-haiku-3-5-20241022" -> Claude (with prefix)
// - "gemini-2.0-flash" -> Gemini
// - "gemini/gemini-2.0-flash" -> Gemini (with prefix)
func DetectProvider(model string) (ProviderType, error) {
	m := strings.ToLower(model)

	// Check for explicit provider prefix
	if strings.HasPrefix(m, "claude/") || strings.HasPrefix(m, "anthropic/") {
		return ProviderClaude, nil
	}
	if strings.HasPrefix(m, "gemini/") || strings.HasPrefix(m, "google/") {
		return ProviderGemini, nil
	}

	// Check for model name patterns
	if strings.HasPrefix(m, "claude-") {
		return ProviderClaude, nil
	}
	if strings.HasPrefix(m, "gemini-") {
		return ProviderGemini, nil
	}

	return "", fmt.Errorf("cannot detect provider for model %q", model)
}

// NormalizeModel removes provider prefix from model name if present
func NormalizeModel(model string) string {
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// Factory creates inference services from job configuration.
type Factory struct {
	config *common.Config
	logger arbor.ILogger
}

// NewFactory creates a new inference service factory
func NewFactory(config *common.Config, logger arbor.ILogger) *Factory {
	return &Factory{
		config: config,
		logger: logger,
	}
}

// ServiceFor builds the inference service for one job. The job's API key
// takes precedence; the environment and configured keys are fallbacks.
func (f *Factory) ServiceFor(ctx context.Context, jobConfig models.AnalysisConfig) (interfaces.InferenceService, error) {
	provider, err := DetectProvider(jobConfig.Model)
	if err != nil {
		return nil, err
	}

	apiKey := jobConfig.APIKey
	if apiKey == "" {
		apiKey, err = ResolveKey(f.config, jobConfig.Model)
		if err != nil {
			return nil, err
		}
	}

	switch provider {
	case ProviderClaude:
		return NewClaudeService(apiKey, f.config.Claude, f.logger)
	case ProviderGemini:
		return NewGeminiService(ctx, apiKey, f.config.Gemini, f.logger)
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
}

// ResolveKey resolves the API key for a model from the environment, with
// the configured provider key as fallback.
func ResolveKey(config *common.Config, model string) (string, error) {
	provider, err := DetectProvider(model)
	if err != nil {
		return "", err
	}

	fallback := ""
	switch provider {
	case ProviderClaude:
		fallback = config.Claude.APIKey
	case ProviderGemini:
		fallback = config.Gemini.APIKey
	}

	return common.ResolveAPIKey(string(provider), fallback)
}
