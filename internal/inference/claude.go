package inference

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
)

const (
	defaultClaudeTimeout      = 5 * time.Minute
	defaultClaudeRateInterval = time.Second
)

// ClaudeService implements interfaces.InferenceService using the
// Anthropic Claude API.
type ClaudeService struct {
	client  anthropic.Client
	logger  arbor.ILogger
	limiter *rate.Limiter
	timeout time.Duration
}

// NewClaudeService creates a Claude inference service with the given API
// key. Timeout and request spacing come from configuration.
func NewClaudeService(apiKey string, config common.ClaudeConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required: %w", interfaces.ErrInvalidCredentials)
	}

	timeout := defaultClaudeTimeout
	if d, err := time.ParseDuration(config.Timeout); err == nil && d > 0 {
		timeout = d
	}
	interval := defaultClaudeRateInterval
	if d, err := time.ParseDuration(config.RateLimit); err == nil && d > 0 {
		interval = d
	}

	service := &ClaudeService{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		timeout: timeout,
	}

	logger.Debug().
		Dur("timeout", timeout).
		Dur("rate_interval", interval).
		Msg("Claude inference service initialized")

	return service, nil
}

// Complete sends one prompt and returns the model response with token
// accounting.
func (s *ClaudeService) Complete(ctx context.Context, req interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := buildClaudeParams(req)

	startTime := time.Now()
	resp, err := s.client.Messages.New(callCtx, params)
	if err != nil {
		return nil, fmt.Errorf("Claude API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from Claude API")
	}

	s.logger.Debug().
		Str("model", string(params.Model)).
		Int("input_tokens", int(resp.Usage.InputTokens)).
		Int("output_tokens", int(resp.Usage.OutputTokens)).
		Dur("duration", time.Since(startTime)).
		Msg("Claude completion finished")

	return &interfaces.CompletionResponse{
		Text:         text.String(),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		Model:        string(params.Model),
	}, nil
}

// buildClaudeParams assembles the API request. Provider-prefixed model
// identifiers ("claude/...") are valid in job config for routing, but
// the API only accepts the bare model name, so the prefix is stripped
// here.
func buildClaudeParams(req interfaces.CompletionRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(NormalizeModel(req.Model)),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params
}

// Provider returns the provider name.
func (s *ClaudeService) Provider() string {
	return string(ProviderClaude)
}

// Close releases provider resources. The Claude client needs no explicit
// cleanup.
func (s *ClaudeService) Close() error {
	return nil
}
