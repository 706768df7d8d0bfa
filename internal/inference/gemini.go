package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
)

const (
	defaultGeminiTimeout = 5 * time.Minute

	// Gemini free-tier quota is 15 RPM, so requests are spaced 4s apart
	// by default.
	defaultGeminiRateInterval = 4 * time.Second
)

// GeminiService implements interfaces.InferenceService using the Google
// Gemini API.
type GeminiService struct {
	client  *genai.Client
	logger  arbor.ILogger
	limiter *rate.Limiter
	timeout time.Duration
}

// NewGeminiService creates a Gemini inference service with the given API
// key. Timeout and request spacing come from configuration.
func NewGeminiService(ctx context.Context, apiKey string, config common.GeminiConfig, logger arbor.ILogger) (*GeminiService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required: %w", interfaces.ErrInvalidCredentials)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	timeout := defaultGeminiTimeout
	if d, err := time.ParseDuration(config.Timeout); err == nil && d > 0 {
		timeout = d
	}
	interval := defaultGeminiRateInterval
	if d, err := time.ParseDuration(config.RateLimit); err == nil && d > 0 {
		interval = d
	}

	service := &GeminiService{
		client:  client,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		timeout: timeout,
	}

	logger.Debug().
		Dur("timeout", timeout).
		Dur("rate_interval", interval).
		Msg("Gemini inference service initialized")

	return service, nil
}

// Complete sends one prompt and returns the model response with token
// accounting.
func (s *GeminiService) Complete(ctx context.Context, req interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	model, config := buildGeminiCall(req)

	startTime := time.Now()
	resp, err := s.client.Models.GenerateContent(callCtx, model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, fmt.Errorf("Gemini API call failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini API")
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty text in Gemini response")
	}

	var inputTokens, outputTokens int
	if resp.UsageMetadata != nil {
		inputTokens = int(resp.UsageMetadata.PromptTokenCount)
		outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	s.logger.Debug().
		Str("model", model).
		Int("input_tokens", inputTokens).
		Int("output_tokens", outputTokens).
		Dur("duration", time.Since(startTime)).
		Msg("Gemini completion finished")

	return &interfaces.CompletionResponse{
		Text:         text,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Model:        model,
	}, nil
}

// buildGeminiCall resolves the API model name and generation config.
// Provider-prefixed identifiers ("gemini/...") are stripped to the bare
// model name the API expects.
func buildGeminiCall(req interfaces.CompletionRequest) (string, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	return NormalizeModel(req.Model), config
}

// Provider returns the provider name.
func (s *GeminiService) Provider() string {
	return string(ProviderGemini)
}

// Close releases provider resources.
func (s *GeminiService) Close() error {
	s.client = nil
	return nil
}
