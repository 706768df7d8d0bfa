package interfaces

import "context"

// CompletionRequest is a single prompt sent to an inference provider.
type CompletionRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// CompletionResponse carries the model text plus the token accounting
// used for cost estimation.
type CompletionResponse struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Model        string
}

// InferenceService defines the interface for LLM completion calls.
// Implementations wrap one provider SDK (Anthropic, Google) and must
// return transient failures in a form the retry layer can classify.
type InferenceService interface {
	// Complete sends one prompt and returns the model response
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Provider returns the provider name ("claude" or "gemini")
	Provider() string

	// Close releases provider resources
	Close() error
}
