package inference

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/scrutor/internal/interfaces"
)

func TestClaudeParamsStripProviderPrefix(t *testing.T) {
	params := buildClaudeParams(interfaces.CompletionRequest{
		Model:     "claude/claude-haiku-3-5-20241022",
		Prompt:    "analyze this",
		MaxTokens: 1024,
	})

	assert.Equal(t, anthropic.Model("claude-haiku-3-5-20241022"), params.Model)
	assert.Equal(t, int64(1024), params.MaxTokens)
}

func TestClaudeParamsBareModelUnchanged(t *testing.T) {
	params := buildClaudeParams(interfaces.CompletionRequest{
		Model:       "claude-sonnet-4-5",
		Prompt:      "analyze this",
		MaxTokens:   512,
		Temperature: 0.3,
	})

	assert.Equal(t, anthropic.Model("claude-sonnet-4-5"), params.Model)
	require.True(t, params.Temperature.Valid())
	assert.InDelta(t, 0.3, params.Temperature.Value, 1e-9)
}

func TestClaudeParamsZeroTemperatureOmitted(t *testing.T) {
	params := buildClaudeParams(interfaces.CompletionRequest{
		Model:     "claude-sonnet-4-5",
		Prompt:    "analyze this",
		MaxTokens: 512,
	})

	assert.False(t, params.Temperature.Valid())
}
