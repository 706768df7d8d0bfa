package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/scrutor/internal/models"
)

func TestParseBatchResponseAcceptsWellFormed(t *testing.T) {
	response := `=== SESSION: abc-1 ===
INTENT: track an order
OUTCOME: Contained
TRANSFER_REASON: none
DROP_OFF: none
NOTES: resolved on first try

=== SESSION: abc-2 ===
INTENT: dispute a charge
OUTCOME: Transfer
TRANSFER_REASON: billing disputes require an agent
DROP_OFF: none
NOTES: user was frustrated
`

	facts, err := ParseBatchResponse(response, []string{"abc-1", "abc-2"})
	require.NoError(t, err)
	require.Len(t, facts, 2)

	first := facts["abc-1"]
	assert.Equal(t, "track an order", first.Intent)
	assert.Equal(t, models.OutcomeContained, first.Outcome)
	assert.Empty(t, first.TransferReason, "none placeholder should clear the field")
	assert.Equal(t, "resolved on first try", first.Notes)

	second := facts["abc-2"]
	assert.Equal(t, models.OutcomeTransfer, second.Outcome)
	assert.Equal(t, "billing disputes require an agent", second.TransferReason)
}

func TestParseBatchResponseNormalizesOutcomeCase(t *testing.T) {
	response := `=== SESSION: s1 ===
INTENT: reset password
OUTCOME: transfer
TRANSFER_REASON: account locked
`

	facts, err := ParseBatchResponse(response, []string{"s1"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeTransfer, facts["s1"].Outcome)
}

func TestParseBatchResponseStripsCodeFences(t *testing.T) {
	response := "```text\n=== SESSION: s1 ===\nINTENT: cancel subscription\nOUTCOME: Contained\n```"

	facts, err := ParseBatchResponse(response, []string{"s1"})
	require.NoError(t, err)
	assert.Equal(t, "cancel subscription", facts["s1"].Intent)
}

func TestParseBatchResponseFirstSectionWinsOnDuplicates(t *testing.T) {
	response := `=== SESSION: s1 ===
INTENT: first answer
OUTCOME: Contained

=== SESSION: s1 ===
INTENT: second answer
OUTCOME: Transfer
`

	facts, err := ParseBatchResponse(response, []string{"s1"})
	require.NoError(t, err)
	assert.Equal(t, "first answer", facts["s1"].Intent)
	assert.Equal(t, models.OutcomeContained, facts["s1"].Outcome)
}

func TestParseBatchResponseIgnoresUnrequestedSections(t *testing.T) {
	response := `=== SESSION: s1 ===
INTENT: check balance
OUTCOME: Contained

=== SESSION: hallucinated ===
INTENT: made up
OUTCOME: Contained
`

	facts, err := ParseBatchResponse(response, []string{"s1"})
	require.NoError(t, err)
	require.Len(t, facts, 1)
	_, present := facts["hallucinated"]
	assert.False(t, present)
}

func TestParseBatchResponseRejections(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		sessionIDs []string
		wantErr    string
	}{
		{
			name:       "no sections at all",
			response:   "Sorry, I cannot help with that.",
			sessionIDs: []string{"s1"},
			wantErr:    "no session sections",
		},
		{
			name: "missing session",
			response: `=== SESSION: s1 ===
INTENT: a
OUTCOME: Contained
`,
			sessionIDs: []string{"s1", "s2"},
			wantErr:    "missing section for session s2",
		},
		{
			name: "missing intent",
			response: `=== SESSION: s1 ===
OUTCOME: Contained
`,
			sessionIDs: []string{"s1"},
			wantErr:    "missing INTENT",
		},
		{
			name: "missing outcome",
			response: `=== SESSION: s1 ===
INTENT: something
`,
			sessionIDs: []string{"s1"},
			wantErr:    "missing OUTCOME",
		},
		{
			name: "invalid outcome value",
			response: `=== SESSION: s1 ===
INTENT: something
OUTCOME: Escalated
`,
			sessionIDs: []string{"s1"},
			wantErr:    `invalid OUTCOME "Escalated"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBatchResponse(tt.response, tt.sessionIDs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuildPromptCarriesEverySession(t *testing.T) {
	batch := sessions("s1", "s2", "s3")
	prompt := BuildPrompt(batch)

	for _, s := range batch {
		assert.Contains(t, prompt, "--- SESSION "+s.SessionID+" ---")
	}
	assert.Contains(t, prompt, "=== SESSION: <session-id> ===")
}

func TestBuildPromptTruncatesLongTranscripts(t *testing.T) {
	long := session("s1")
	long.Messages = nil
	for i := 0; i < 500; i++ {
		long.Messages = append(long.Messages, models.Message{
			Role: "user",
			Text: strings.Repeat("x", 100),
		})
	}

	prompt := BuildPrompt([]models.SessionRecord{long})
	assert.Contains(t, prompt, "[transcript truncated]")
	assert.Less(t, len(prompt), 10000)
}
