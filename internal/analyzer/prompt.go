package analyzer

import (
	"fmt"
	"strings"

	"github.com/ternarybob/scrutor/internal/models"
)

// transcriptCharLimit caps how much of one session's transcript goes
// into the prompt. Long sessions are cut, not dropped.
const transcriptCharLimit = 6000

// BuildPrompt creates the fact-extraction prompt for one batch. The
// response format it demands is the one ParseBatchResponse accepts.
func BuildPrompt(sessions []models.SessionRecord) string {
	var sb strings.Builder

	sb.WriteString(`You are an expert conversation analyst reviewing chatbot session transcripts.

For every session below, extract the user's primary intent and how the session ended.

CRITICAL RULES:
1. Output one section per session, in the exact format shown, covering EVERY session listed
2. OUTCOME must be exactly "Transfer" or "Contained" - no other values
3. TRANSFER_REASON describes why the session was handed to a human agent; write "none" when OUTCOME is Contained
4. DROP_OFF names the point where the user abandoned the conversation; write "none" if they did not
5. Base every field on the transcript alone - never invent details
6. No commentary outside the session sections

`)

	for _, session := range sessions {
		sb.WriteString(fmt.Sprintf("\n--- SESSION %s ---\n", session.SessionID))
		sb.WriteString(fmt.Sprintf("containment: %s\n", session.ContainmentType))
		sb.WriteString(fmt.Sprintf("messages: %d\n", session.MessageCount()))
		sb.WriteString(renderTranscript(session.Messages))
	}

	sb.WriteString(`
---
OUTPUT FORMAT (repeat for each session):
=== SESSION: <session-id> ===
INTENT: <the user's primary goal, one line>
OUTCOME: Transfer|Contained
TRANSFER_REASON: <reason or none>
DROP_OFF: <where the user left, or none>
NOTES: <anything notable, one line>
`)

	return sb.String()
}

// renderTranscript flattens a message sequence into role-prefixed lines,
// cut at the per-session character limit.
func renderTranscript(messages []models.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		line := fmt.Sprintf("%s: %s\n", msg.Role, strings.TrimSpace(msg.Text))
		if sb.Len()+len(line) > transcriptCharLimit {
			sb.WriteString("[transcript truncated]\n")
			break
		}
		sb.WriteString(line)
	}
	return sb.String()
}
