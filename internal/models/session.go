// -----------------------------------------------------------------------
// Session Record - Conversational session sourced from the transcript store
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// Containment types classify how a session ended.
const (
	// ContainmentSelfService - the bot resolved the conversation without a human
	ContainmentSelfService = "selfService"
	// ContainmentAgent - the session was transferred to a human agent
	ContainmentAgent = "agent"
	// ContainmentDropOff - the user abandoned the conversation
	ContainmentDropOff = "dropOff"
)

// Message is a single turn in a session transcript.
type Message struct {
	Role      string    `json:"role"` // "user" or "bot"
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionRecord is one end-to-end user conversation with a bot, sourced
// verbatim from the upstream transcript store. The sampler filters and
// deduplicates records but never mutates them.
type SessionRecord struct {
	SessionID       string    `json:"session_id"` // Unique key for deduplication
	UserID          string    `json:"user_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	ContainmentType string    `json:"containment_type"`
	Messages        []Message `json:"messages"`
}

// MessageCount returns the number of turns in the session transcript.
func (s *SessionRecord) MessageCount() int {
	return len(s.Messages)
}

// WithMessages returns a copy of the record carrying the given transcript.
// Store listings arrive without message bodies; transcripts are attached
// after a separate messages call.
func (s SessionRecord) WithMessages(messages []Message) SessionRecord {
	s.Messages = messages
	return s
}
