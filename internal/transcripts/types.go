// Package transcripts provides a client for the upstream transcript store.
// This package centralizes all store interactions: session listing, message
// hydration, authentication and paging.
package transcripts

import (
	"fmt"
	"time"

	"github.com/ternarybob/scrutor/internal/models"
)

const (
	// AuthModeToken sends the client secret as a static bearer token.
	AuthModeToken = "token"

	// AuthModeOAuth2 exchanges client credentials for an access token at
	// the store's token endpoint.
	AuthModeOAuth2 = "oauth2"
)

// APIError represents an error from the transcript store API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("transcript store error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// RateLimitError represents a throttling response from the store.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("transcript store rate limit exceeded, retry after %v", e.RetryAfter)
}

// sessionPage is one page of the session listing endpoint.
type sessionPage struct {
	Sessions []sessionDTO `json:"sessions"`
	Total    int          `json:"total"`
}

// sessionDTO is the wire form of a session header.
type sessionDTO struct {
	SessionID       string    `json:"sessionId"`
	UserID          string    `json:"userId"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	ContainmentType string    `json:"containmentType"`
}

func (d sessionDTO) toRecord() models.SessionRecord {
	return models.SessionRecord{
		SessionID:       d.SessionID,
		UserID:          d.UserID,
		StartTime:       d.StartTime,
		EndTime:         d.EndTime,
		ContainmentType: d.ContainmentType,
	}
}

// messagePage is one page of the message listing endpoint.
type messagePage struct {
	Messages []messageDTO `json:"messages"`
}

// messageDTO is the wire form of a transcript message.
type messageDTO struct {
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func (d messageDTO) toMessage() models.Message {
	return models.Message{
		Role:      d.Role,
		Text:      d.Text,
		CreatedAt: d.CreatedAt,
	}
}
