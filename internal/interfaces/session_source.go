package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/scrutor/internal/models"
)

// SessionQuery bounds a transcript store listing to one time window.
// End is exclusive.
type SessionQuery struct {
	From            time.Time
	To              time.Time
	ContainmentType string // Optional filter, empty matches all
	Limit           int    // Page size hint, 0 uses the client default
}

// SessionSource abstracts the upstream transcript store. Implementations
// must treat the query window as [From, To) and surface authentication
// failures as ErrInvalidCredentials.
type SessionSource interface {
	// ListSessions returns session headers within the window, transcripts
	// not attached
	ListSessions(ctx context.Context, query SessionQuery) ([]models.SessionRecord, error)

	// ListMessages hydrates transcripts for the given session IDs within
	// the same window. Sessions missing upstream are simply absent from
	// the returned map.
	ListMessages(ctx context.Context, query SessionQuery, sessionIDs []string) (map[string][]models.Message, error)

	// Close releases the underlying transport
	Close() error
}
