// Package sampler implements progressive time-window session discovery:
// an expanding ladder of windows, all anchored at the same start instant,
// searched in order until enough distinct sessions are found or the
// ladder is exhausted.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// ProgressFunc receives the running count of kept sessions after each
// window is searched.
type ProgressFunc func(sessionsFound int, windowLabel string)

// Request carries the per-job sampling parameters.
type Request struct {
	Start           time.Time
	TargetCount     int
	MinMessages     int
	ContainmentType string
}

// Result is the outcome of one sampling run. TotalFound counts distinct
// kept sessions before truncation to the target.
type Result struct {
	Sessions        []models.SessionRecord
	WindowsSearched int
	TotalFound      int
	Windows         []models.WindowReport
}

// Sampler searches the window ladder against one session source.
type Sampler struct {
	source      interfaces.SessionSource
	windowHours []int
	logger      arbor.ILogger
}

// New creates a sampler over the given source and ladder durations.
func New(source interfaces.SessionSource, windowHours []int, logger arbor.ILogger) *Sampler {
	return &Sampler{
		source:      source,
		windowHours: windowHours,
		logger:      logger,
	}
}

// Sample searches the ladder until targetCount distinct sessions pass the
// filter or every window has been tried. Store failures on a window are
// logged and the window contributes nothing; only credential rejection or
// cancellation stops the search. Returning fewer sessions than requested
// is not an error, callers branch on the result size.
//
// Sessions are kept in first-discovery order: listing order within a
// window, windows in ladder order. A session already kept is never
// re-added by a later window; a session previously discarded by the
// filter is re-evaluated when a wider window is searched, since the wider
// window may hydrate more of its transcript.
func (s *Sampler) Sample(ctx context.Context, req Request, onProgress ProgressFunc) (*Result, error) {
	if req.TargetCount <= 0 {
		return nil, fmt.Errorf("target count must be positive, got %d", req.TargetCount)
	}

	windows, err := models.BuildWindowLadder(req.Start, s.windowHours)
	if err != nil {
		return nil, fmt.Errorf("invalid window ladder: %w", err)
	}

	result := &Result{}
	collected := make([]models.SessionRecord, 0, req.TargetCount)
	collectedIDs := make(map[string]bool)

	// Cancellation is observed only at the per-window checkpoint below;
	// in-flight store calls are never aborted mid-flight. The source's
	// own timeouts bound them.
	callCtx := context.WithoutCancel(ctx)

	finish := func() *Result {
		result.TotalFound = len(collected)
		if len(collected) > req.TargetCount {
			collected = collected[:req.TargetCount]
		}
		result.Sessions = collected
		return result
	}

	for _, window := range windows {
		// Short-circuit: enough sessions, later wider windows are not queried
		if len(collected) >= req.TargetCount {
			break
		}

		// Cancellation checkpoint before each ladder step
		if err := ctx.Err(); err != nil {
			return finish(), err
		}

		result.WindowsSearched++
		report := models.WindowReport{Label: window.Label, Duration: window.Duration}

		query := interfaces.SessionQuery{
			From:            window.Start,
			To:              window.End,
			ContainmentType: req.ContainmentType,
		}

		headers, err := s.source.ListSessions(callCtx, query)
		if err != nil {
			if errors.Is(err, interfaces.ErrInvalidCredentials) {
				return nil, err
			}
			s.logger.Warn().
				Err(err).
				Str("window", window.Label).
				Msg("Window query failed, continuing with next window")
			result.Windows = append(result.Windows, report)
			continue
		}
		report.Found = len(headers)

		// Dedupe against sessions already kept
		var fresh []models.SessionRecord
		var freshIDs []string
		for _, h := range headers {
			if collectedIDs[h.SessionID] {
				continue
			}
			fresh = append(fresh, h)
			freshIDs = append(freshIDs, h.SessionID)
		}

		if len(fresh) == 0 {
			result.Windows = append(result.Windows, report)
			continue
		}

		transcripts, err := s.source.ListMessages(callCtx, query, freshIDs)
		if err != nil {
			if errors.Is(err, interfaces.ErrInvalidCredentials) {
				return nil, err
			}
			s.logger.Warn().
				Err(err).
				Str("window", window.Label).
				Msg("Transcript hydration failed, continuing with next window")
			result.Windows = append(result.Windows, report)
			continue
		}

		for _, h := range fresh {
			if collectedIDs[h.SessionID] {
				// Duplicate ID within one listing
				continue
			}
			session := h.WithMessages(transcripts[h.SessionID])
			if session.MessageCount() < req.MinMessages {
				continue
			}
			collected = append(collected, session)
			collectedIDs[session.SessionID] = true
			report.Kept++
		}

		result.Windows = append(result.Windows, report)

		s.logger.Debug().
			Str("window", window.Label).
			Int("found", report.Found).
			Int("kept", report.Kept).
			Int("collected", len(collected)).
			Msg("Window searched")

		if onProgress != nil {
			onProgress(len(collected), window.Label)
		}
	}

	return finish(), nil
}
