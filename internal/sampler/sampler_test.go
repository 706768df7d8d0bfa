package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

var testStart = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// scriptedSource serves canned listings keyed by window duration in hours,
// so each ladder step can answer differently.
type scriptedSource struct {
	headersByHours     map[int][]models.SessionRecord
	errByHours         map[int]error
	transcriptsByHours map[int]map[string][]models.Message
	msgErrByHours      map[int]error

	listCalls []int
	msgCalls  int
}

func (s *scriptedSource) hours(q interfaces.SessionQuery) int {
	return int(q.To.Sub(q.From).Hours())
}

func (s *scriptedSource) ListSessions(ctx context.Context, q interfaces.SessionQuery) ([]models.SessionRecord, error) {
	h := s.hours(q)
	s.listCalls = append(s.listCalls, h)
	if err := s.errByHours[h]; err != nil {
		return nil, err
	}
	return s.headersByHours[h], nil
}

func (s *scriptedSource) ListMessages(ctx context.Context, q interfaces.SessionQuery, sessionIDs []string) (map[string][]models.Message, error) {
	s.msgCalls++
	h := s.hours(q)
	if err := s.msgErrByHours[h]; err != nil {
		return nil, err
	}
	out := make(map[string][]models.Message, len(sessionIDs))
	for _, id := range sessionIDs {
		if msgs, ok := s.transcriptsByHours[h][id]; ok {
			out[id] = msgs
		}
	}
	return out, nil
}

func (s *scriptedSource) Close() error { return nil }

func header(id string) models.SessionRecord {
	return models.SessionRecord{
		SessionID: id,
		UserID:    "user-" + id,
		StartTime: testStart.Add(10 * time.Minute),
	}
}

func turns(n int) []models.Message {
	msgs := make([]models.Message, n)
	for i := range msgs {
		role := "user"
		if i%2 == 1 {
			role = "bot"
		}
		msgs[i] = models.Message{Role: role, Text: "turn", CreatedAt: testStart}
	}
	return msgs
}

func transcripts(ids []string, n int) map[string][]models.Message {
	out := make(map[string][]models.Message, len(ids))
	for _, id := range ids {
		out[id] = turns(n)
	}
	return out
}

func newTestSampler(source interfaces.SessionSource) *Sampler {
	return New(source, []int{3, 6, 12, 144}, arbor.NewLogger())
}

func TestSampleStopsAtTarget(t *testing.T) {
	ids := []string{"s1", "s2", "s3", "s4", "s5"}
	source := &scriptedSource{
		headersByHours: map[int][]models.SessionRecord{
			3: {header("s1"), header("s2"), header("s3"), header("s4"), header("s5")},
			6: {header("x1"), header("x2")},
		},
		transcriptsByHours: map[int]map[string][]models.Message{
			3: transcripts(ids, 4),
		},
	}

	result, err := newTestSampler(source).Sample(context.Background(), Request{
		Start:       testStart,
		TargetCount: 5,
		MinMessages: 2,
	}, nil)
	require.NoError(t, err)

	assert.Len(t, result.Sessions, 5)
	assert.Equal(t, 1, result.WindowsSearched)
	// The 6h window must never be queried once the target is reached.
	assert.Equal(t, []int{3}, source.listCalls)
	assert.Equal(t, 1, source.msgCalls)
}

func TestSampleExpandsAcrossWindows(t *testing.T) {
	firstWindow := []models.SessionRecord{header("s1"), header("s2"), header("s3")}
	// The wider window re-lists the first three and adds four more.
	secondWindow := append(append([]models.SessionRecord{}, firstWindow...),
		header("s4"), header("s5"), header("s6"), header("s7"))

	source := &scriptedSource{
		headersByHours: map[int][]models.SessionRecord{
			3: firstWindow,
			6: secondWindow,
		},
		transcriptsByHours: map[int]map[string][]models.Message{
			3: transcripts([]string{"s1", "s2", "s3"}, 3),
			6: transcripts([]string{"s4", "s5", "s6", "s7"}, 3),
		},
	}

	var progressLabels []string
	result, err := newTestSampler(source).Sample(context.Background(), Request{
		Start:       testStart,
		TargetCount: 5,
		MinMessages: 2,
	}, func(found int, label string) {
		progressLabels = append(progressLabels, label)
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.WindowsSearched)
	assert.Equal(t, 7, result.TotalFound)
	require.Len(t, result.Sessions, 5)

	// First-discovery order: the narrow window's sessions first, then the
	// wider window's additions in listing order.
	gotIDs := make([]string, len(result.Sessions))
	for i, s := range result.Sessions {
		gotIDs[i] = s.SessionID
	}
	assert.Equal(t, []string{"s1", "s2", "s3", "s4", "s5"}, gotIDs)

	require.Len(t, result.Windows, 2)
	assert.Equal(t, 3, result.Windows[0].Found)
	assert.Equal(t, 3, result.Windows[0].Kept)
	assert.Equal(t, 7, result.Windows[1].Found)
	assert.Equal(t, 4, result.Windows[1].Kept)

	assert.Equal(t, []string{"3h", "6h"}, progressLabels)
}

func TestSampleWindowErrorContributesNothing(t *testing.T) {
	source := &scriptedSource{
		headersByHours: map[int][]models.SessionRecord{
			6: {header("s1"), header("s2")},
		},
		errByHours: map[int]error{
			3: errors.New("store returned 500"),
		},
		transcriptsByHours: map[int]map[string][]models.Message{
			6: transcripts([]string{"s1", "s2"}, 3),
		},
	}

	result, err := newTestSampler(source).Sample(context.Background(), Request{
		Start:       testStart,
		TargetCount: 2,
		MinMessages: 2,
	}, nil)
	require.NoError(t, err)

	assert.Len(t, result.Sessions, 2)
	assert.Equal(t, 2, result.WindowsSearched)
	require.Len(t, result.Windows, 2)
	assert.Equal(t, 0, result.Windows[0].Found)
	assert.Equal(t, 0, result.Windows[0].Kept)
}

func TestSampleCredentialErrorAborts(t *testing.T) {
	source := &scriptedSource{
		errByHours: map[int]error{
			3: interfaces.ErrInvalidCredentials,
		},
	}

	result, err := newTestSampler(source).Sample(context.Background(), Request{
		Start:       testStart,
		TargetCount: 5,
		MinMessages: 2,
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrInvalidCredentials)
	assert.Nil(t, result)
	// No wider window is tried after a credential rejection.
	assert.Equal(t, []int{3}, source.listCalls)
}

func TestSampleFilterReEvaluatesInWiderWindow(t *testing.T) {
	source := &scriptedSource{
		headersByHours: map[int][]models.SessionRecord{
			3: {header("s1"), header("s2")},
			6: {header("s1"), header("s2")},
		},
		transcriptsByHours: map[int]map[string][]models.Message{
			// s1 is a one-message stub inside the narrow window.
			3: {"s1": turns(1), "s2": turns(3)},
			// The wider window hydrates the rest of its transcript.
			6: {"s1": turns(4), "s2": turns(3)},
		},
	}

	result, err := newTestSampler(source).Sample(context.Background(), Request{
		Start:       testStart,
		TargetCount: 2,
		MinMessages: 2,
	}, nil)
	require.NoError(t, err)

	require.Len(t, result.Sessions, 2)
	assert.Equal(t, "s2", result.Sessions[0].SessionID)
	assert.Equal(t, "s1", result.Sessions[1].SessionID)
	assert.Equal(t, 4, result.Sessions[1].MessageCount())
}

func TestSampleDedupesWithinOneListing(t *testing.T) {
	source := &scriptedSource{
		headersByHours: map[int][]models.SessionRecord{
			3: {header("s1"), header("s1"), header("s2")},
		},
		transcriptsByHours: map[int]map[string][]models.Message{
			3: transcripts([]string{"s1", "s2"}, 3),
		},
	}

	result, err := newTestSampler(source).Sample(context.Background(), Request{
		Start:       testStart,
		TargetCount: 5,
		MinMessages: 2,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalFound)
	require.Len(t, result.Windows, 4)
	assert.Equal(t, 3, result.Windows[0].Found)
	assert.Equal(t, 2, result.Windows[0].Kept)
}

func TestSampleLadderExhaustedReturnsWhatItHas(t *testing.T) {
	source := &scriptedSource{
		headersByHours: map[int][]models.SessionRecord{
			3: {header("s1")},
		},
		transcriptsByHours: map[int]map[string][]models.Message{
			3: transcripts([]string{"s1"}, 3),
		},
	}

	result, err := newTestSampler(source).Sample(context.Background(), Request{
		Start:       testStart,
		TargetCount: 10,
		MinMessages: 2,
	}, nil)
	require.NoError(t, err)

	// A short sample is not an error; the caller decides what to do with it.
	assert.Len(t, result.Sessions, 1)
	assert.Equal(t, 4, result.WindowsSearched)
	assert.Equal(t, []int{3, 6, 12, 144}, source.listCalls)
}

func TestSampleMissingTranscriptFilteredOut(t *testing.T) {
	source := &scriptedSource{
		headersByHours: map[int][]models.SessionRecord{
			3: {header("s1"), header("s2")},
		},
		transcriptsByHours: map[int]map[string][]models.Message{
			// s2 vanished between listing and hydration.
			3: {"s1": turns(3)},
		},
	}

	result, err := newTestSampler(source).Sample(context.Background(), Request{
		Start:       testStart,
		TargetCount: 2,
		MinMessages: 2,
	}, nil)
	require.NoError(t, err)

	require.Len(t, result.Sessions, 1)
	assert.Equal(t, "s1", result.Sessions[0].SessionID)
}

func TestSampleCancelledBetweenWindows(t *testing.T) {
	source := &scriptedSource{
		headersByHours: map[int][]models.SessionRecord{
			3: {header("s1")},
			6: {header("s2")},
		},
		transcriptsByHours: map[int]map[string][]models.Message{
			3: transcripts([]string{"s1"}, 3),
			6: transcripts([]string{"s2"}, 3),
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	result, err := newTestSampler(source).Sample(ctx, Request{
		Start:       testStart,
		TargetCount: 5,
		MinMessages: 2,
	}, func(found int, label string) {
		cancel()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// The checkpoint fires before the second window, so the first window's
	// sessions survive the cancel.
	require.NotNil(t, result)
	assert.Len(t, result.Sessions, 1)
	assert.Equal(t, []int{3}, source.listCalls)
}

// cancelDuringList cancels the job context while a listing is in
// flight, and records whether the context the store call received was
// affected.
type cancelDuringList struct {
	*scriptedSource
	cancel    context.CancelFunc
	sawCancel bool
}

func (c *cancelDuringList) ListSessions(ctx context.Context, q interfaces.SessionQuery) ([]models.SessionRecord, error) {
	headers, err := c.scriptedSource.ListSessions(ctx, q)
	c.cancel()
	if ctx.Err() != nil {
		c.sawCancel = true
	}
	return headers, err
}

func (c *cancelDuringList) ListMessages(ctx context.Context, q interfaces.SessionQuery, sessionIDs []string) (map[string][]models.Message, error) {
	if ctx.Err() != nil {
		c.sawCancel = true
	}
	return c.scriptedSource.ListMessages(ctx, q, sessionIDs)
}

func TestSampleCancelMidFlightCompletesStoreCalls(t *testing.T) {
	inner := &scriptedSource{
		headersByHours: map[int][]models.SessionRecord{
			3: {header("s1")},
			6: {header("s2")},
		},
		transcriptsByHours: map[int]map[string][]models.Message{
			3: transcripts([]string{"s1"}, 3),
			6: transcripts([]string{"s2"}, 3),
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := &cancelDuringList{scriptedSource: inner, cancel: cancel}

	result, err := newTestSampler(source).Sample(ctx, Request{
		Start:       testStart,
		TargetCount: 5,
		MinMessages: 2,
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// The cancel landed while the first window's listing was in flight.
	// The store calls must not be aborted: the window still completes,
	// hydration included, and the cancel takes effect at the checkpoint
	// before the second window.
	assert.False(t, source.sawCancel, "store call context was cancelled mid-flight")
	require.NotNil(t, result)
	assert.Len(t, result.Sessions, 1)
	assert.Equal(t, []int{3}, inner.listCalls)
	assert.Equal(t, 1, inner.msgCalls)
}

func TestSampleRejectsNonPositiveTarget(t *testing.T) {
	_, err := newTestSampler(&scriptedSource{}).Sample(context.Background(), Request{
		Start:       testStart,
		TargetCount: 0,
	}, nil)
	require.Error(t, err)
}
