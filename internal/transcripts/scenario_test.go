package transcripts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// Sessions deliberately listed out of order; the store sorts by start
// time and serves deterministic listings.
const scenarioYAML = `sessions:
  - session_id: s2
    user_id: u2
    start_time: 2026-03-10T02:00:00Z
    end_time: 2026-03-10T02:10:00Z
    containment_type: agent
    messages:
      - role: user
        text: I need a human
        at: 2026-03-10T02:00:00Z
      - role: bot
        text: transferring you now
        at: 2026-03-10T02:01:00Z
  - session_id: s1
    user_id: u1
    start_time: 2026-03-10T01:00:00Z
    end_time: 2026-03-10T01:08:00Z
    containment_type: selfService
    messages:
      - role: user
        text: where is my order
        at: 2026-03-10T01:00:00Z
      - role: bot
        text: it ships tomorrow
        at: 2026-03-10T01:01:00Z
      - role: user
        text: thanks
        at: 2026-03-10T01:02:00Z
  - session_id: s3
    user_id: u3
    start_time: 2026-03-10T03:00:00Z
    end_time: 2026-03-10T03:01:00Z
    containment_type: dropOff
    messages:
      - role: user
        text: hello?
        at: 2026-03-10T03:00:00Z
`

func writeScenario(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenarioYAML), 0o644))
	return path
}

func wideQuery() interfaces.SessionQuery {
	return interfaces.SessionQuery{
		From: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
	}
}

func TestLoadScenarioOrdersSessions(t *testing.T) {
	store, err := LoadScenario(writeScenario(t))
	require.NoError(t, err)

	records, err := store.ListSessions(context.Background(), wideQuery())
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, "s1", records[0].SessionID)
	assert.Equal(t, "s2", records[1].SessionID)
	assert.Equal(t, "s3", records[2].SessionID)

	for _, r := range records {
		assert.Empty(t, r.Messages, "listings carry headers only")
	}
	assert.Equal(t, "u1", records[0].UserID)
	assert.Equal(t, models.ContainmentAgent, records[1].ContainmentType)
}

func TestScenarioWindowBoundsAreHalfOpen(t *testing.T) {
	store, err := LoadScenario(writeScenario(t))
	require.NoError(t, err)

	// [s1 start, s3 start): s1 included, s3 excluded.
	query := interfaces.SessionQuery{
		From: time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC),
	}
	records, err := store.ListSessions(context.Background(), query)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "s1", records[0].SessionID)
	assert.Equal(t, "s2", records[1].SessionID)
}

func TestScenarioContainmentFilter(t *testing.T) {
	store, err := LoadScenario(writeScenario(t))
	require.NoError(t, err)

	query := wideQuery()
	query.ContainmentType = models.ContainmentAgent
	records, err := store.ListSessions(context.Background(), query)
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "s2", records[0].SessionID)
}

func TestScenarioListingLimit(t *testing.T) {
	store, err := LoadScenario(writeScenario(t))
	require.NoError(t, err)

	query := wideQuery()
	query.Limit = 1
	records, err := store.ListSessions(context.Background(), query)
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "s1", records[0].SessionID, "the limit keeps the earliest sessions")
}

func TestScenarioListMessages(t *testing.T) {
	store, err := LoadScenario(writeScenario(t))
	require.NoError(t, err)

	result, err := store.ListMessages(context.Background(), wideQuery(), []string{"s1", "s3", "missing"})
	require.NoError(t, err)

	require.Len(t, result, 2)
	require.Len(t, result["s1"], 3)
	assert.Equal(t, "where is my order", result["s1"][0].Text)
	assert.Equal(t, "bot", result["s1"][1].Role)
	require.Len(t, result["s3"], 1)

	// Sessions outside the query window stay hidden even when requested.
	narrow := interfaces.SessionQuery{
		From: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC),
	}
	result, err = store.ListMessages(context.Background(), narrow, []string{"s1", "s3"})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Contains(t, result, "s1")
}

func TestScenarioStoreTieBreaksOnSessionID(t *testing.T) {
	at := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	store := NewScenarioStore([]models.SessionRecord{
		{SessionID: "bb", StartTime: at},
		{SessionID: "aa", StartTime: at},
	})

	records, err := store.ListSessions(context.Background(), wideQuery())
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "aa", records[0].SessionID)
	assert.Equal(t, "bb", records[1].SessionID)
}

func TestLoadScenarioRejectsSessionWithoutID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sessions:\n  - user_id: u1\n"), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session without session_id")
}

func TestNewSourceMockMode(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Store.Mode = "mock"
	config.Store.ScenarioFile = writeScenario(t)

	source, err := NewSource(config, models.StoreCredentials{BotID: "ignored"}, arbor.NewLogger())
	require.NoError(t, err)
	defer source.Close()

	_, ok := source.(*ScenarioStore)
	assert.True(t, ok, "mock mode serves the YAML scenario")
}

func TestNewSourceHTTPUsesConfigFallbacks(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Store.BaseURL = "http://store.local"

	source, err := NewSource(config, models.StoreCredentials{
		BotID:        "bot-a",
		ClientSecret: "secret",
	}, arbor.NewLogger())
	require.NoError(t, err)
	defer source.Close()

	client, ok := source.(*Client)
	require.True(t, ok)
	assert.Equal(t, "http://store.local", client.baseURL)
}
