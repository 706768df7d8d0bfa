package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

func newTestRegistry(sourceFactory SourceFactory) *Registry {
	if sourceFactory == nil {
		sourceFactory = func(creds models.StoreCredentials) (interfaces.SessionSource, error) {
			return &stubSource{}, nil
		}
	}
	inferenceFactory := func(ctx context.Context, config models.AnalysisConfig) (interfaces.InferenceService, error) {
		return &stubInference{}, nil
	}
	return NewRegistry([]int{3, 6, 12, 144}, sourceFactory, inferenceFactory, nil, arbor.NewLogger())
}

func TestGetOrCreateReusesPerBot(t *testing.T) {
	r := newTestRegistry(nil)

	a1 := r.GetOrCreate(models.StoreCredentials{BotID: "bot-a", ClientSecret: "one"})
	a2 := r.GetOrCreate(models.StoreCredentials{BotID: "bot-a", ClientSecret: "one"})
	b := r.GetOrCreate(models.StoreCredentials{BotID: "bot-b", ClientSecret: "two"})

	assert.Same(t, a1, a2, "same bot must share one orchestrator")
	assert.NotSame(t, a1, b, "different bots must not share orchestrators")
	assert.Equal(t, 2, r.Count())
}

func TestGetOrCreateReplacesCredentials(t *testing.T) {
	r := newTestRegistry(nil)

	o := r.GetOrCreate(models.StoreCredentials{BotID: "bot-a", ClientSecret: "old"})
	require.Equal(t, "old", o.credentialSnapshot().ClientSecret)

	same := r.GetOrCreate(models.StoreCredentials{BotID: "bot-a", ClientSecret: "new"})
	assert.Same(t, o, same)
	assert.Equal(t, "new", o.credentialSnapshot().ClientSecret)
}

func TestRunningJobKeepsCredentialSnapshot(t *testing.T) {
	credsSeen := make(chan models.StoreCredentials, 1)
	release := make(chan struct{})

	sourceFactory := func(creds models.StoreCredentials) (interfaces.SessionSource, error) {
		credsSeen <- creds
		<-release
		return &stubSource{sessions: stubSessions("s1", "s2")}, nil
	}

	r := newTestRegistry(sourceFactory)
	o := r.GetOrCreate(models.StoreCredentials{BotID: "bot-a", ClientSecret: "old"})

	job := models.NewAnalysisJob("j1", "a1", models.AnalysisConfig{
		StartDate:   "2026-03-10",
		TargetCount: 2,
		Model:       "claude-sonnet-4",
		APIKey:      "key",
		MinMessages: 2,
		BatchSize:   10,
		Concurrency: 1,
	}, models.StoreCredentials{BotID: "bot-a", ClientSecret: "old"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		o.RunJob(context.Background(), job)
	}()

	// The job snapshots its credentials at start; a replacement arriving
	// while it runs must not affect it.
	got := <-credsSeen
	r.GetOrCreate(models.StoreCredentials{BotID: "bot-a", ClientSecret: "new"})
	close(release)
	<-done

	assert.Equal(t, "old", got.ClientSecret)
	assert.Equal(t, models.JobStatusComplete, job.Snapshot().Status)
	assert.Equal(t, "new", o.credentialSnapshot().ClientSecret)
}

func TestResetDropsOrchestrators(t *testing.T) {
	r := newTestRegistry(nil)
	first := r.GetOrCreate(models.StoreCredentials{BotID: "bot-a", ClientSecret: "s"})
	require.Equal(t, 1, r.Count())

	r.Reset()
	assert.Equal(t, 0, r.Count())

	second := r.GetOrCreate(models.StoreCredentials{BotID: "bot-a", ClientSecret: "s"})
	assert.NotSame(t, first, second, "reset must not resurrect old orchestrators")
}
