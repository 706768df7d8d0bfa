package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

func newJob(id string) *models.AnalysisJob {
	return models.NewAnalysisJob(id, "analysis-"+id, models.AnalysisConfig{
		StartDate:   "2026-03-10",
		TargetCount: 10,
		Model:       "claude-sonnet-4",
		APIKey:      "key",
	}, models.StoreCredentials{BotID: "bot-a"})
}

func TestEnqueueRunsJob(t *testing.T) {
	q := New(arbor.NewLogger())
	job := newJob("j1")

	err := q.Enqueue(job, func(ctx context.Context, j *models.AnalysisJob) {
		j.MarkRunning()
		j.MarkComplete(nil, &models.AnalysisSummary{})
	})
	require.NoError(t, err)
	require.NoError(t, q.WaitForJob("j1"))

	snap, err := q.GetJob("j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusComplete, snap.Status)
}

func TestEnqueueRejectsDuplicateID(t *testing.T) {
	q := New(arbor.NewLogger())
	noop := func(ctx context.Context, j *models.AnalysisJob) {
		j.MarkComplete(nil, &models.AnalysisSummary{})
	}

	require.NoError(t, q.Enqueue(newJob("j1"), noop))
	assert.Error(t, q.Enqueue(newJob("j1"), noop))
	require.NoError(t, q.WaitForJob("j1"))
}

func TestGetJobUnknownID(t *testing.T) {
	q := New(arbor.NewLogger())
	_, err := q.GetJob("missing")
	assert.ErrorIs(t, err, interfaces.ErrJobNotFound)
}

func TestCancelFlipsJobContext(t *testing.T) {
	q := New(arbor.NewLogger())
	job := newJob("j1")

	started := make(chan struct{})
	err := q.Enqueue(job, func(ctx context.Context, j *models.AnalysisJob) {
		j.MarkRunning()
		close(started)
		<-ctx.Done()
		j.MarkCancelled()
	})
	require.NoError(t, err)

	<-started
	require.NoError(t, q.Cancel("j1"))
	require.NoError(t, q.WaitForJob("j1"))

	snap, err := q.GetJob("j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, snap.Status)
}

func TestCancelTerminalJobIsNoOp(t *testing.T) {
	q := New(arbor.NewLogger())
	job := newJob("j1")

	require.NoError(t, q.Enqueue(job, func(ctx context.Context, j *models.AnalysisJob) {
		j.MarkComplete(nil, &models.AnalysisSummary{})
	}))
	require.NoError(t, q.WaitForJob("j1"))

	// Cancel after completion is acknowledged, not an error, and the
	// status stays complete.
	require.NoError(t, q.Cancel("j1"))

	snap, err := q.GetJob("j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusComplete, snap.Status)
}

func TestJobNeverStuckRunning(t *testing.T) {
	q := New(arbor.NewLogger())

	// Run body returns without sealing the job.
	require.NoError(t, q.Enqueue(newJob("forgot"), func(ctx context.Context, j *models.AnalysisJob) {
		j.MarkRunning()
	}))
	require.NoError(t, q.WaitForJob("forgot"))

	snap, err := q.GetJob("forgot")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusError, snap.Status)
	assert.Contains(t, snap.Error, "without a terminal status")

	// Run body panics.
	require.NoError(t, q.Enqueue(newJob("panicked"), func(ctx context.Context, j *models.AnalysisJob) {
		j.MarkRunning()
		panic("boom")
	}))
	require.NoError(t, q.WaitForJob("panicked"))

	snap, err = q.GetJob("panicked")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusError, snap.Status)
	assert.Contains(t, snap.Error, "boom")
}

func TestListJobsNewestFirst(t *testing.T) {
	q := New(arbor.NewLogger())
	noop := func(ctx context.Context, j *models.AnalysisJob) {
		j.MarkComplete(nil, &models.AnalysisSummary{})
	}

	for _, id := range []string{"j1", "j2", "j3"} {
		require.NoError(t, q.Enqueue(newJob(id), noop))
		require.NoError(t, q.WaitForJob(id))
	}

	snaps := q.ListJobs()
	require.Len(t, snaps, 3)
	assert.Equal(t, "j3", snaps[0].ID)
	assert.Equal(t, "j2", snaps[1].ID)
	assert.Equal(t, "j1", snaps[2].ID)
}

func TestDestroyReleasesRegistry(t *testing.T) {
	q := New(arbor.NewLogger())
	job := newJob("j1")

	started := make(chan struct{})
	finished := make(chan struct{})
	require.NoError(t, q.Enqueue(job, func(ctx context.Context, j *models.AnalysisJob) {
		j.MarkRunning()
		close(started)
		<-ctx.Done()
		j.MarkCancelled()
		close(finished)
	}))
	<-started

	q.Destroy()

	// Old IDs are gone immediately.
	_, err := q.GetJob("j1")
	assert.ErrorIs(t, err, interfaces.ErrJobNotFound)
	assert.Equal(t, 0, q.Count())

	// The running goroutine observed its cancelled context.
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("destroyed job goroutine did not observe cancellation")
	}
	assert.Equal(t, models.JobStatusCancelled, job.Snapshot().Status)
}

func TestQueueUsableAfterDestroy(t *testing.T) {
	q := New(arbor.NewLogger())
	noop := func(ctx context.Context, j *models.AnalysisJob) {
		j.MarkComplete(nil, &models.AnalysisSummary{})
	}

	require.NoError(t, q.Enqueue(newJob("before"), noop))
	require.NoError(t, q.WaitForJob("before"))
	q.Destroy()

	// The registry re-initializes lazily on the next enqueue.
	require.NoError(t, q.Enqueue(newJob("after"), noop))
	require.NoError(t, q.WaitForJob("after"))

	snap, err := q.GetJob("after")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusComplete, snap.Status)
	assert.Equal(t, 1, q.Count())
}

func TestAdoptImportedJob(t *testing.T) {
	q := New(arbor.NewLogger())

	report := &models.AnalysisReport{
		SchemaVersion: models.ReportSchemaVersion,
		AnalysisID:    "analysis-9",
		BotID:         "bot-a",
		GeneratedAt:   time.Now(),
		Summary:       models.AnalysisSummary{TotalSessions: 1, AnalyzedSessions: 1},
		Results:       []models.AnalysisResult{{SessionID: "s1", Analyzed: true}},
	}
	job := models.ImportedJob("imported-1", report)

	require.NoError(t, q.Adopt(job))

	snap, err := q.GetJob("imported-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusComplete, snap.Status)

	// Adopted jobs have no goroutine; waiting returns immediately.
	require.NoError(t, q.WaitForJob("imported-1"))
}

func TestAdoptRejectsNonTerminalJob(t *testing.T) {
	q := New(arbor.NewLogger())
	assert.Error(t, q.Adopt(newJob("live")))
}
