package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/prodimport/internal/domain"
)

func TestTracker_StartRequiresPending(t *testing.T) {
	ctx := context.Background()
	job := domain.NewIngestionJob("j1", "f.csv", "f.csv")
	store := newMemJobs(job)
	tracker := NewTracker(store)

	require.NoError(t, tracker.Start(ctx, job, 40))
	stored, _ := store.Get(ctx, "j1")
	assert.Equal(t, domain.JobStatusProcessing, stored.Status)
	assert.Equal(t, 40, stored.TotalRows)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.HeartbeatAt)

	err := tracker.Start(ctx, job, 40)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTracker_AdvanceReloadsBeforeWriting(t *testing.T) {
	ctx := context.Background()
	job := domain.NewIngestionJob("j1", "f.csv", "f.csv")
	store := newMemJobs(job)
	tracker := NewTracker(store)
	require.NoError(t, tracker.Start(ctx, job, 10))

	other, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	require.NoError(t, tracker.Advance(ctx, other, 5, 1))

	// job still holds the pre-advance counters in memory.
	require.NoError(t, tracker.Advance(ctx, job, 2, 0))
	assert.Equal(t, 7, job.ProcessedRows)
	assert.Equal(t, 1, job.FailedRows)

	stored, _ := store.Get(ctx, "j1")
	assert.Equal(t, 7, stored.ProcessedRows)
}

func TestTracker_ProgressIsMonotonic(t *testing.T) {
	ctx := context.Background()
	job := domain.NewIngestionJob("j1", "f.csv", "f.csv")
	store := newMemJobs(job)
	tracker := NewTracker(store)
	require.NoError(t, tracker.Start(ctx, job, 10))

	last := job.ProgressPercentage()
	for _, delta := range []struct{ processed, failed int }{{3, 0}, {0, 2}, {4, 1}, {0, 0}} {
		require.NoError(t, tracker.Advance(ctx, job, delta.processed, delta.failed))
		pct := job.ProgressPercentage()
		assert.GreaterOrEqual(t, pct, last)
		last = pct
	}
	assert.Equal(t, 70.0, last)
}

func TestTracker_FinishUsesExactTotal(t *testing.T) {
	ctx := context.Background()
	job := domain.NewIngestionJob("j1", "f.csv", "f.csv")
	store := newMemJobs(job)
	tracker := NewTracker(store)
	require.NoError(t, tracker.Start(ctx, job, 1000))

	require.NoError(t, tracker.Finish(ctx, job, 8, 2, []string{"line 3: missing name", "line 7: missing sku"}))

	stored, _ := store.Get(ctx, "j1")
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.Equal(t, 10, stored.TotalRows)
	assert.Equal(t, stored.TotalRows, stored.ProcessedRows+stored.FailedRows)
	assert.Equal(t, "line 3: missing name\nline 7: missing sku", stored.ErrorLog)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, 80.0, stored.ProgressPercentage())
}

func TestTracker_Fail(t *testing.T) {
	ctx := context.Background()

	t.Run("marks failed and records cause", func(t *testing.T) {
		job := domain.NewIngestionJob("j1", "f.csv", "f.csv")
		store := newMemJobs(job)
		require.NoError(t, NewTracker(store).Fail(ctx, job, ErrSourceMissing))

		stored, _ := store.Get(ctx, "j1")
		assert.Equal(t, domain.JobStatusFailed, stored.Status)
		assert.Contains(t, stored.ErrorLog, "source file missing")
		assert.Zero(t, stored.ProcessedRows)
		assert.Zero(t, stored.FailedRows)
	})

	t.Run("deleted job is a no-op", func(t *testing.T) {
		job := domain.NewIngestionJob("j1", "f.csv", "f.csv")
		store := newMemJobs(job)
		store.delete("j1")
		assert.NoError(t, NewTracker(store).Fail(ctx, job, errors.New("boom")))
	})

	t.Run("completed job is not regressed", func(t *testing.T) {
		job := domain.NewIngestionJob("j1", "f.csv", "f.csv")
		store := newMemJobs(job)
		tracker := NewTracker(store)
		require.NoError(t, tracker.Start(ctx, job, 1))
		require.NoError(t, tracker.Finish(ctx, job, 1, 0, nil))

		require.NoError(t, tracker.Fail(ctx, job, errors.New("late")))
		stored, _ := store.Get(ctx, "j1")
		assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	})
}

func TestTracker_AdvanceOnDeletedJob(t *testing.T) {
	ctx := context.Background()
	job := domain.NewIngestionJob("j1", "f.csv", "f.csv")
	store := newMemJobs(job)
	tracker := NewTracker(store)
	require.NoError(t, tracker.Start(ctx, job, 1))

	store.delete("j1")
	assert.ErrorIs(t, tracker.Advance(ctx, job, 1, 0), ErrJobNotFound)
}
