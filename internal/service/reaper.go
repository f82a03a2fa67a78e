package service

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/prodimport/internal/domain"
	"github.com/timmy/prodimport/internal/ingest"
	"github.com/timmy/prodimport/internal/logger"
	"github.com/timmy/prodimport/internal/repository"
)

// Reaper fails processing jobs whose worker stopped sending heartbeats.
type Reaper struct {
	jobs       *repository.JobRepository
	tracker    *ingest.Tracker
	staleAfter time.Duration
	interval   time.Duration
	now        func() time.Time
}

// NewReaper creates a Reaper. Jobs silent for longer than staleAfter are failed.
func NewReaper(jobs *repository.JobRepository, staleAfter, interval time.Duration) *Reaper {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		jobs:       jobs,
		tracker:    ingest.NewTracker(jobs),
		staleAfter: staleAfter,
		interval:   interval,
		now:        time.Now,
	}
}

// ReapOnce fails every stale job and returns how many it failed.
func (r *Reaper) ReapOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.staleAfter)
	stale, err := r.jobs.ListStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for i := range stale {
		job := &stale[i]
		jctx := logger.SetJobID(ctx, job.ID)

		// The heartbeat may have moved since the listing.
		if err := r.jobs.Refresh(jctx, job); err != nil {
			continue
		}
		if job.Status != domain.JobStatusProcessing || !isStale(job, cutoff) {
			continue
		}

		cause := fmt.Errorf("worker stopped responding; no heartbeat since %s", lastSeen(job).Format(time.RFC3339))
		if err := r.tracker.Fail(jctx, job, cause); err != nil {
			logger.FromContext(jctx).WithError(err).Error("Failed to reap stale job")
			continue
		}
		logger.CtxWarn(jctx, "Reaped stale job")
		reaped++
	}
	return reaped, nil
}

// Run reaps on every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ctx = logger.SetComponent(ctx, "reaper")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if n, err := r.ReapOnce(ctx); err != nil {
			logger.FromContext(ctx).WithError(err).Error("Reap failed")
		} else if n > 0 {
			logger.With(logger.Fields{logger.FieldCount: n}).Info(ctx, "Reaped stale jobs")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func lastSeen(job *domain.IngestionJob) time.Time {
	if job.HeartbeatAt != nil {
		return *job.HeartbeatAt
	}
	return job.UpdatedAt
}

func isStale(job *domain.IngestionJob, cutoff time.Time) bool {
	return lastSeen(job).Before(cutoff)
}
