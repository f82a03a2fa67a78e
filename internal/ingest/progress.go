package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/prodimport/internal/domain"
	"github.com/timmy/prodimport/internal/repository"
)

// JobStore persists ingestion jobs. Get, Save and Refresh return
// repository.ErrNotFound for unknown ids.
type JobStore interface {
	Get(ctx context.Context, id string) (*domain.IngestionJob, error)
	Save(ctx context.Context, job *domain.IngestionJob) error
	Refresh(ctx context.Context, job *domain.IngestionJob) error
}

// Tracker owns a job's counters and status while it is processed.
// One job has exactly one writing Tracker at a time.
type Tracker struct {
	store JobStore
	now   func() time.Time
}

// NewTracker creates a Tracker over store.
func NewTracker(store JobStore) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// Start moves a pending job to processing with zeroed counters and the
// estimated total.
func (t *Tracker) Start(ctx context.Context, job *domain.IngestionJob, estimate int) error {
	if job.Status != domain.JobStatusPending {
		return fmt.Errorf("%w: job %s is %s, not pending", domain.ErrInvalidTransition, job.ID, job.Status)
	}
	if err := job.TransitionTo(domain.JobStatusProcessing); err != nil {
		return err
	}
	now := t.now()
	job.TotalRows = estimate
	job.ProcessedRows = 0
	job.FailedRows = 0
	job.ErrorLog = ""
	job.StartedAt = &now
	job.HeartbeatAt = &now
	return t.save(ctx, job)
}

// Advance reloads the job, adds the deltas and refreshes its heartbeat.
func (t *Tracker) Advance(ctx context.Context, job *domain.IngestionJob, processedDelta, failedDelta int) error {
	if err := t.refresh(ctx, job); err != nil {
		return err
	}
	if job.Status != domain.JobStatusProcessing {
		return fmt.Errorf("%w: job %s is %s, not processing", domain.ErrInvalidTransition, job.ID, job.Status)
	}
	now := t.now()
	job.ProcessedRows += processedDelta
	job.FailedRows += failedDelta
	job.HeartbeatAt = &now
	return t.save(ctx, job)
}

// Finish replaces the estimate with the exact total and completes the job.
func (t *Tracker) Finish(ctx context.Context, job *domain.IngestionJob, processedTotal, failedTotal int, samples []string) error {
	if err := t.refresh(ctx, job); err != nil {
		return err
	}
	if err := job.TransitionTo(domain.JobStatusCompleted); err != nil {
		return err
	}
	now := t.now()
	job.ProcessedRows = processedTotal
	job.FailedRows = failedTotal
	job.TotalRows = processedTotal + failedTotal
	job.ErrorLog = strings.Join(samples, "\n")
	job.HeartbeatAt = &now
	job.CompletedAt = &now
	return t.save(ctx, job)
}

// Fail marks the job failed and records cause. A job that no longer exists
// or already reached a terminal state is left alone.
func (t *Tracker) Fail(ctx context.Context, job *domain.IngestionJob, cause error) error {
	if err := t.store.Refresh(ctx, job); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to reload job %s: %w", job.ID, err)
	}
	if job.Status.IsTerminal() {
		return nil
	}
	if err := job.TransitionTo(domain.JobStatusFailed); err != nil {
		return err
	}
	now := t.now()
	if cause != nil {
		if job.ErrorLog != "" {
			job.ErrorLog += "\n"
		}
		job.ErrorLog += cause.Error()
	}
	job.CompletedAt = &now
	if err := t.store.Save(ctx, job); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

func (t *Tracker) refresh(ctx context.Context, job *domain.IngestionJob) error {
	if err := t.store.Refresh(ctx, job); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
		}
		return fmt.Errorf("failed to reload job %s: %w", job.ID, err)
	}
	return nil
}

func (t *Tracker) save(ctx context.Context, job *domain.IngestionJob) error {
	if err := t.store.Save(ctx, job); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
		}
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}
