package service

import (
	"context"
	"errors"

	"github.com/timmy/prodimport/internal/domain"
	"github.com/timmy/prodimport/internal/events"
	"github.com/timmy/prodimport/internal/ingest"
	"github.com/timmy/prodimport/internal/logger"
	"github.com/timmy/prodimport/internal/repository"
)

// ImportResult is the payload of the product_imported event.
type ImportResult struct {
	JobID         string           `json:"job_id"`
	FileName      string           `json:"file_name"`
	Status        domain.JobStatus `json:"status"`
	TotalRows     int              `json:"total_rows"`
	ProcessedRows int              `json:"processed_rows"`
	FailedRows    int              `json:"failed_rows"`
	Message       string           `json:"message"`
}

// ImportRunner is the queue handler: it runs the pipeline for one job and
// announces the outcome.
type ImportRunner struct {
	pipeline  *ingest.Pipeline
	jobs      *repository.JobRepository
	publisher events.Publisher
}

// NewImportRunner creates a new ImportRunner.
func NewImportRunner(pipeline *ingest.Pipeline, jobs *repository.JobRepository, publisher events.Publisher) *ImportRunner {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &ImportRunner{pipeline: pipeline, jobs: jobs, publisher: publisher}
}

// Handle runs jobID. It matches queue.Handler.
func (r *ImportRunner) Handle(ctx context.Context, jobID string) error {
	summary, runErr := r.pipeline.Run(ctx, jobID)
	// Unknown jobs and redeliveries of started jobs are not announced.
	if errors.Is(runErr, ingest.ErrJobNotFound) || errors.Is(runErr, ingest.ErrNotPending) {
		return runErr
	}

	job, err := r.jobs.Get(context.WithoutCancel(ctx), jobID)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to reload job after import")
		return runErr
	}
	// Still running elsewhere; nothing to announce yet.
	if job.Status != domain.JobStatusCompleted && job.Status != domain.JobStatusFailed {
		return runErr
	}

	result := ImportResult{
		JobID:         job.ID,
		FileName:      job.FileName,
		Status:        job.Status,
		TotalRows:     job.TotalRows,
		ProcessedRows: job.ProcessedRows,
		FailedRows:    job.FailedRows,
	}
	if summary != nil {
		result.Message = summary.String()
	} else if runErr != nil {
		result.Message = runErr.Error()
	}
	r.publisher.Publish(ctx, domain.EventProductImported, result)
	return runErr
}
