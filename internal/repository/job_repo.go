package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/prodimport/internal/domain"
	"gorm.io/gorm"
)

// mutableJobColumns are rewritten by Save; identity and file columns are not.
var mutableJobColumns = []string{
	"status",
	"total_rows",
	"processed_rows",
	"failed_rows",
	"error_log",
	"heartbeat_at",
	"started_at",
	"completed_at",
	"updated_at",
}

// JobRepository handles ingestion job persistence.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
func (r *JobRepository) Create(ctx context.Context, job *domain.IngestionJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID.
// Returns ErrNotFound when no job has that ID.
func (r *JobRepository) Get(ctx context.Context, id string) (*domain.IngestionJob, error) {
	var job domain.IngestionJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &job, nil
}

// Save overwrites the job's mutable columns. It never re-creates a job that
// was deleted concurrently; in that case ErrNotFound is returned.
func (r *JobRepository) Save(ctx context.Context, job *domain.IngestionJob) error {
	job.UpdatedAt = time.Now()
	result := r.db.WithContext(ctx).
		Model(&domain.IngestionJob{}).
		Where("id = ?", job.ID).
		Select(mutableJobColumns).
		Updates(job)
	if result.Error != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Refresh reloads job from the database in place.
func (r *JobRepository) Refresh(ctx context.Context, job *domain.IngestionJob) error {
	var fresh domain.IngestionJob
	if err := r.db.WithContext(ctx).First(&fresh, "id = ?", job.ID).Error; err != nil {
		return translate(err)
	}
	*job = fresh
	return nil
}

// List returns jobs newest first.
func (r *JobRepository) List(ctx context.Context, limit, offset int) ([]domain.IngestionJob, error) {
	var jobs []domain.IngestionJob
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// ListByStatus returns up to limit jobs in status, oldest first.
func (r *JobRepository) ListByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]domain.IngestionJob, error) {
	var jobs []domain.IngestionJob
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s jobs: %w", status, err)
	}
	return jobs, nil
}

// ListStale returns processing jobs whose last heartbeat is older than before.
// Jobs that never recorded a heartbeat are judged by updated_at.
func (r *JobRepository) ListStale(ctx context.Context, before time.Time) ([]domain.IngestionJob, error) {
	var jobs []domain.IngestionJob
	if err := r.db.WithContext(ctx).
		Where("status = ?", domain.JobStatusProcessing).
		Where("(heartbeat_at IS NOT NULL AND heartbeat_at < ?) OR (heartbeat_at IS NULL AND updated_at < ?)", before, before).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	return jobs, nil
}
