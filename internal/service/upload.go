package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/timmy/prodimport/internal/domain"
	"github.com/timmy/prodimport/internal/logger"
	"github.com/timmy/prodimport/internal/queue"
	"github.com/timmy/prodimport/internal/repository"
	"github.com/timmy/prodimport/internal/storage"
)

// allowedExtensions are the delimited-text uploads the importer accepts.
var allowedExtensions = map[string]bool{
	".csv": true,
	".tsv": true,
	".txt": true,
}

// UploadService accepts catalog files and tracks their ingestion jobs.
type UploadService struct {
	jobs   *repository.JobRepository
	files  storage.FileStore
	queue  queue.Submitter
	logger *logger.Logger
}

// NewUploadService creates a new UploadService.
func NewUploadService(jobs *repository.JobRepository, files storage.FileStore, q queue.Submitter, log *logger.Logger) *UploadService {
	return &UploadService{
		jobs:   jobs,
		files:  files,
		queue:  q,
		logger: log,
	}
}

// Upload stages the file and submits its job.
// A failed submission leaves the job pending so it can be resubmitted.
func (s *UploadService) Upload(ctx context.Context, fileName string, r io.Reader, size int64) (*domain.IngestionJob, error) {
	job, err := s.Stage(ctx, fileName, r, size)
	if err != nil {
		return nil, err
	}

	ctx = logger.SetJobID(ctx, job.ID)
	if err := s.queue.Submit(ctx, job.ID); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to submit job, it stays pending")
	}
	return job, nil
}

// Stage stores the file and creates a pending job for it without submitting.
func (s *UploadService) Stage(ctx context.Context, fileName string, r io.Reader, size int64) (*domain.IngestionJob, error) {
	base := filepath.Base(fileName)
	ext := strings.ToLower(filepath.Ext(base))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: unsupported file type %q, expected .csv, .tsv or .txt", ErrInvalidInput, ext)
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}

	id := uuid.NewString()
	key := fmt.Sprintf("uploads/%s%s", id, ext)
	ctx = logger.SetJobID(ctx, id)

	if err := s.files.Save(ctx, key, r, size); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	job := domain.NewIngestionJob(id, key, base)
	if err := s.jobs.Create(ctx, job); err != nil {
		if delErr := s.files.Delete(ctx, key); delErr != nil {
			logger.FromContext(ctx).WithError(delErr).Warn("Failed to remove orphaned upload")
		}
		return nil, err
	}

	logger.With(logger.Fields{logger.FieldSize: size, "file_name": base}).Info(ctx, "Upload accepted")
	return job, nil
}

// Get returns a job by id.
func (s *UploadService) Get(ctx context.Context, id string) (*domain.IngestionJob, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// List returns recent jobs, newest first.
func (s *UploadService) List(ctx context.Context, limit, offset int) ([]domain.IngestionJob, error) {
	return s.jobs.List(ctx, limit, offset)
}

// Process re-submits a job that has not started yet.
func (s *UploadService) Process(ctx context.Context, id string) (*domain.IngestionJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusPending {
		return nil, fmt.Errorf("%w: job %s is %s", ErrJobNotPending, id, job.Status)
	}
	if err := s.queue.Submit(logger.SetJobID(ctx, id), id); err != nil {
		return nil, fmt.Errorf("failed to submit job: %w", err)
	}
	return job, nil
}

// ResubmitPending submits up to limit jobs still pending, oldest first. The
// in-memory queue loses its backlog on restart; this puts it back.
func (s *UploadService) ResubmitPending(ctx context.Context, limit int) (int, error) {
	jobs, err := s.jobs.ListByStatus(ctx, domain.JobStatusPending, limit)
	if err != nil {
		return 0, err
	}
	submitted := 0
	for _, job := range jobs {
		if err := s.queue.Submit(logger.SetJobID(ctx, job.ID), job.ID); err != nil {
			return submitted, fmt.Errorf("failed to resubmit job %s: %w", job.ID, err)
		}
		submitted++
	}
	return submitted, nil
}
