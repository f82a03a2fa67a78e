package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// JobStatus represents the status of an ingestion job.
// Values include JobStatusPending, JobStatusProcessing, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ErrInvalidTransition is returned when a status change would move a job
// backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid job status transition")

// allowed lists the forward edges of the job state machine.
var allowed = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// IsTerminal reports whether no transition leaves s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether moving from s to next is a legal forward edge.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, candidate := range allowed[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IngestionJob tracks one uploaded catalog file through the import pipeline.
type IngestionJob struct {
	ID            string     `gorm:"type:text;primaryKey" json:"id"`
	FileRef       string     `gorm:"type:text;not null" json:"file_ref"`
	FileName      string     `gorm:"type:text" json:"file_name"`
	Status        JobStatus  `gorm:"type:text;not null;index:idx_ingestion_jobs_status" json:"status"`
	TotalRows     int        `gorm:"not null;default:0" json:"total_rows"`
	ProcessedRows int        `gorm:"not null;default:0" json:"processed_rows"`
	FailedRows    int        `gorm:"not null;default:0" json:"failed_rows"`
	ErrorLog      string     `gorm:"type:text" json:"error_log,omitempty"`
	HeartbeatAt   *time.Time `json:"heartbeat_at,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `gorm:"index:idx_ingestion_jobs_created_at" json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for IngestionJob.
func (IngestionJob) TableName() string {
	return "ingestion_jobs"
}

// NewIngestionJob returns a pending job for an uploaded file.
func NewIngestionJob(id, fileRef, fileName string) *IngestionJob {
	return &IngestionJob{
		ID:       id,
		FileRef:  fileRef,
		FileName: fileName,
		Status:   JobStatusPending,
	}
}

// TransitionTo moves the job to next, refusing regressions and exits from
// terminal states. A transition to the current status is a no-op.
func (j *IngestionJob) TransitionTo(next JobStatus) error {
	if j.Status == next {
		return nil
	}
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	return nil
}

// ProgressPercentage is processed/total as a percentage rounded to two
// decimals, or 0 while the total is unknown.
func (j *IngestionJob) ProgressPercentage() float64 {
	if j.TotalRows <= 0 {
		return 0
	}
	pct := float64(j.ProcessedRows) / float64(j.TotalRows) * 100
	return math.Round(pct*100) / 100
}
