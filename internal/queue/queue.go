package queue

import (
	"context"
	"fmt"

	"github.com/timmy/prodimport/internal/config"
)

// Handler runs one ingestion job.
type Handler func(ctx context.Context, jobID string) error

// Submitter enqueues a job for asynchronous processing.
type Submitter interface {
	Submit(ctx context.Context, jobID string) error
}

// Queue hands submitted job ids to running handlers. One id never runs in
// two handlers at once.
type Queue interface {
	Submitter
	// Run consumes jobs with the configured number of workers until ctx is done.
	Run(ctx context.Context, handler Handler) error
	Close() error
}

// New creates the queue selected by cfg.Driver.
func New(cfg *config.QueueConfig) (Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryQueue(cfg.Workers, 0), nil
	case "redis":
		return NewRedisQueue(cfg)
	default:
		return nil, fmt.Errorf("unsupported queue driver: %s", cfg.Driver)
	}
}
