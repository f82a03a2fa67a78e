package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/timmy/prodimport/internal/logger"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("queue closed")

// MemoryQueue is an in-process queue for single-binary deployments.
// Jobs still queued when the process exits are lost; the reaper only
// handles jobs that started.
type MemoryQueue struct {
	jobs    chan string
	done    chan struct{}
	workers int

	mu       sync.Mutex
	inFlight map[string]struct{}
	closed   bool
}

// NewMemoryQueue creates a queue with the given worker count and buffer.
func NewMemoryQueue(workers, buffer int) *MemoryQueue {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryQueue{
		jobs:     make(chan string, buffer),
		done:     make(chan struct{}),
		workers:  workers,
		inFlight: make(map[string]struct{}),
	}
}

// Submit enqueues jobID unless it is already queued or running.
func (q *MemoryQueue) Submit(ctx context.Context, jobID string) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if _, dup := q.inFlight[jobID]; dup {
		q.mu.Unlock()
		return nil
	}
	q.inFlight[jobID] = struct{}{}
	q.mu.Unlock()

	select {
	case q.jobs <- jobID:
		return nil
	case <-q.done:
		q.release(jobID)
		return ErrClosed
	case <-ctx.Done():
		q.release(jobID)
		return ctx.Err()
	}
}

// Run starts the workers and blocks until ctx is cancelled or Close is called.
func (q *MemoryQueue) Run(ctx context.Context, handler Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		worker := i
		g.Go(func() error {
			wctx := logger.WithFields(ctx, logger.Fields{
				logger.FieldComponent: "queue",
				logger.FieldWorker:    worker,
			})
			for {
				select {
				case <-wctx.Done():
					return nil
				case <-q.done:
					q.drain(wctx, handler)
					return nil
				case jobID := <-q.jobs:
					process(wctx, handler, jobID)
					q.release(jobID)
				}
			}
		})
	}
	return g.Wait()
}

// Close stops accepting jobs; workers drain what is already queued.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

func (q *MemoryQueue) drain(ctx context.Context, handler Handler) {
	for {
		select {
		case jobID := <-q.jobs:
			process(ctx, handler, jobID)
			q.release(jobID)
		default:
			return
		}
	}
}

func (q *MemoryQueue) release(jobID string) {
	q.mu.Lock()
	delete(q.inFlight, jobID)
	q.mu.Unlock()
}

// process runs handler and logs its outcome. A panicking handler does not
// take the worker down.
func process(ctx context.Context, handler Handler, jobID string) {
	ctx = logger.SetJobID(ctx, jobID)
	defer func() {
		if r := recover(); r != nil {
			logger.CtxError(ctx, "Job handler panicked: %v", r)
		}
	}()
	if err := handler(ctx, jobID); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Job finished with error")
	}
}
