package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/timmy/prodimport/internal/config"
	"github.com/timmy/prodimport/internal/logger"
	"golang.org/x/sync/errgroup"
)

const (
	popTimeout   = 5 * time.Second
	recoverEvery = time.Minute
	claimTTL     = 30 * time.Second
)

// RedisQueue is a list-backed queue shared by API and worker processes.
// Popped ids move atomically onto a processing list and leave it only once
// handled or requeued, so a worker crash or a failed Redis call never drops
// a job. A per-job lease key keeps a redelivered id from running twice at once.
type RedisQueue struct {
	client       *redis.Client
	key          string
	leaseTTL     time.Duration
	workers      int
	owner        string
	block        time.Duration
	recoverEvery time.Duration
}

// NewRedisQueue connects to cfg.RedisURL and verifies the connection.
func NewRedisQueue(cfg *config.QueueConfig) (*RedisQueue, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisQueue(client, cfg), nil
}

func newRedisQueue(client *redis.Client, cfg *config.QueueConfig) *RedisQueue {
	key := cfg.Key
	if key == "" {
		key = "prodimport:ingest"
	}
	leaseTTL := cfg.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = 2 * time.Hour
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	host, _ := os.Hostname()
	return &RedisQueue{
		client:       client,
		key:          key,
		leaseTTL:     leaseTTL,
		workers:      workers,
		owner:        fmt.Sprintf("%s:%s", host, uuid.NewString()[:8]),
		block:        popTimeout,
		recoverEvery: recoverEvery,
	}
}

func (q *RedisQueue) leaseKey(jobID string) string {
	return fmt.Sprintf("%s:lease:%s", q.key, jobID)
}

func (q *RedisQueue) processingKey() string {
	return q.key + ":processing"
}

// Submit pushes jobID onto the list.
func (q *RedisQueue) Submit(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.key, jobID).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}
	return nil
}

// Run pops jobs with q.workers consumers until ctx is cancelled. Orphaned
// ids on the processing list are requeued at start and every recoverEvery.
func (q *RedisQueue) Run(ctx context.Context, handler Handler) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rctx := logger.SetComponent(ctx, "queue")
		ticker := time.NewTicker(q.recoverEvery)
		defer ticker.Stop()
		for {
			q.recoverOrphans(rctx)
			select {
			case <-rctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	for i := 0; i < q.workers; i++ {
		worker := i
		g.Go(func() error {
			wctx := logger.WithFields(ctx, logger.Fields{
				logger.FieldComponent: "queue",
				logger.FieldWorker:    worker,
			})
			for {
				if wctx.Err() != nil {
					return nil
				}
				jobID, err := q.pop(wctx)
				if err != nil {
					if wctx.Err() != nil {
						return nil
					}
					logger.FromContext(wctx).WithError(err).Warn("Queue pop failed, retrying")
					select {
					case <-wctx.Done():
						return nil
					case <-time.After(time.Second):
					}
					continue
				}
				if jobID == "" {
					continue
				}
				q.handle(wctx, handler, jobID)
			}
		})
	}
	return g.Wait()
}

// pop waits up to q.block for a job and moves it onto the processing list;
// an empty id means none arrived.
func (q *RedisQueue) pop(ctx context.Context) (string, error) {
	jobID, err := q.client.BLMove(ctx, q.key, q.processingKey(), "RIGHT", "LEFT", q.block).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return jobID, nil
}

func (q *RedisQueue) handle(ctx context.Context, handler Handler, jobID string) {
	log := logger.FromContext(ctx).WithField(logger.FieldJobID, jobID)
	lease := q.leaseKey(jobID)

	acquired, err := q.client.SetNX(ctx, lease, q.owner, q.leaseTTL).Result()
	if err != nil {
		log.WithError(err).Warn("Failed to take job lease, requeueing")
		q.requeue(ctx, jobID, q.owner)
		return
	}
	if !acquired {
		// The copy stays on the processing list: if the holder is a recovery
		// pass it is about to move this id back onto the queue.
		log.Info("Job already leased elsewhere, skipping")
		return
	}

	defer func() {
		// ack before release so a recovery pass never sees the id unleased
		q.ack(ctx, jobID)
		if err := q.client.Del(context.WithoutCancel(ctx), lease).Err(); err != nil {
			log.WithError(err).Warn("Failed to release job lease")
		}
	}()

	process(ctx, handler, jobID)
}

// ack drops one copy of jobID from the processing list.
func (q *RedisQueue) ack(ctx context.Context, jobID string) {
	if err := q.client.LRem(context.WithoutCancel(ctx), q.processingKey(), 1, jobID).Err(); err != nil {
		logger.FromContext(ctx).WithError(err).WithField(logger.FieldJobID, jobID).Warn("Failed to ack job")
	}
}

// requeueScript moves one copy of ARGV[1] from the processing list (KEYS[1])
// back onto the queue (KEYS[2]) and drops the lease (KEYS[3]) if ARGV[2]
// holds it. An id already acked is not pushed again.
var requeueScript = redis.NewScript(`
local n = redis.call('LREM', KEYS[1], 1, ARGV[1])
if n > 0 then
	redis.call('LPUSH', KEYS[2], ARGV[1])
end
if redis.call('GET', KEYS[3]) == ARGV[2] then
	redis.call('DEL', KEYS[3])
end
return n
`)

// requeue moves jobID from the processing list back onto the queue,
// releasing the lease if holder owns it. On failure the id stays on the
// processing list for recoverOrphans.
func (q *RedisQueue) requeue(ctx context.Context, jobID, holder string) bool {
	keys := []string{q.processingKey(), q.key, q.leaseKey(jobID)}
	n, err := requeueScript.Run(context.WithoutCancel(ctx), q.client, keys, jobID, holder).Int()
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField(logger.FieldJobID, jobID).
			Error("Failed to requeue job, left on processing list")
		return false
	}
	return n > 0
}

// recoverOrphans requeues processing-list ids that no worker holds a lease
// for. Each id is claimed with its lease first, so a worker that popped it
// but has not leased it yet skips it instead of running it twice. It
// returns how many ids went back onto the queue.
func (q *RedisQueue) recoverOrphans(ctx context.Context) int {
	log := logger.FromContext(ctx)
	ids, err := q.client.LRange(ctx, q.processingKey(), 0, -1).Result()
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Warn("Failed to list processing jobs")
		}
		return 0
	}

	claim := "recover:" + q.owner
	seen := make(map[string]struct{}, len(ids))
	requeued := 0
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		ok, err := q.client.SetNX(ctx, q.leaseKey(id), claim, claimTTL).Result()
		if err != nil {
			log.WithError(err).WithField(logger.FieldJobID, id).Warn("Failed to claim orphaned job")
			continue
		}
		if !ok {
			continue
		}
		if q.requeue(ctx, id, claim) {
			requeued++
		}
	}
	if requeued > 0 {
		log.WithField(logger.FieldCount, requeued).Info("Requeued orphaned jobs")
	}
	return requeued
}

// Close closes the redis client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
