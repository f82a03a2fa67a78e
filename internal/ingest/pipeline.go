package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/timmy/prodimport/internal/config"
	"github.com/timmy/prodimport/internal/domain"
	"github.com/timmy/prodimport/internal/logger"
	"github.com/timmy/prodimport/internal/repository"
)

// DefaultMaxErrorSamples caps the invalid-row diagnostics kept per job.
const DefaultMaxErrorSamples = 10

// Options tunes one pipeline.
type Options struct {
	BatchSize        int
	SampleSize       int
	FallbackEstimate int
	MaxErrorSamples  int
}

// OptionsFromConfig maps the ingest config section onto Options.
func OptionsFromConfig(cfg config.IngestConfig) Options {
	return Options{
		BatchSize:        cfg.BatchSize,
		SampleSize:       cfg.SampleSize,
		FallbackEstimate: cfg.FallbackEstimate,
		MaxErrorSamples:  cfg.MaxErrorSamples,
	}
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
	if o.FallbackEstimate <= 0 {
		o.FallbackEstimate = DefaultFallbackEstimate
	}
	if o.MaxErrorSamples < 0 {
		o.MaxErrorSamples = 0
	}
	return o
}

// Summary is the outcome of one completed run.
type Summary struct {
	JobID     string        `json:"job_id"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Batches   int           `json:"batches"`
	Duration  time.Duration `json:"duration"`
}

func (s *Summary) String() string {
	return fmt.Sprintf("Processed %d products, %d failed", s.Processed, s.Failed)
}

// Pipeline imports one uploaded catalog file per Run.
type Pipeline struct {
	jobs      JobStore
	files     FileSource
	mapper    *Mapper
	upserter  *Upserter
	tracker   *Tracker
	estimator *Estimator
	opts      Options
}

// NewPipeline wires the pipeline stages over their stores.
func NewPipeline(jobs JobStore, catalog CatalogStore, files FileSource, mapper *Mapper, opts Options) *Pipeline {
	opts = opts.withDefaults()
	return &Pipeline{
		jobs:      jobs,
		files:     files,
		mapper:    mapper,
		upserter:  NewUpserter(catalog),
		tracker:   NewTracker(jobs),
		estimator: NewEstimator(opts.SampleSize, opts.FallbackEstimate),
		opts:      opts,
	}
}

// Run processes the job's file to completion. Row and batch failures are
// counted; missing inputs, undecodable files, cancellation and unexpected
// errors fail the job and are returned.
func (p *Pipeline) Run(ctx context.Context, jobID string) (summary *Summary, err error) {
	ctx = logger.SetJobID(ctx, jobID)
	start := time.Now()

	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.CtxError(ctx, "Ingestion job not found")
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	defer func() {
		if r := recover(); r != nil {
			summary = nil
			err = fmt.Errorf("ingestion panicked: %v", r)
			p.fail(ctx, job, "run", err)
		}
	}()

	ok, err := p.files.Exists(ctx, job.FileRef)
	if err != nil {
		err = fmt.Errorf("failed to check source %s: %w", job.FileRef, err)
		p.fail(ctx, job, "source", err)
		return nil, err
	}
	if !ok {
		err = fmt.Errorf("%w: %s", ErrSourceMissing, job.FileRef)
		p.fail(ctx, job, "source", err)
		return nil, err
	}

	estimate := p.estimator.Estimate(ctx, p.files, job.FileRef)
	if err := p.tracker.Start(ctx, job, estimate); err != nil {
		// Not ours to fail: the job is owned elsewhere or already finished.
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: %w", ErrNotPending, err)
		}
		return nil, fmt.Errorf("failed to start job %s: %w", jobID, err)
	}
	logger.With(logger.Fields{"estimated_rows": estimate}).Info(ctx, "Ingestion started for %s", job.FileName)

	dec, err := OpenDecoder(ctx, p.files, job.FileRef, p.opts.SampleSize)
	if err != nil {
		p.fail(ctx, job, "decode", err)
		return nil, err
	}
	defer dec.Close()

	summary, err = p.consume(ctx, job, dec)
	if err != nil {
		p.fail(ctx, job, "consume", err)
		return nil, err
	}
	summary.Duration = time.Since(start)

	logger.With(logger.Fields{
		"processed": summary.Processed,
		"failed":    summary.Failed,
		"created":   summary.Created,
		"updated":   summary.Updated,
	}).WithDuration(start).Info(ctx, "%s", summary)
	return summary, nil
}

func (p *Pipeline) consume(ctx context.Context, job *domain.IngestionJob, dec *Decoder) (*Summary, error) {
	summary := &Summary{JobID: job.ID}
	batch := make([]ProductRecord, 0, p.opts.BatchSize)
	pendingFailed := 0
	var samples []string

	// reject counts an invalid row. A full batch worth of them is reported on
	// its own so long invalid stretches still advance the heartbeat.
	reject := func(err error) error {
		summary.Failed++
		pendingFailed++
		if len(samples) < p.opts.MaxErrorSamples {
			samples = append(samples, err.Error())
		}
		if pendingFailed < p.opts.BatchSize {
			return nil
		}
		failed := pendingFailed
		pendingFailed = 0
		return p.tracker.Advance(ctx, job, 0, failed)
	}

	flush := func() error {
		var res BatchResult
		if len(batch) > 0 {
			summary.Batches++
			res = p.upserter.Write(logger.WithField(ctx, logger.FieldBatch, summary.Batches), batch)
			summary.Processed += res.Written
			summary.Failed += res.Failed
			summary.Created += res.Created
			summary.Updated += res.Updated
			batch = batch[:0]
		}
		failedDelta := res.Failed + pendingFailed
		pendingFailed = 0
		return p.tracker.Advance(ctx, job, res.Written, failedDelta)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var rowErr *RowInvalidError
			if errors.As(err, &rowErr) {
				if err := reject(rowErr); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &DecodeError{Reason: "stream interrupted", Err: err}
		}

		product, err := p.mapper.Map(rec)
		if err != nil {
			if err := reject(err); err != nil {
				return nil, err
			}
			continue
		}

		batch = append(batch, product)
		if len(batch) >= p.opts.BatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}
	if err := p.tracker.Finish(ctx, job, summary.Processed, summary.Failed, samples); err != nil {
		return nil, err
	}
	return summary, nil
}

// fail marks the job failed, writing even when ctx is already cancelled.
func (p *Pipeline) fail(ctx context.Context, job *domain.IngestionJob, stage string, cause error) {
	ctx = logger.SetStage(ctx, stage)
	logger.FromContext(ctx).WithError(cause).Error("Ingestion failed")
	if err := p.tracker.Fail(context.WithoutCancel(ctx), job, cause); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to mark job as failed")
	}
}
