package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
)

// DefaultFallbackEstimate is reported when the file cannot be sampled.
const DefaultFallbackEstimate = 1000

// Estimator approximates a file's row count for progress display.
// The estimate is never used to detect the end of the stream.
type Estimator struct {
	SampleSize int
	Fallback   int
}

// NewEstimator returns an Estimator, substituting defaults for non-positive values.
func NewEstimator(sampleSize, fallback int) *Estimator {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	if fallback <= 0 {
		fallback = DefaultFallbackEstimate
	}
	return &Estimator{SampleSize: sampleSize, Fallback: fallback}
}

// Estimate opens key separately from the decoder and extrapolates the row
// count from its leading sample. Any I/O failure yields the fallback.
func (e *Estimator) Estimate(ctx context.Context, src FileSource, key string) int {
	size, err := src.Size(ctx, key)
	if err != nil {
		return e.Fallback
	}

	rc, err := src.Open(ctx, key)
	if err != nil {
		return e.Fallback
	}
	defer rc.Close()

	sample := make([]byte, e.SampleSize)
	n, err := io.ReadFull(rc, sample)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return e.Fallback
	}
	return EstimateRows(size, sample[:n])
}

// EstimateRows is max(1, floor(fileSize / len(sample) * newlines(sample))).
func EstimateRows(fileSize int64, sample []byte) int {
	if len(sample) == 0 || fileSize <= 0 {
		return 1
	}
	newlines := bytes.Count(sample, []byte{'\n'})
	estimate := math.Floor(float64(fileSize) / float64(len(sample)) * float64(newlines))
	if estimate < 1 {
		return 1
	}
	return int(estimate)
}
