package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound means the job id does not resolve. The run is not retried.
	ErrJobNotFound = errors.New("ingestion job not found")

	// ErrNotPending means the job already started elsewhere or finished.
	// The run is a no-op and leaves the job untouched.
	ErrNotPending = errors.New("ingestion job is not pending")

	// ErrSourceMissing means the uploaded file is gone. The job is marked failed.
	ErrSourceMissing = errors.New("source file missing")
)

// DecodeError reports an unreadable, empty or undecodable input stream.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RowInvalidError marks one source row that could not become a product.
// It is counted as failed and never aborts the run.
type RowInvalidError struct {
	Line   int
	Reason string
}

func (e *RowInvalidError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return e.Reason
}

// BatchWriteError wraps a failed bulk write; the batch falls back to per-row upserts.
type BatchWriteError struct {
	Size int
	Err  error
}

func (e *BatchWriteError) Error() string {
	return fmt.Sprintf("bulk write of %d products failed: %v", e.Size, e.Err)
}

func (e *BatchWriteError) Unwrap() error { return e.Err }

// IndividualWriteError wraps a failed per-row upsert during fallback.
type IndividualWriteError struct {
	SKU string
	Err error
}

func (e *IndividualWriteError) Error() string {
	return fmt.Sprintf("upsert of sku %s failed: %v", e.SKU, e.Err)
}

func (e *IndividualWriteError) Unwrap() error { return e.Err }
