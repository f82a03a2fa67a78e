package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestionJobTransitions(t *testing.T) {
	testCases := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		wantErr bool
	}{
		{name: "pending to processing", from: JobStatusPending, to: JobStatusProcessing},
		{name: "pending to failed", from: JobStatusPending, to: JobStatusFailed},
		{name: "processing to completed", from: JobStatusProcessing, to: JobStatusCompleted},
		{name: "processing to failed", from: JobStatusProcessing, to: JobStatusFailed},
		{name: "same status is a no-op", from: JobStatusProcessing, to: JobStatusProcessing},
		{name: "pending cannot complete", from: JobStatusPending, to: JobStatusCompleted, wantErr: true},
		{name: "processing cannot regress", from: JobStatusProcessing, to: JobStatusPending, wantErr: true},
		{name: "completed is terminal", from: JobStatusCompleted, to: JobStatusFailed, wantErr: true},
		{name: "failed is terminal", from: JobStatusFailed, to: JobStatusProcessing, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			job := &IngestionJob{Status: tc.from}
			err := job.TransitionTo(tc.to)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidTransition))
				assert.Equal(t, tc.from, job.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.to, job.Status)
		})
	}
}

func TestProgressPercentage(t *testing.T) {
	testCases := []struct {
		name      string
		total     int
		processed int
		want      float64
	}{
		{name: "unknown total", total: 0, processed: 5, want: 0},
		{name: "half", total: 10, processed: 5, want: 50},
		{name: "rounded to two decimals", total: 3, processed: 1, want: 33.33},
		{name: "two thirds", total: 3, processed: 2, want: 66.67},
		{name: "complete", total: 7, processed: 7, want: 100},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			job := &IngestionJob{TotalRows: tc.total, ProcessedRows: tc.processed}
			assert.Equal(t, tc.want, job.ProgressPercentage())
		})
	}
}

func TestNormalizeSKU(t *testing.T) {
	assert.Equal(t, "ABC123", NormalizeSKU("  abc123 "))
	assert.Equal(t, "ABC-1", NormalizeSKU("ABC-1"))
}

func TestEventTypeIsValid(t *testing.T) {
	assert.True(t, EventProductImported.IsValid())
	assert.False(t, EventType("product_exploded").IsValid())
}
