package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/prodimport/internal/config"
	"github.com/timmy/prodimport/internal/domain"
	"github.com/timmy/prodimport/internal/logger"
	"github.com/timmy/prodimport/internal/repository"
	"github.com/timmy/prodimport/internal/storage"
)

type testEnv struct {
	pipeline *Pipeline
	jobs     *repository.JobRepository
	products *repository.ProductRepository
	files    *storage.LocalStorage
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(dir, "catalog.db"),
		AutoMigrate: true,
		LogLevel:    "silent",
	}, logger.NewDefault())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	files, err := storage.NewLocalStorage(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	env := &testEnv{
		jobs:     repository.NewJobRepository(db),
		products: repository.NewProductRepository(db),
		files:    files,
	}
	env.pipeline = NewPipeline(env.jobs, env.products, files, NewMapper(DefaultMappingConfig()), opts)
	return env
}

// upload stores content and creates a pending job for it.
func (e *testEnv) upload(t *testing.T, content string) string {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	key := "jobs/" + id + "/catalog.csv"
	require.NoError(t, e.files.Save(ctx, key, strings.NewReader(content), int64(len(content))))
	require.NoError(t, e.jobs.Create(ctx, domain.NewIngestionJob(id, key, "catalog.csv")))
	return id
}

func (e *testEnv) job(t *testing.T, id string) *domain.IngestionJob {
	t.Helper()
	job, err := e.jobs.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}

func TestPipeline_ImportsCatalog(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	id := env.upload(t, "sku,name,description\nsku1,Widget,A widget\nsku2,Gadget,\n")

	summary, err := env.pipeline.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Processed 2 products, 0 failed", summary.String())
	assert.Equal(t, 2, summary.Created)

	job := env.job(t, id)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.ProcessedRows)
	assert.Equal(t, 0, job.FailedRows)
	assert.Equal(t, 2, job.TotalRows)
	assert.Equal(t, 100.0, job.ProgressPercentage())

	found, err := env.products.FindBySKUs(ctx, []string{"SKU1", "SKU2"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	bySKU := map[string]domain.Product{}
	for _, p := range found {
		bySKU[p.SKU] = p
	}
	assert.Equal(t, "Widget", bySKU["SKU1"].Name)
	assert.Equal(t, "A widget", bySKU["SKU1"].Description)
	assert.True(t, bySKU["SKU1"].IsActive)
	assert.Equal(t, "Gadget", bySKU["SKU2"].Name)
	assert.Equal(t, "", bySKU["SKU2"].Description)
	assert.True(t, bySKU["SKU2"].IsActive)
}

func TestPipeline_RowWithoutNameFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	id := env.upload(t, "sku,extra\nX1,\n")

	summary, err := env.pipeline.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 1, summary.Failed)

	job := env.job(t, id)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.FailedRows)
	assert.Equal(t, 1, job.TotalRows)
	assert.Contains(t, job.ErrorLog, "line 2: missing name")

	count, err := env.products.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPipeline_MissingSourceFailsJob(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	job := domain.NewIngestionJob(uuid.NewString(), "jobs/gone.csv", "gone.csv")
	require.NoError(t, env.jobs.Create(ctx, job))

	_, err := env.pipeline.Run(ctx, job.ID)
	assert.ErrorIs(t, err, ErrSourceMissing)

	stored := env.job(t, job.ID)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Zero(t, stored.ProcessedRows)
	assert.Zero(t, stored.FailedRows)
}

func TestPipeline_UnknownJob(t *testing.T) {
	env := newTestEnv(t, Options{})
	_, err := env.pipeline.Run(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestPipeline_EmptyFileFailsJob(t *testing.T) {
	env := newTestEnv(t, Options{})
	id := env.upload(t, "")

	_, err := env.pipeline.Run(context.Background(), id)
	var decErr *DecodeError
	assert.True(t, errors.As(err, &decErr))
	assert.Equal(t, domain.JobStatusFailed, env.job(t, id).Status)
}

func TestPipeline_ReimportIsIdempotentAndCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})

	first, err := env.pipeline.Run(ctx, env.upload(t, "sku,name\nabc123,Widget\nxyz9,Lamp\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	second, err := env.pipeline.Run(ctx, env.upload(t, "SKU;Name\nABC123;Widget v2\nXYZ9;Lamp\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Processed)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Updated)

	products, total, err := env.products.List(ctx, repository.ProductFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "ABC123", products[0].SKU)
	assert.Equal(t, "Widget v2", products[0].Name)
}

func TestPipeline_BatchBoundaries(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{BatchSize: 2})

	var b strings.Builder
	b.WriteString("product_id\tproduct_name\n")
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&b, "P%d\tItem %d\n", i, i)
	}
	b.WriteString("\t\n")
	id := env.upload(t, b.String())

	summary, err := env.pipeline.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, summary.Batches)

	job := env.job(t, id)
	assert.Equal(t, 6, job.TotalRows)
	assert.Equal(t, job.TotalRows, job.ProcessedRows+job.FailedRows)
}

func TestPipeline_ErrorSamplesAreCapped(t *testing.T) {
	env := newTestEnv(t, Options{MaxErrorSamples: 3})

	var b strings.Builder
	b.WriteString("sku,name\n")
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&b, "S%d,\n", i)
	}
	id := env.upload(t, b.String())

	summary, err := env.pipeline.Run(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Failed)
	assert.Len(t, strings.Split(env.job(t, id).ErrorLog, "\n"), 3)
}

func TestPipeline_CancelledRunFailsJob(t *testing.T) {
	job := domain.NewIngestionJob("j1", "f.csv", "f.csv")
	jobs := newMemJobs(job)
	files := memFiles{"f.csv": []byte("sku,name\nA,B\n")}
	p := NewPipeline(jobs, newMemCatalog(), files, NewMapper(DefaultMappingConfig()), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, "j1")
	assert.ErrorIs(t, err, context.Canceled)

	stored, _ := jobs.Get(context.Background(), "j1")
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
}

func TestPipeline_PanicFailsJob(t *testing.T) {
	job := domain.NewIngestionJob("j1", "f.csv", "f.csv")
	jobs := newMemJobs(job)
	catalog := newMemCatalog()
	catalog.panicOn = true
	files := memFiles{"f.csv": []byte("sku,name\nA,B\n")}
	p := NewPipeline(jobs, catalog, files, NewMapper(DefaultMappingConfig()), Options{})

	summary, err := p.Run(context.Background(), "j1")
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Contains(t, err.Error(), "panicked")

	stored, _ := jobs.Get(context.Background(), "j1")
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
}

func TestPipeline_RefusesJobOwnedElsewhere(t *testing.T) {
	job := domain.NewIngestionJob("j1", "f.csv", "f.csv")
	job.Status = domain.JobStatusProcessing
	jobs := newMemJobs(job)
	files := memFiles{"f.csv": []byte("sku,name\nA,B\n")}
	p := NewPipeline(jobs, newMemCatalog(), files, NewMapper(DefaultMappingConfig()), Options{})

	_, err := p.Run(context.Background(), "j1")
	assert.ErrorIs(t, err, ErrNotPending)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	stored, _ := jobs.Get(context.Background(), "j1")
	assert.Equal(t, domain.JobStatusProcessing, stored.Status)
}

func TestPipeline_FallbackFailuresReachJob(t *testing.T) {
	job := domain.NewIngestionJob("j1", "f.csv", "f.csv")
	jobs := newMemJobs(job)
	catalog := newMemCatalog()
	catalog.failBulk = true
	catalog.failSKUs["B"] = true
	files := memFiles{"f.csv": []byte("sku,name\nA,Alpha\nB,Beta\nC,Gamma\n")}
	p := NewPipeline(jobs, catalog, files, NewMapper(DefaultMappingConfig()), Options{})

	summary, err := p.Run(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, catalog.upserts)

	stored, err := jobs.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.ProcessedRows)
	assert.Equal(t, 1, stored.FailedRows)
	assert.Equal(t, 3, stored.TotalRows)

	_, ok := catalog.get("B")
	assert.False(t, ok)
}

func TestPipeline_InvalidStretchAdvancesProgress(t *testing.T) {
	job := domain.NewIngestionJob("j1", "f.csv", "f.csv")
	jobs := newMemJobs(job)
	files := memFiles{"f.csv": []byte("sku,name\nA,\nB,\nC,\nD,\nE,\nF,Foxtrot\n")}
	p := NewPipeline(jobs, newMemCatalog(), files, NewMapper(DefaultMappingConfig()), Options{BatchSize: 2})

	summary, err := p.Run(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 5, summary.Failed)

	var failedSeen []int
	for _, snap := range jobs.history() {
		if snap.Status != domain.JobStatusProcessing {
			continue
		}
		require.NotNil(t, snap.HeartbeatAt)
		failedSeen = append(failedSeen, snap.FailedRows)
	}
	// Start, two invalid-only advances, then the final flush.
	assert.Equal(t, []int{0, 2, 4, 5}, failedSeen)

	stored, _ := jobs.Get(context.Background(), "j1")
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.Equal(t, 5, stored.FailedRows)
}
