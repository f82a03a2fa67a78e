// Package app wires configuration into the repositories, storage, pipeline
// and services shared by the api, worker and ingest binaries.
package app

import (
	"context"
	"fmt"

	"github.com/timmy/prodimport/internal/config"
	"github.com/timmy/prodimport/internal/events"
	"github.com/timmy/prodimport/internal/ingest"
	"github.com/timmy/prodimport/internal/logger"
	"github.com/timmy/prodimport/internal/queue"
	"github.com/timmy/prodimport/internal/repository"
	"github.com/timmy/prodimport/internal/service"
	"github.com/timmy/prodimport/internal/storage"
	"gorm.io/gorm"
)

// App holds the long-lived dependencies of one process.
type App struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *gorm.DB
	Files  storage.FileStore

	Jobs     *repository.JobRepository
	Products *repository.ProductRepository
	Webhooks *repository.WebhookRepository

	Dispatcher *events.WebhookDispatcher
	Pipeline   *ingest.Pipeline
	Importer   *service.ImportRunner
}

// New opens the database and file store and builds the import pipeline.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := repository.InitDB(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	files, err := storage.NewFileStore(ctx, &cfg.Storage)
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &App{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Files:    files,
		Jobs:     repository.NewJobRepository(db),
		Products: repository.NewProductRepository(db),
		Webhooks: repository.NewWebhookRepository(db),
	}

	a.Dispatcher = events.NewWebhookDispatcher(a.Webhooks, cfg.Webhook)
	a.Pipeline = ingest.NewPipeline(
		a.Jobs,
		a.Products,
		files,
		ingest.NewMapper(cfg.Mapping),
		ingest.OptionsFromConfig(cfg.Ingest),
	)
	a.Importer = service.NewImportRunner(a.Pipeline, a.Jobs, a.Dispatcher)

	log.WithFields(logger.Fields{
		"database": cfg.Database.Driver,
		"storage":  cfg.Storage.Type,
		"queue":    cfg.Queue.Driver,
	}).Info("Application initialized")
	return a, nil
}

// Uploads returns an UploadService submitting to q.
func (a *App) Uploads(q queue.Submitter) *service.UploadService {
	return service.NewUploadService(a.Jobs, a.Files, q, a.Logger)
}

// ProductService returns a ProductService publishing through the dispatcher.
func (a *App) ProductService() *service.ProductService {
	return service.NewProductService(a.Products, a.Dispatcher)
}

// WebhookService returns a WebhookService testing through the dispatcher.
func (a *App) WebhookService() *service.WebhookService {
	return service.NewWebhookService(a.Webhooks, a.Dispatcher)
}

// Reaper returns a Reaper configured from the ingest section.
func (a *App) Reaper() *service.Reaper {
	return service.NewReaper(a.Jobs, a.Config.Ingest.StaleAfter, a.Config.Ingest.ReapInterval)
}

// RunWorkers consumes q with the importer and reaps stale jobs until ctx is
// cancelled or q is closed and drained. The reaper stops with the workers.
func (a *App) RunWorkers(ctx context.Context, q queue.Queue) error {
	reaperCtx, stopReaper := context.WithCancel(ctx)
	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		a.Reaper().Run(reaperCtx)
	}()

	err := q.Run(ctx, a.Importer.Handle)
	stopReaper()
	<-reaperDone
	return err
}

// Close waits for in-flight webhook deliveries and closes the database.
func (a *App) Close() {
	a.Dispatcher.Wait()
	closeDB(a.DB)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
