package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/prodimport/internal/api"
	"github.com/timmy/prodimport/internal/app"
	"github.com/timmy/prodimport/internal/config"
	"github.com/timmy/prodimport/internal/logger"
	"github.com/timmy/prodimport/internal/queue"
)

// resubmitLimit bounds how many pending jobs are re-queued at startup.
const resubmitLimit = 1000

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	q, err := queue.New(&cfg.Queue)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize queue")
	}
	uploads := a.Uploads(q)

	// With the in-memory queue this process also runs the import workers and
	// the reaper; with redis they live in cmd/worker.
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	workersDone := make(chan struct{})
	if cfg.Queue.Driver == "memory" {
		go func() {
			defer close(workersDone)
			if err := a.RunWorkers(workerCtx, q); err != nil {
				appLogger.WithError(err).Error("Import workers stopped")
			}
		}()

		n, err := uploads.ResubmitPending(ctx, resubmitLimit)
		if err != nil {
			appLogger.WithError(err).Warn("Failed to resubmit pending jobs")
		} else if n > 0 {
			appLogger.WithField(logger.FieldCount, n).Info("Resubmitted pending jobs")
		}
	} else {
		close(workersDone)
	}

	router := api.SetupRouter(api.Services{
		Uploads:  uploads,
		Products: a.ProductService(),
		Webhooks: a.WebhookService(),
	}, a.DB, &cfg.Server, appLogger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	grace := time.Duration(cfg.Server.ShutdownGrace) * time.Second
	shutdownCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	// Let queued imports finish within the grace period; jobs still running
	// after it are cancelled and marked failed.
	q.Close()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		appLogger.Warn("Grace period elapsed, cancelling running imports")
		stopWorkers()
		<-workersDone
	}

	appLogger.Info("Server exited")
}
