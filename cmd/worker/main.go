package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/prodimport/internal/app"
	"github.com/timmy/prodimport/internal/config"
	"github.com/timmy/prodimport/internal/logger"
	"github.com/timmy/prodimport/internal/queue"
)

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if cfg.Queue.Driver != "redis" {
		appLogger.WithField("driver", cfg.Queue.Driver).Fatal("The worker needs the redis queue driver; the memory queue runs inside cmd/api")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	q, err := queue.NewRedisQueue(&cfg.Queue)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to connect to redis")
	}
	defer q.Close()

	appLogger.WithFields(logger.Fields{
		"workers":     cfg.Queue.Workers,
		"stale_after": cfg.Ingest.StaleAfter.String(),
	}).Info("Starting worker")

	if err := a.RunWorkers(ctx, q); err != nil && ctx.Err() == nil {
		appLogger.WithError(err).Error("Worker stopped")
		return
	}
	appLogger.Info("Worker exited")
}
