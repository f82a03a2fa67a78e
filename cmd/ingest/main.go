package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/timmy/prodimport/internal/app"
	"github.com/timmy/prodimport/internal/config"
	"github.com/timmy/prodimport/internal/logger"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	LogLevel   string
}

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		logger.Sync()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Import product catalog files and maintain ingestion jobs",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.LogLevel != "" {
				cfg := logger.LoadFromEnv()
				cfg.Level = opts.LogLevel
				logger.SetDefaultLogger(logger.NewFromEnv(cfg))
			}
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", os.Getenv("CONFIG_PATH"), "path to config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newReapCommand(opts))

	return cmd
}

// openApp loads configuration and builds the application for one command.
func openApp(ctx context.Context, opts *rootOptions) (*app.App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.New(ctx, cfg, logger.GetDefault())
}
