package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/timmy/prodimport/internal/logger"
)

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <file>",
		Short: "Import a local catalog file synchronously",
		Long: `Import a local CSV/TSV catalog file through the same pipeline the
workers use. The file is copied into the configured storage, a job is
created for it and processed in this process; webhooks subscribed to
product_imported are notified when it finishes.

Example:
  ingest run ./catalog.csv
  ingest run --config ./configs/config.yaml ./exports/products.tsv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, rootOpts, args[0])
		},
	}
}

func runImport(cmd *cobra.Command, opts *rootOptions, path string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	// Nothing is submitted; the job runs right here.
	job, err := a.Uploads(nil).Stage(ctx, path, f, info.Size())
	if err != nil {
		return err
	}
	ctx = logger.SetJobID(ctx, job.ID)
	logger.CtxInfo(ctx, "Importing %s", path)

	runErr := a.Importer.Handle(ctx, job.ID)

	job, err = a.Jobs.Get(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "job %s %s: processed %d, failed %d, total %d\n",
		job.ID, job.Status, job.ProcessedRows, job.FailedRows, job.TotalRows)
	if job.ErrorLog != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "errors:\n%s\n", job.ErrorLog)
	}
	return runErr
}
