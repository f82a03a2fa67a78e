package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/timmy/prodimport/internal/service"
)

type reapOptions struct {
	*rootOptions
	StaleAfter time.Duration
}

func newReapCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &reapOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Fail processing jobs whose worker stopped sending heartbeats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx, opts.rootOptions)
			if err != nil {
				return err
			}
			defer a.Close()

			reaper := a.Reaper()
			if opts.StaleAfter > 0 {
				reaper = service.NewReaper(a.Jobs, opts.StaleAfter, a.Config.Ingest.ReapInterval)
			}
			n, err := reaper.ReapOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reaped %d stale job(s)\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&opts.StaleAfter, "stale-after", 0, "override ingest.stale_after")
	return cmd
}
