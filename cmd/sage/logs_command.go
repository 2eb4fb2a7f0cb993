package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sage/internal/logs"
)

const followWait = time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		follow bool
		lines  int
		itemID int64
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display the sage log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, "sage.log")

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			out := cmd.OutOrStdout()
			opts := logs.TailOptions{
				Offset: -1,
				Limit:  max(lines, 0),
				Filter: logs.Filter{ItemID: itemID},
			}
			printed := false
			for {
				result, err := logs.Tail(runCtx, path, opts)
				if err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("tail logs: %w", err)
				}
				for _, line := range result.Lines {
					fmt.Fprintln(out, line)
					printed = true
				}
				if !follow {
					if !printed {
						fmt.Fprintln(out, "No log entries available")
					}
					return nil
				}
				if runCtx.Err() != nil {
					return nil
				}
				opts.Offset = result.Offset
				opts.Follow = true
				opts.Wait = followWait
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	cmd.Flags().Int64Var(&itemID, "item", 0, "Only show lines for this queue item")
	return cmd
}
