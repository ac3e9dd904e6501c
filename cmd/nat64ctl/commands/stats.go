package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show translation counters",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if !watch {
				return printStatsOnce(context.Background())
			}
			return watchStats(interval)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "poll and print counters repeatedly until interrupted (Ctrl+C)")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval when --watch is set")

	return cmd
}

func printStatsOnce(ctx context.Context) error {
	resp, err := client.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	out, err := formatStats(resp, outputFormat)
	if err != nil {
		return fmt.Errorf("format stats: %w", err)
	}

	fmt.Print(out)

	return nil
}

// watchStats polls /stats at the given interval and prints the counters
// each time, until interrupted (Ctrl+C). The admin surface has no
// streaming equivalent of a session-events feed (spec.md §6: the map
// table and counters are snapshot reads), so polling is the idiomatic
// substitute here.
func watchStats(interval time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := printStatsOnce(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return fmt.Errorf("watch stats: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
