package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/runstate"
	"scribe/internal/stats"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats RUN_DIR",
		Short: "Show aggregate throughput and producer statistics for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openReadStore(ctx, args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			manifest, items, err := store.Snapshot()
			if err != nil {
				return err
			}

			summary := stats.Compute(manifest, items, time.Now())
			stale := manifest.Status == runstate.RunStatusRunning && !runstate.WriterActive(store.Dir())

			out := cmd.OutOrStdout()
			printRunHeader(out, manifest, summary, stale)
			if summary.ItemsPerSecond > 0 {
				fmt.Fprintf(out, "Throughput: %.2f items/s\n", summary.ItemsPerSecond)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(progressHeaders, [][]string{progressRow(summary)},
				alignRight, alignRight, alignRight, alignRight, alignRight))
			fmt.Fprintln(out, renderTable(stepHeaders, stepRows(summary),
				alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight))
			if rows := producerRows(summary); len(rows) > 0 {
				fmt.Fprintln(out, renderTable(producerHeaders, rows,
					alignLeft, alignRight, alignRight, alignRight, alignRight))
			}
			return nil
		},
	}
}
