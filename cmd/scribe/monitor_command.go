package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/monitor"
	"scribe/internal/stats"
)

func newMonitorCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "monitor RUN_DIR",
		Short: "Follow a run live from a separate process",
		Long: `Monitor polls the run directory and redraws whenever the writer commits.
It opens the state read-only, so it can watch a run owned by another process
without interfering with it. When the writing process exits, the view is
marked stale but stays visible.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openReadStore(ctx, args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if interval <= 0 {
				interval = time.Duration(cfg.Monitor.PollIntervalSeconds) * time.Second
			}

			watcher, err := monitor.NewWatcher(store, interval, ctx.loggerOrNop())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			clearable := shouldColorize(out)
			for snap := range watcher.Watch(cmd.Context()) {
				if clearable {
					// ANSI clear-and-home keeps the view in place on a terminal.
					fmt.Fprint(out, "\033[2J\033[H")
				}
				summary := stats.Compute(snap.Manifest, snap.Items, snap.ObservedAt)
				printRunHeader(out, snap.Manifest, summary, snap.Stale)
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable(progressHeaders, [][]string{progressRow(summary)},
					alignRight, alignRight, alignRight, alignRight, alignRight))
				if rows := recentResults(snap.Items, cfg.Monitor.RecentResults); len(rows) > 0 {
					fmt.Fprintln(out, renderTable(recentHeaders, rows))
				}
				fmt.Fprintf(out, "Observed %s\n", snap.ObservedAt.Local().Format(time.TimeOnly))
			}
			return cmd.Context().Err()
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (default: from config)")

	return cmd
}
