package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/config"
	"scribe/internal/runstate"
	"scribe/internal/stats"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status RUN_DIR",
		Short: "Show a point-in-time view of a run",
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
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(progressHeaders, [][]string{progressRow(summary)},
				alignRight, alignRight, alignRight, alignRight, alignRight))
			fmt.Fprintln(out, renderTable(stepHeaders, stepRows(summary),
				alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight))
			if rows := failureRows(items); len(rows) > 0 {
				fmt.Fprintln(out, renderTable(failureHeaders, rows))
			}
			printWarnings(out, manifest)
			return nil
		},
	}
}

// openReadStore resolves a run directory argument and opens its store for
// observation. Read mode never touches the writer lock, so status and monitor
// work against a live run without disturbing it.
func openReadStore(ctx *commandContext, dir string) (*runstate.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	runDir, err := config.ExpandPath(dir)
	if err != nil {
		return nil, err
	}
	lockGrace := time.Duration(cfg.Store.LockGraceSeconds) * time.Second
	return runstate.Open(runDir, runstate.ModeRead, lockGrace, ctx.loggerOrNop())
}
