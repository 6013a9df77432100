package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scribe/internal/config"
	"scribe/internal/report"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "report RUN_DIR",
		Short: "Render the HTML report from a run's current state",
		Long: `Report renders the HTML summary from whatever state the run has reached.
It works on completed, failed, and in-flight runs alike; the report simply
reflects the snapshot at render time.`,
		Args: cobra.ExactArgs(1),
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

			var path string
			if output != "" {
				path, err = config.ExpandPath(output)
				if err != nil {
					return err
				}
				page, renderErr := report.Render(manifest, items)
				if renderErr != nil {
					return renderErr
				}
				if err := os.WriteFile(path, page, 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
			} else {
				path, err = report.Write(store.Dir(), manifest, items)
				if err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to this path instead of the run directory")

	return cmd
}
