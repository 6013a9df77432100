package main

import (
	"github.com/spf13/cobra"
)

// newResumeCommand is the dedicated form of `run --resume`. The pipeline path
// is identical; only the argument shape differs.
func newResumeCommand(ctx *commandContext) *cobra.Command {
	opts := runOptions{workers: -1, retryLimit: -1}

	cmd := &cobra.Command{
		Use:   "resume RUN_DIR",
		Short: "Resume an interrupted run from its durable state",
		Long: `Resume picks up a run exactly where it stopped: completed work is never
repeated, steps that were in flight when the previous writer died are re-run,
and failed steps are retried while their budget lasts. With an override flag,
completed items are re-described under the new provider identity while every
earlier description is kept for comparison.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.resumeDir = args[0]
			return runPipeline(cmd, ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.overrideProvider, "override-provider", "", "Re-describe with this provider")
	cmd.Flags().StringVar(&opts.overrideModel, "override-model", "", "Re-describe with this model")
	cmd.Flags().StringVar(&opts.overridePrompt, "override-prompt", "", "Re-describe with this prompt")
	cmd.Flags().IntVar(&opts.workers, "workers", -1, "Concurrent workers (default: from config)")
	cmd.Flags().IntVar(&opts.retryLimit, "retry-limit", -1, "Attempts per step before an item fails (default: from config)")

	return cmd
}
