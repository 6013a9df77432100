package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/classify"
	"scribe/internal/collab"
	"scribe/internal/config"
	"scribe/internal/deps"
	"scribe/internal/describecache"
	"scribe/internal/executor"
	"scribe/internal/logging"
	"scribe/internal/report"
	"scribe/internal/resume"
	"scribe/internal/runstate"
	"scribe/internal/steps"
)

type runOptions struct {
	input            string
	runDir           string
	stepList         []string
	resumeDir        string
	overrideProvider string
	overrideModel    string
	overridePrompt   string
	workers          int
	retryLimit       int
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := runOptions{workers: -1, retryLimit: -1}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a directory of media files through the pipeline",
		Long: `Run discovers media files under the input directory, drives each one
through the enabled pipeline steps, and renders a report when every item has
settled. State is committed durably after every step, so an interrupted run
can be resumed with --resume without repeating completed work.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, ctx, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Input directory to scan for media files")
	cmd.Flags().StringVar(&opts.runDir, "run-dir", "", "Run directory for durable state (default: scribe-run-<timestamp>)")
	cmd.Flags().StringSliceVar(&opts.stepList, "steps", nil, "Subset of steps to enable (default: all)")
	cmd.Flags().StringVar(&opts.resumeDir, "resume", "", "Resume the run in this directory instead of starting fresh")
	cmd.Flags().StringVar(&opts.overrideProvider, "override-provider", "", "Re-describe with this provider on resume")
	cmd.Flags().StringVar(&opts.overrideModel, "override-model", "", "Re-describe with this model on resume")
	cmd.Flags().StringVar(&opts.overridePrompt, "override-prompt", "", "Re-describe with this prompt on resume")
	cmd.Flags().IntVar(&opts.workers, "workers", -1, "Concurrent workers (default: from config)")
	cmd.Flags().IntVar(&opts.retryLimit, "retry-limit", -1, "Attempts per step before an item fails (default: from config)")

	return cmd
}

func runPipeline(cmd *cobra.Command, cmdCtx *commandContext, opts runOptions) error {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := cmdCtx.ensureLogger()
	if err != nil {
		return err
	}

	resuming := strings.TrimSpace(opts.resumeDir) != ""
	if !resuming && strings.TrimSpace(opts.input) == "" {
		return fmt.Errorf("--input is required unless resuming")
	}
	if resuming && strings.TrimSpace(opts.input) != "" {
		return fmt.Errorf("--input and --resume are mutually exclusive")
	}

	workers := opts.workers
	if workers < 0 {
		workers = cfg.Pipeline.Workers
	}
	retryLimit := opts.retryLimit
	if retryLimit < 0 {
		retryLimit = cfg.Pipeline.RetryLimit
	}

	registry := steps.NewRegistry(cfg.Convert.Format)
	enabledSteps, err := resolveSteps(registry, opts.stepList)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	lockGrace := time.Duration(cfg.Store.LockGraceSeconds) * time.Second

	var store *runstate.Store
	if resuming {
		runDir, err := config.ExpandPath(opts.resumeDir)
		if err != nil {
			return err
		}
		store, err = runstate.Open(runDir, runstate.ModeWrite, lockGrace, logger)
		if err != nil {
			return err
		}
		// An explicit flag rebinds the recorded budget; otherwise the run
		// keeps the budget it started with, so reconcile and executor agree.
		if opts.retryLimit >= 0 {
			if err := store.CommitRun(func(m *runstate.RunManifest) error {
				m.RetryLimit = opts.retryLimit
				return nil
			}); err != nil {
				store.Close()
				return err
			}
		}
		retryLimit = store.Manifest().RetryLimit
	} else {
		inputRoot, err := config.ExpandPath(opts.input)
		if err != nil {
			return err
		}
		runDir := strings.TrimSpace(opts.runDir)
		if runDir == "" {
			runDir = "scribe-run-" + time.Now().UTC().Format("20060102-150405")
		}
		runDir, err = config.ExpandPath(runDir)
		if err != nil {
			return err
		}

		manifest := runstate.NewManifest(inputRoot, cfg.Pipeline.Recursive, enabledSteps, runstate.RunConfig{
			Provider: cfg.Describe.Provider,
			Model:    cfg.Describe.Model,
			Prompt:   cfg.Describe.Prompt,
		}, retryLimit)

		store, err = runstate.Create(runDir, manifest, lockGrace, logger)
		if err != nil {
			return err
		}
	}
	defer store.Close()

	manifest := store.Manifest()
	if missing, found := deps.FirstMissing(deps.Check(deps.ForSteps(cfg, manifest.Steps))); found {
		return runstate.Wrap(runstate.ErrConfiguration, "run", "preflight",
			fmt.Sprintf("step %s unavailable: %s", missing.Step, missing.Detail), nil)
	}

	if !resuming {
		if err := discoverItems(store, cfg, logger); err != nil {
			return err
		}
	}

	override := overrideConfig(opts, manifest.Config)
	plan, err := resume.Reconcile(store, registry, override, logger)
	if err != nil {
		return err
	}

	collaborators, closeCache, err := buildCollaborators(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	runner, err := executor.New(executor.Options{
		Store:         store,
		Registry:      registry,
		Collaborators: collaborators,
		StepConfigs:   stepConfigs(cfg, store),
		Render: func(_ context.Context, m runstate.RunManifest, items []runstate.ItemRecord) (string, error) {
			return report.Write(store.Dir(), m, items)
		},
		Workers:    workers,
		RetryLimit: retryLimit,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	summary, err := runner.Run(ctx, plan.Work)
	if err != nil {
		return err
	}

	printRunSummary(cmd, store.Dir(), summary)

	if summary.Aborted {
		return runstate.Wrap(runstate.ErrRunAborted, "run", "execute",
			"interrupted; resume with --resume "+store.Dir(), nil)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%w: %d of %d items failed", errItemFailures, summary.Failed, summary.Total)
	}
	return nil
}

// resolveSteps validates a --steps selection against the registry and returns
// it in pipeline order. An empty selection enables every step.
func resolveSteps(registry *steps.Registry, requested []string) ([]string, error) {
	all := registry.Names()
	if len(requested) == 0 {
		return all, nil
	}

	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		cleaned := strings.ToLower(strings.TrimSpace(name))
		if cleaned == "" {
			continue
		}
		want[cleaned] = true
	}

	ordered := make([]string, 0, len(want))
	for _, name := range all {
		if want[name] {
			ordered = append(ordered, name)
			delete(want, name)
		}
	}
	for name := range want {
		return nil, fmt.Errorf("unknown step %q (valid: %s)", name, strings.Join(all, ", "))
	}
	if len(ordered) == 0 {
		return nil, fmt.Errorf("no steps enabled")
	}
	return ordered, nil
}

// discoverItems scans the input root and seeds the store with one record per
// file. Scan warnings are recorded on the manifest in the same commit.
func discoverItems(store *runstate.Store, cfg *config.Config, logger *slog.Logger) error {
	manifest := store.Manifest()
	exts := classify.NewExtensions(cfg.Pipeline.ImageExtensions, cfg.Pipeline.VideoExtensions)

	candidates, warnings, err := classify.Scan(manifest.InputRoot, manifest.Recursive, exts)
	if err != nil {
		return err
	}

	records := make([]*runstate.ItemRecord, 0, len(candidates))
	for _, candidate := range candidates {
		records = append(records, runstate.NewItemRecord(candidate.ID, candidate.AbsPath, string(candidate.Kind)))
	}
	if err := store.AppendItems(records); err != nil {
		return err
	}

	if len(warnings) > 0 {
		if err := store.CommitRun(func(m *runstate.RunManifest) error {
			for _, warning := range warnings {
				m.Warnings = append(m.Warnings, warning.String())
			}
			return nil
		}); err != nil {
			return err
		}
	}

	logger.Info("input scanned",
		logging.String("input_root", manifest.InputRoot),
		logging.Int("items", len(records)),
		logging.Int("warnings", len(warnings)))
	return nil
}

// overrideConfig builds the resume override from flags, or nil when no
// override flag was set. Unset fields inherit the run's recorded config.
func overrideConfig(opts runOptions, current runstate.RunConfig) *runstate.RunConfig {
	if opts.overrideProvider == "" && opts.overrideModel == "" && opts.overridePrompt == "" {
		return nil
	}
	override := current
	if opts.overrideProvider != "" {
		override.Provider = opts.overrideProvider
	}
	if opts.overrideModel != "" {
		override.Model = opts.overrideModel
	}
	if opts.overridePrompt != "" {
		override.Prompt = opts.overridePrompt
	}
	return &override
}

// buildCollaborators binds one collaborator per per-item step. The returned
// cleanup closes the description cache when one was opened.
func buildCollaborators(cfg *config.Config, logger *slog.Logger) (map[string]collab.Collaborator, func(), error) {
	var describer collab.Collaborator = collab.NewCommandDescriber()
	closeCache := func() {}

	if cfg.Cache.Enabled {
		cache, err := describecache.Open(cfg.Cache.Path, logger)
		if err != nil {
			// A broken cache degrades to uncached describes; the run proceeds.
			logger.Warn("description cache unavailable",
				logging.String("path", cfg.Cache.Path),
				logging.Error(err))
		} else {
			describer = collab.NewCachingDescriber(describer, cache)
			closeCache = func() { _ = cache.Close() }
		}
	}

	return map[string]collab.Collaborator{
		steps.ExtractFrames: collab.NewFrameExtractor(),
		steps.Convert:       collab.NewConverter(),
		steps.Describe:      describer,
	}, closeCache, nil
}

func stepConfigs(cfg *config.Config, store *runstate.Store) map[string]collab.StepConfig {
	manifest := store.Manifest()
	artifactDir := filepath.Join(store.Dir(), "artifacts")
	return map[string]collab.StepConfig{
		steps.ExtractFrames: {
			Command:     cfg.Extract.Command,
			ArtifactDir: artifactDir,
			Format:      cfg.Convert.Format,
			Timeout:     time.Duration(cfg.Extract.TimeoutSeconds) * time.Second,
		},
		steps.Convert: {
			Command:     cfg.Convert.Command,
			ArtifactDir: artifactDir,
			Format:      cfg.Convert.Format,
			Timeout:     time.Duration(cfg.Convert.TimeoutSeconds) * time.Second,
		},
		steps.Describe: {
			Command:  cfg.Describe.Command,
			Producer: manifest.Config.Producer(),
			Provider: manifest.Config.Provider,
			Model:    manifest.Config.Model,
			Prompt:   manifest.Config.Prompt,
			Timeout:  time.Duration(cfg.Describe.TimeoutSeconds) * time.Second,
		},
	}
}

func printRunSummary(cmd *cobra.Command, runDir string, summary executor.Summary) {
	out := cmd.OutOrStdout()

	status := "completed"
	switch {
	case summary.Aborted:
		status = "aborted"
	case summary.Failed > 0:
		status = "completed with failures"
	}

	fmt.Fprintf(out, "Run %s\n", status)
	fmt.Fprintln(out, renderTable(
		[]string{"Total", "Completed", "Failed", "Skipped", "Remaining"},
		[][]string{{
			formatCount(summary.Total),
			formatCount(summary.Completed),
			formatCount(summary.Failed),
			formatCount(summary.Skipped),
			formatCount(summary.Remaining),
		}},
		alignRight, alignRight, alignRight, alignRight, alignRight,
	))
	fmt.Fprintf(out, "State: %s\n", runDir)
	if summary.ReportPath != "" {
		fmt.Fprintf(out, "Report: %s\n", summary.ReportPath)
	}
}
