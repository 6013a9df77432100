package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"scribe/internal/collab"
	"scribe/internal/logging"
	"scribe/internal/runstate"
	"scribe/internal/steps"
)

// RenderFunc produces the run-level report from a final snapshot and returns
// the path it wrote.
type RenderFunc func(ctx context.Context, manifest runstate.RunManifest, items []runstate.ItemRecord) (string, error)

// Options configure one pipeline pass over a run directory.
type Options struct {
	Store         *runstate.Store
	Registry      *steps.Registry
	Collaborators map[string]collab.Collaborator
	StepConfigs   map[string]collab.StepConfig
	Render        RenderFunc
	Workers       int
	RetryLimit    int
	Logger        *slog.Logger
}

// Summary is the outcome of one executor pass, derived from the final
// durable state of the run.
type Summary struct {
	Total      int
	Completed  int
	Failed     int
	Skipped    int
	Remaining  int
	Aborted    bool
	ReportPath string
}

// Executor drives items through the pipeline. Collaborators for different
// items may run concurrently on the worker pool; every state change funnels
// through the store's single commit path, which serializes them.
type Executor struct {
	store         *runstate.Store
	registry      *steps.Registry
	collaborators map[string]collab.Collaborator
	stepConfigs   map[string]collab.StepConfig
	render        RenderFunc
	workers       int
	retryLimit    int
	enabled       map[string]bool
	logger        *slog.Logger

	mu      sync.Mutex
	lastErr error
}

// New validates the options and builds an executor bound to the store's run.
func New(opts Options) (*Executor, error) {
	if opts.Store == nil {
		return nil, runstate.Wrap(runstate.ErrConfiguration, "executor", "new", "store is required", nil)
	}
	if opts.Store.Mode() != runstate.ModeWrite {
		return nil, runstate.Wrap(runstate.ErrConfiguration, "executor", "new", "store must be opened in write mode", nil)
	}
	if opts.Registry == nil {
		return nil, runstate.Wrap(runstate.ErrConfiguration, "executor", "new", "step registry is required", nil)
	}

	manifest := opts.Store.Manifest()
	enabled := make(map[string]bool, len(manifest.Steps))
	for _, name := range manifest.Steps {
		enabled[name] = true
	}
	for _, name := range opts.Registry.PerItem() {
		if enabled[name] && opts.Collaborators[name] == nil {
			return nil, runstate.Wrap(runstate.ErrConfiguration, "executor", "new",
				fmt.Sprintf("no collaborator bound to step %s", name), nil)
		}
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		store:         opts.Store,
		registry:      opts.Registry,
		collaborators: opts.Collaborators,
		stepConfigs:   opts.StepConfigs,
		render:        opts.Render,
		workers:       workers,
		retryLimit:    opts.RetryLimit,
		enabled:       enabled,
		logger:        logging.NewComponentLogger(opts.Logger, "executor"),
	}, nil
}

// Run processes the reconciled work list to completion, cancellation, or a
// store-level error. Per-item failures never abort the run; store errors
// always do.
func (e *Executor) Run(ctx context.Context, work []string) (Summary, error) {
	manifest := e.store.Manifest()
	runCtx, cancel := context.WithCancel(logging.WithRunID(ctx, manifest.RunID))
	defer cancel()

	logger := logging.WithContext(runCtx, e.logger)
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("work_items", len(work)),
		logging.Int("workers", e.workers))

	queue := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range queue {
				if err := e.processItem(runCtx, id); err != nil {
					if !errors.Is(err, context.Canceled) {
						e.setLastErr(err)
					}
					cancel()
				}
			}
		}()
	}

feed:
	for _, id := range work {
		select {
		case <-runCtx.Done():
			break feed
		case queue <- id:
		}
	}
	close(queue)
	wg.Wait()

	return e.finishRun(ctx, logger)
}

// processItem loops an item through NextApplicableStep until no work
// remains, the run stops, or the item's retry budget is spent. The returned
// error is always run-fatal (store failure or cancellation); collaborator
// failures are absorbed into item state.
func (e *Executor) processItem(ctx context.Context, id string) error {
	ctx = logging.WithItemID(ctx, id)
	logger := logging.WithContext(ctx, e.logger)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, ok := e.store.GetItem(id)
		if !ok {
			return runstate.Wrap(runstate.ErrValidation, "executor", "process",
				fmt.Sprintf("unknown item %s", id), nil)
		}

		step, hasWork := e.registry.NextApplicableStep(&item)
		if !hasWork {
			return e.finalizeItem(id, &item, logger)
		}
		if !e.enabled[step] {
			// The run was asked for a step subset; this item waits for a
			// later run that enables the step.
			logger.Debug("next step not enabled for this run", logging.String(logging.FieldStep, step))
			return nil
		}
		if item.StepStatus(step) == runstate.StepFailed && item.RetryCount(step) >= e.retryLimit {
			return e.markExhausted(id, step, logger)
		}
		if err := e.runStep(ctx, id, step); err != nil {
			return err
		}
	}
}

func (e *Executor) runStep(ctx context.Context, id, step string) error {
	ctx = logging.WithCorrelationID(logging.WithStep(ctx, step), uuid.NewString())
	logger := logging.WithContext(ctx, e.logger)

	if err := e.store.CommitItemUpdate(id, func(item *runstate.ItemRecord) error {
		if err := item.Transition(step, runstate.StepInProgress); err != nil {
			return err
		}
		if item.Status == runstate.ItemPending {
			item.Status = runstate.ItemWorking
		}
		return nil
	}); err != nil {
		return err
	}

	item, _ := e.store.GetItem(id)
	logger.Info("step started",
		logging.String(logging.FieldEventType, "step_start"),
		logging.String("source", item.SourcePath))

	entry, err := e.collaborators[step].Run(ctx, item, e.stepConfigs[step])
	switch {
	case err == nil:
		return e.commitSuccess(id, step, entry, logger)
	case errors.Is(err, collab.ErrNoOutput):
		return e.commitSkip(id, step, logger)
	case ctx.Err() != nil:
		// Shutdown interrupted the call. The step stays in_progress; resume
		// resets it to pending and the collaborator, being idempotent, is
		// simply invoked again.
		return ctx.Err()
	default:
		return e.commitFailure(id, step, err, logger)
	}
}

// commitSuccess persists the result entry and the completed mark in one
// atomic commit; a step is never observable as completed without its result.
func (e *Executor) commitSuccess(id, step string, entry runstate.ResultEntry, logger *slog.Logger) error {
	if err := e.store.CommitItemUpdate(id, func(item *runstate.ItemRecord) error {
		if err := item.Transition(step, runstate.StepCompleted); err != nil {
			return err
		}
		item.AppendResult(entry)
		if step == steps.ExtractFrames || step == steps.Convert {
			item.ResolvedPath = entry.Payload
		}
		item.LastError = nil
		return nil
	}); err != nil {
		return err
	}
	logger.Info("step completed",
		logging.String(logging.FieldEventType, "step_complete"),
		logging.Duration("step_duration", entry.Duration),
		logging.Bool("cached", entry.Cached))
	return nil
}

func (e *Executor) commitSkip(id, step string, logger *slog.Logger) error {
	if err := e.store.CommitItemUpdate(id, func(item *runstate.ItemRecord) error {
		return item.Transition(step, runstate.StepSkipped)
	}); err != nil {
		return err
	}
	logger.Info("step skipped, collaborator produced no usable output",
		logging.String(logging.FieldEventType, "step_skipped"))
	return nil
}

func (e *Executor) commitFailure(id, step string, stepErr error, logger *slog.Logger) error {
	kind := "collaborator"
	if errors.Is(stepErr, runstate.ErrConfiguration) {
		kind = "configuration"
	}
	var retries int
	if err := e.store.CommitItemUpdate(id, func(item *runstate.ItemRecord) error {
		if err := item.RecordFailure(step, kind, stepErr.Error()); err != nil {
			return err
		}
		retries = item.RetryCount(step)
		return nil
	}); err != nil {
		return err
	}
	logger.Warn("step failed",
		logging.String(logging.FieldEventType, "step_failed"),
		logging.Error(stepErr),
		logging.Int("attempts", retries),
		logging.Int("retry_limit", e.retryLimit))
	return nil
}

func (e *Executor) finalizeItem(id string, item *runstate.ItemRecord, logger *slog.Logger) error {
	status := e.registry.FinalStatus(item)
	if item.Status == status {
		return nil
	}
	if err := e.store.CommitItemUpdate(id, func(item *runstate.ItemRecord) error {
		item.Status = status
		return nil
	}); err != nil {
		return err
	}
	logger.Info("item finished",
		logging.String(logging.FieldEventType, "item_finished"),
		logging.String("status", string(status)))
	return nil
}

func (e *Executor) markExhausted(id, step string, logger *slog.Logger) error {
	if err := e.store.CommitItemUpdate(id, func(item *runstate.ItemRecord) error {
		item.Status = runstate.ItemFailed
		return nil
	}); err != nil {
		return err
	}
	logger.Warn("item terminally failed, retry budget spent",
		logging.String(logging.FieldEventType, "item_failed"),
		logging.String(logging.FieldStep, step))
	return nil
}

// finishRun settles the run-level status, renders the report when the run
// completed, and derives the summary from the final durable state.
func (e *Executor) finishRun(ctx context.Context, logger *slog.Logger) (Summary, error) {
	if storeErr := e.takeLastErr(); storeErr != nil {
		_ = e.store.CommitRun(func(m *runstate.RunManifest) error {
			m.Status = runstate.RunStatusFailed
			return nil
		})
		logger.Error("run failed", logging.Error(storeErr),
			logging.String(logging.FieldEventType, "run_failed"))
		return e.summarize(true), storeErr
	}

	if ctx.Err() != nil {
		if err := e.store.CommitRun(func(m *runstate.RunManifest) error {
			m.Status = runstate.RunStatusAborted
			return nil
		}); err != nil {
			return e.summarize(true), err
		}
		logger.Info("run aborted, state is safe for resume",
			logging.String(logging.FieldEventType, "run_aborted"))
		return e.summarize(true), nil
	}

	var reportPath string
	if e.enabled[steps.Render] && e.render != nil {
		manifest, items, err := e.store.Snapshot()
		if err != nil {
			return e.summarize(false), err
		}
		reportPath, err = e.render(ctx, manifest, items)
		if err != nil {
			_ = e.store.CommitRun(func(m *runstate.RunManifest) error {
				m.Status = runstate.RunStatusFailed
				return nil
			})
			return e.summarize(false), runstate.Wrap(runstate.ErrCollaborator, "executor", "render",
				"report rendering failed", err)
		}
	}

	if err := e.store.CommitRun(func(m *runstate.RunManifest) error {
		m.Status = runstate.RunStatusCompleted
		if reportPath != "" {
			m.ReportPath = reportPath
		}
		return nil
	}); err != nil {
		return e.summarize(false), err
	}

	summary := e.summarize(false)
	summary.ReportPath = reportPath
	logger.Info("run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped))
	return summary, nil
}

func (e *Executor) summarize(aborted bool) Summary {
	summary := Summary{Aborted: aborted}
	for _, item := range e.store.Items() {
		summary.Total++
		switch item.Status {
		case runstate.ItemCompleted:
			summary.Completed++
		case runstate.ItemFailed:
			summary.Failed++
		case runstate.ItemSkipped:
			summary.Skipped++
		default:
			summary.Remaining++
		}
	}
	return summary
}

func (e *Executor) setLastErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastErr == nil {
		e.lastErr = err
	}
}

func (e *Executor) takeLastErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.lastErr
	e.lastErr = nil
	return err
}
