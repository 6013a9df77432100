package executor_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"scribe/internal/collab"
	"scribe/internal/executor"
	"scribe/internal/logging"
	"scribe/internal/resume"
	"scribe/internal/runstate"
	"scribe/internal/steps"
	"scribe/internal/testsupport"
)

// callCounter records collaborator invocations per step and item.
type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCallCounter() *callCounter {
	return &callCounter{calls: make(map[string]int)}
}

func (c *callCounter) inc(step, itemID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[step+"/"+itemID]++
}

func (c *callCounter) count(step, itemID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[step+"/"+itemID]
}

// pipelineCollaborators simulates the full video pipeline in-process: extract
// resolves a raw frame, convert resolves a canonical png, describe produces
// text under the configured producer identity.
func pipelineCollaborators(counter *callCounter) map[string]collab.Collaborator {
	return map[string]collab.Collaborator{
		steps.ExtractFrames: collab.Func{StepName: steps.ExtractFrames,
			Fn: func(_ context.Context, item runstate.ItemRecord, _ collab.StepConfig) (runstate.ResultEntry, error) {
				counter.inc(steps.ExtractFrames, item.ID)
				return runstate.ResultEntry{Step: steps.ExtractFrames, Producer: steps.ExtractFrames,
					Payload: "/artifacts/" + item.ID + ".raw"}, nil
			}},
		steps.Convert: collab.Func{StepName: steps.Convert,
			Fn: func(_ context.Context, item runstate.ItemRecord, _ collab.StepConfig) (runstate.ResultEntry, error) {
				counter.inc(steps.Convert, item.ID)
				return runstate.ResultEntry{Step: steps.Convert, Producer: steps.Convert,
					Payload: "/artifacts/" + item.ID + ".png"}, nil
			}},
		steps.Describe: collab.Func{StepName: steps.Describe,
			Fn: func(_ context.Context, item runstate.ItemRecord, cfg collab.StepConfig) (runstate.ResultEntry, error) {
				counter.inc(steps.Describe, item.ID)
				return runstate.ResultEntry{Step: steps.Describe, Producer: cfg.Producer,
					Payload: "description of " + item.ID}, nil
			}},
	}
}

func seedVideos(t *testing.T, store *runstate.Store, ids ...string) {
	t.Helper()
	records := make([]*runstate.ItemRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, runstate.NewItemRecord(id, "/media/"+id+".mp4", "video"))
	}
	if err := store.AppendItems(records); err != nil {
		t.Fatalf("AppendItems: %v", err)
	}
}

func newExecutor(t *testing.T, store *runstate.Store, collabs map[string]collab.Collaborator, workers, retryLimit int, render executor.RenderFunc) *executor.Executor {
	t.Helper()
	exec, err := executor.New(executor.Options{
		Store:         store,
		Registry:      steps.NewRegistry("png"),
		Collaborators: collabs,
		StepConfigs: map[string]collab.StepConfig{
			steps.Describe: {Producer: store.Manifest().Config.Producer()},
		},
		Render:     render,
		Workers:    workers,
		RetryLimit: retryLimit,
		Logger:     logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("executor.New: %v", err)
	}
	return exec
}

func reconcileWork(t *testing.T, store *runstate.Store) []string {
	t.Helper()
	plan, err := resume.Reconcile(store, steps.NewRegistry("png"), nil, logging.NewNop())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	return plan.Work
}

func ids(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("item%02d", i))
	}
	return out
}

func TestRunDrivesItemsThroughAllSteps(t *testing.T) {
	store := testsupport.MustCreateStore(t, t.TempDir(), testsupport.NewManifest(2))
	seedVideos(t, store, ids(10)...)

	counter := newCallCounter()
	exec := newExecutor(t, store, pipelineCollaborators(counter), 3, 2, nil)

	summary, err := exec.Run(context.Background(), reconcileWork(t, store))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Completed != 10 || summary.Failed != 0 {
		t.Fatalf("expected 10 completed, got %+v", summary)
	}
	if store.Manifest().Status != runstate.RunStatusCompleted {
		t.Fatalf("run not completed: %s", store.Manifest().Status)
	}
	if store.Manifest().CompletedCount != 10 {
		t.Fatalf("completed count not durable: %d", store.Manifest().CompletedCount)
	}

	for _, id := range ids(10) {
		item, _ := store.GetItem(id)
		for _, step := range []string{steps.ExtractFrames, steps.Convert, steps.Describe} {
			if item.StepStatus(step) != runstate.StepCompleted {
				t.Fatalf("%s/%s not completed: %s", id, step, item.StepStatus(step))
			}
			if n := counter.count(step, id); n != 1 {
				t.Fatalf("%s/%s invoked %d times", id, step, n)
			}
		}
		if item.ResolvedPath != "/artifacts/"+id+".png" {
			t.Fatalf("%s resolved path not advanced: %s", id, item.ResolvedPath)
		}
		if len(item.ResultsFor(steps.Describe)) != 1 {
			t.Fatalf("%s expected one describe result", id)
		}
	}
}

func TestInterruptedStepIsReExecutedExactlyOnce(t *testing.T) {
	store := testsupport.MustCreateStore(t, t.TempDir(), testsupport.NewManifest(2))
	seedVideos(t, store, ids(10)...)

	// Simulate a crash on item04 between "collaborator returned" and
	// "completed committed": extraction durable, convert left in_progress.
	if err := store.CommitItemUpdate("item04", func(item *runstate.ItemRecord) error {
		if err := item.Transition(steps.ExtractFrames, runstate.StepInProgress); err != nil {
			return err
		}
		if err := item.Transition(steps.ExtractFrames, runstate.StepCompleted); err != nil {
			return err
		}
		item.AppendResult(runstate.ResultEntry{Step: steps.ExtractFrames, Producer: steps.ExtractFrames,
			Payload: "/artifacts/item04.raw"})
		item.ResolvedPath = "/artifacts/item04.raw"
		item.Status = runstate.ItemWorking
		return item.Transition(steps.Convert, runstate.StepInProgress)
	}); err != nil {
		t.Fatalf("seed interrupted item: %v", err)
	}

	counter := newCallCounter()
	exec := newExecutor(t, store, pipelineCollaborators(counter), 2, 2, nil)

	summary, err := exec.Run(context.Background(), reconcileWork(t, store))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Completed != 10 {
		t.Fatalf("expected 10/10 completed after resume, got %+v", summary)
	}
	if n := counter.count(steps.Convert, "item04"); n != 1 {
		t.Fatalf("interrupted convert re-executed %d times, want exactly 1", n)
	}
	if n := counter.count(steps.ExtractFrames, "item04"); n != 0 {
		t.Fatalf("completed extract re-executed %d times, want 0", n)
	}
}

func TestFailingItemExhaustsRetryBudgetWithoutAbortingRun(t *testing.T) {
	store := testsupport.MustCreateStore(t, t.TempDir(), testsupport.NewManifest(2))
	seedVideos(t, store, ids(10)...)

	counter := newCallCounter()
	collabs := pipelineCollaborators(counter)
	collabs[steps.Describe] = collab.Func{StepName: steps.Describe,
		Fn: func(_ context.Context, item runstate.ItemRecord, cfg collab.StepConfig) (runstate.ResultEntry, error) {
			counter.inc(steps.Describe, item.ID)
			if item.ID == "item07" {
				return runstate.ResultEntry{}, runstate.Wrap(runstate.ErrCollaborator,
					steps.Describe, "run", "provider rejected the image", nil)
			}
			return runstate.ResultEntry{Step: steps.Describe, Producer: cfg.Producer,
				Payload: "description of " + item.ID}, nil
		}}
	exec := newExecutor(t, store, collabs, 2, 2, nil)

	summary, err := exec.Run(context.Background(), reconcileWork(t, store))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Completed != 9 || summary.Failed != 1 {
		t.Fatalf("expected 9 completed / 1 failed, got %+v", summary)
	}
	if store.Manifest().Status != runstate.RunStatusCompleted {
		t.Fatalf("per-item failure aborted the run: %s", store.Manifest().Status)
	}

	item, _ := store.GetItem("item07")
	if item.Status != runstate.ItemFailed {
		t.Fatalf("item07 not terminally failed: %s", item.Status)
	}
	if n := counter.count(steps.Describe, "item07"); n != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", n)
	}
	if item.RetryCount(steps.Describe) != 2 {
		t.Fatalf("retry count not recorded: %d", item.RetryCount(steps.Describe))
	}
	if item.LastError == nil || item.LastError.Kind != "collaborator" {
		t.Fatalf("last error not diagnosable: %+v", item.LastError)
	}
}

func TestVideoWithNoFramesIsSkipped(t *testing.T) {
	store := testsupport.MustCreateStore(t, t.TempDir(), testsupport.NewManifest(2))
	seedVideos(t, store, "empty")

	counter := newCallCounter()
	collabs := pipelineCollaborators(counter)
	collabs[steps.ExtractFrames] = collab.Func{StepName: steps.ExtractFrames,
		Fn: func(context.Context, runstate.ItemRecord, collab.StepConfig) (runstate.ResultEntry, error) {
			return runstate.ResultEntry{}, collab.ErrNoOutput
		}}
	exec := newExecutor(t, store, collabs, 1, 2, nil)

	summary, err := exec.Run(context.Background(), reconcileWork(t, store))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Skipped != 1 || summary.Completed != 0 {
		t.Fatalf("expected the item skipped, got %+v", summary)
	}

	item, _ := store.GetItem("empty")
	if item.StepStatus(steps.ExtractFrames) != runstate.StepSkipped {
		t.Fatalf("extract not skipped: %s", item.StepStatus(steps.ExtractFrames))
	}
	if n := counter.count(steps.Describe, "empty"); n != 0 {
		t.Fatal("describe must not run without a resolved image")
	}
}

func TestAbortLeavesRunResumable(t *testing.T) {
	dir := t.TempDir()
	store := testsupport.MustCreateStore(t, dir, testsupport.NewManifest(2))
	seedVideos(t, store, ids(10)...)

	ctx, cancel := context.WithCancel(context.Background())
	counter := newCallCounter()
	collabs := pipelineCollaborators(counter)
	describe := collabs[steps.Describe]
	collabs[steps.Describe] = collab.Func{StepName: steps.Describe,
		Fn: func(ctx context.Context, item runstate.ItemRecord, cfg collab.StepConfig) (runstate.ResultEntry, error) {
			if item.ID == "item03" {
				cancel()
			}
			return describe.Run(ctx, item, cfg)
		}}
	exec := newExecutor(t, store, collabs, 1, 2, nil)

	summary, err := exec.Run(ctx, reconcileWork(t, store))
	if err != nil {
		t.Fatalf("Run during abort: %v", err)
	}
	if !summary.Aborted {
		t.Fatal("expected aborted summary")
	}
	if store.Manifest().Status != runstate.RunStatusAborted {
		t.Fatalf("run status not aborted: %s", store.Manifest().Status)
	}

	// Resume to completion; every item ends with exactly one description.
	resumed := newExecutor(t, store, pipelineCollaborators(counter), 2, 2, nil)
	summary, err = resumed.Run(context.Background(), reconcileWork(t, store))
	if err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if summary.Completed != 10 {
		t.Fatalf("expected 10/10 after resume, got %+v", summary)
	}
	for _, id := range ids(10) {
		item, _ := store.GetItem(id)
		if got := len(item.ResultsFor(steps.Describe)); got != 1 {
			t.Fatalf("%s has %d describe results, want 1", id, got)
		}
	}
}

func TestRenderStepRunsOncePerRun(t *testing.T) {
	store := testsupport.MustCreateStore(t, t.TempDir(), testsupport.NewManifest(2))
	seedVideos(t, store, ids(3)...)

	var renders int
	render := func(_ context.Context, manifest runstate.RunManifest, items []runstate.ItemRecord) (string, error) {
		renders++
		if len(items) != 3 {
			t.Fatalf("render saw %d items", len(items))
		}
		if manifest.RunID == "" {
			t.Fatal("render saw empty manifest")
		}
		return "/runs/report.html", nil
	}
	exec := newExecutor(t, store, pipelineCollaborators(newCallCounter()), 2, 2, render)

	summary, err := exec.Run(context.Background(), reconcileWork(t, store))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if renders != 1 {
		t.Fatalf("render invoked %d times", renders)
	}
	if summary.ReportPath != "/runs/report.html" {
		t.Fatalf("report path not surfaced: %s", summary.ReportPath)
	}
	if store.Manifest().ReportPath != "/runs/report.html" {
		t.Fatalf("report path not durable: %s", store.Manifest().ReportPath)
	}
}

func TestUnknownWorkItemFailsRun(t *testing.T) {
	store := testsupport.MustCreateStore(t, t.TempDir(), testsupport.NewManifest(2))
	seedVideos(t, store, "a")

	exec := newExecutor(t, store, pipelineCollaborators(newCallCounter()), 1, 2, nil)
	_, err := exec.Run(context.Background(), []string{"ghost"})
	if !errors.Is(err, runstate.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if store.Manifest().Status != runstate.RunStatusFailed {
		t.Fatalf("run status not failed: %s", store.Manifest().Status)
	}
}
