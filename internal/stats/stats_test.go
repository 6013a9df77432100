package stats_test

import (
	"testing"
	"time"

	"scribe/internal/runstate"
	"scribe/internal/stats"
)

func snapshotFixture() (runstate.RunManifest, []runstate.ItemRecord) {
	created := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	manifest := runstate.RunManifest{
		RunID:     "run-1",
		Status:    runstate.RunStatusRunning,
		Steps:     []string{"extract_frames", "convert", "describe", "render"},
		Config:    runstate.RunConfig{Provider: "openai", Model: "gpt-4o-mini"},
		Warnings:  []string{"skipped unreadable dir"},
		CreatedAt: created,
		UpdatedAt: created.Add(50 * time.Second),
	}

	items := []runstate.ItemRecord{
		{
			ID: "a", Status: runstate.ItemCompleted,
			Steps: map[string]runstate.StepStatus{"describe": runstate.StepCompleted},
			Results: []runstate.ResultEntry{
				{Step: "describe", Producer: "openai/gpt-4o-mini", Duration: 4 * time.Second},
				{Step: "describe", Producer: "anthropic/claude-sonnet", Duration: 2 * time.Second, Cached: true},
			},
		},
		{
			ID: "b", Status: runstate.ItemCompleted,
			Steps: map[string]runstate.StepStatus{"describe": runstate.StepCompleted},
			Results: []runstate.ResultEntry{
				{Step: "describe", Producer: "openai/gpt-4o-mini", Duration: 2 * time.Second},
			},
		},
		{
			ID: "c", Status: runstate.ItemFailed,
			Steps: map[string]runstate.StepStatus{"describe": runstate.StepFailed},
		},
		{
			ID: "d", Status: runstate.ItemPending,
			Steps: map[string]runstate.StepStatus{"describe": runstate.StepPending},
		},
	}
	return manifest, items
}

func TestComputeCountsAndSteps(t *testing.T) {
	manifest, items := snapshotFixture()
	now := manifest.CreatedAt.Add(100 * time.Second)
	summary := stats.Compute(manifest, items, now)

	if summary.Total != 4 || summary.Completed != 2 || summary.Failed != 1 || summary.Remaining != 1 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if summary.Warnings != 1 {
		t.Fatalf("warnings not counted: %d", summary.Warnings)
	}

	var describe *stats.StepCounts
	for i := range summary.Steps {
		if summary.Steps[i].Step == "describe" {
			describe = &summary.Steps[i]
		}
	}
	if describe == nil {
		t.Fatal("describe step missing from breakdown")
	}
	if describe.Completed != 2 || describe.Failed != 1 || describe.Pending != 1 {
		t.Fatalf("describe breakdown wrong: %+v", describe)
	}
}

func TestComputeProducerAggregates(t *testing.T) {
	manifest, items := snapshotFixture()
	summary := stats.Compute(manifest, items, manifest.CreatedAt.Add(time.Minute))

	if len(summary.Producers) != 2 {
		t.Fatalf("expected 2 producers, got %d", len(summary.Producers))
	}
	// Sorted by identity: anthropic first.
	anthropic, openai := summary.Producers[0], summary.Producers[1]
	if anthropic.Producer != "anthropic/claude-sonnet" || anthropic.Results != 1 || anthropic.Cached != 1 {
		t.Fatalf("anthropic aggregate wrong: %+v", anthropic)
	}
	if openai.Producer != "openai/gpt-4o-mini" || openai.Results != 2 {
		t.Fatalf("openai aggregate wrong: %+v", openai)
	}
	if openai.AvgDuration != 3*time.Second {
		t.Fatalf("openai avg duration wrong: %s", openai.AvgDuration)
	}
}

func TestComputeThroughputAndEstimate(t *testing.T) {
	manifest, items := snapshotFixture()
	now := manifest.CreatedAt.Add(100 * time.Second)
	summary := stats.Compute(manifest, items, now)

	if summary.Elapsed != 100*time.Second {
		t.Fatalf("elapsed wrong for running manifest: %s", summary.Elapsed)
	}
	// 3 processed (2 completed + 1 failed) over 100s.
	if summary.ItemsPerSecond < 0.029 || summary.ItemsPerSecond > 0.031 {
		t.Fatalf("throughput wrong: %f", summary.ItemsPerSecond)
	}
	// Completed item durations: 6s and 2s, avg 4s, 1 remaining item.
	if summary.EstimatedRemaining != 4*time.Second {
		t.Fatalf("estimate wrong: %s", summary.EstimatedRemaining)
	}

	manifest.Status = runstate.RunStatusCompleted
	finished := stats.Compute(manifest, items, now)
	if finished.Elapsed != 50*time.Second {
		t.Fatalf("finished run should use manifest timestamps, got %s", finished.Elapsed)
	}
}
