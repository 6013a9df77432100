package deps_test

import (
	"os"
	"path/filepath"
	"testing"

	"scribe/internal/deps"
	"scribe/internal/steps"
	"scribe/internal/testsupport"
)

func stubBinary(t *testing.T, name string) {
	t.Helper()
	binDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(binDir, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestForStepsSkipsRender(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reqs := deps.ForSteps(cfg, []string{steps.ExtractFrames, steps.Convert, steps.Describe, steps.Render})
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requirements, got %d", len(reqs))
	}
	for _, req := range reqs {
		if req.Step == steps.Render {
			t.Fatal("render must not require an external tool")
		}
	}
}

func TestCheckReportsMissingBinary(t *testing.T) {
	statuses := deps.Check([]deps.Requirement{
		{Step: steps.Convert, Command: "definitely-not-on-path-xyz"},
	})
	if len(statuses) != 1 || statuses[0].Available {
		t.Fatalf("expected unavailable status, got %+v", statuses)
	}
	if _, missing := deps.FirstMissing(statuses); !missing {
		t.Fatal("FirstMissing did not flag the missing binary")
	}
}

func TestCheckReportsUnconfiguredCommand(t *testing.T) {
	statuses := deps.Check([]deps.Requirement{{Step: steps.Describe, Command: "  "}})
	if statuses[0].Available || statuses[0].Detail != "command not configured" {
		t.Fatalf("unexpected status: %+v", statuses[0])
	}
}

func TestCheckFindsStubbedBinary(t *testing.T) {
	stubBinary(t, "fake-ffmpeg")
	statuses := deps.Check([]deps.Requirement{{Step: steps.ExtractFrames, Command: "fake-ffmpeg"}})
	if !statuses[0].Available {
		t.Fatalf("stubbed binary not found: %+v", statuses[0])
	}
	if _, missing := deps.FirstMissing(statuses); missing {
		t.Fatal("FirstMissing flagged an available tool")
	}
}
