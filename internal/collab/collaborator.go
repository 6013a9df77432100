package collab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"scribe/internal/runstate"
)

var commandContext = exec.CommandContext

// ErrNoOutput signals that a collaborator ran successfully but produced
// nothing usable, such as a video with no decodable frames. The caller
// records the step as skipped rather than failed.
var ErrNoOutput = errors.New("collaborator produced no output")

// StepConfig carries the execution settings for a single collaborator call.
type StepConfig struct {
	Command     string
	ArtifactDir string
	Format      string
	Producer    string
	Provider    string
	Model       string
	Prompt      string
	Timeout     time.Duration
}

// Collaborator executes one pipeline step against one item.
type Collaborator interface {
	Name() string
	Run(ctx context.Context, item runstate.ItemRecord, cfg StepConfig) (runstate.ResultEntry, error)
}

// Func adapts a plain function into a Collaborator.
type Func struct {
	StepName string
	Fn       func(ctx context.Context, item runstate.ItemRecord, cfg StepConfig) (runstate.ResultEntry, error)
}

func (f Func) Name() string { return f.StepName }

func (f Func) Run(ctx context.Context, item runstate.ItemRecord, cfg StepConfig) (runstate.ResultEntry, error) {
	return f.Fn(ctx, item, cfg)
}

var _ Collaborator = Func{}

// inputImage is the image a convert or describe call should operate on:
// the artifact from an earlier step when present, otherwise the source file.
func inputImage(item runstate.ItemRecord) string {
	if item.ResolvedPath != "" {
		return item.ResolvedPath
	}
	return item.SourcePath
}

// runCommand executes a collaborator subprocess, applying the configured
// timeout and capturing stdout. Stderr is retained for the error message.
func runCommand(ctx context.Context, step string, timeout time.Duration, name string, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := commandContext(ctx, name, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, runstate.Wrap(runstate.ErrCollaborator, step, "run",
				fmt.Sprintf("%s timed out after %s", name, timeout), ctxErr)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, runstate.Wrap(runstate.ErrCollaborator, step, "run",
			fmt.Sprintf("%s failed: %s", name, lastLine(detail)), err)
	}
	return stdout.Bytes(), nil
}

// lastLine keeps error payloads bounded; tool stderr can run to pages.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
