package collab

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"scribe/internal/runstate"
	"scribe/internal/steps"
)

// Converter rewrites an image into the canonical format with the configured
// tool. The output name is derived from the item identity.
type Converter struct{}

// NewConverter constructs the image conversion collaborator.
func NewConverter() *Converter {
	return &Converter{}
}

func (c *Converter) Name() string { return steps.Convert }

// Run converts the item's current image into the canonical format. Like
// extraction, an existing non-empty output is reused without a subprocess.
func (c *Converter) Run(ctx context.Context, item runstate.ItemRecord, cfg StepConfig) (runstate.ResultEntry, error) {
	started := time.Now()
	input := inputImage(item)
	output := filepath.Join(cfg.ArtifactDir, item.ID+"."+normalizeFormat(cfg.Format))

	if hasContent(output) {
		return convertResult(output, started), nil
	}
	if err := os.MkdirAll(cfg.ArtifactDir, 0o755); err != nil {
		return runstate.ResultEntry{}, runstate.Wrap(runstate.ErrCollaborator, steps.Convert, "prepare",
			fmt.Sprintf("create artifact directory %s", cfg.ArtifactDir), err)
	}

	args := []string{"-y", "-v", "error", "-i", input, output}
	if _, err := runCommand(ctx, steps.Convert, cfg.Timeout, cfg.Command, args...); err != nil {
		return runstate.ResultEntry{}, err
	}
	if !hasContent(output) {
		os.Remove(output)
		return runstate.ResultEntry{}, runstate.Wrap(runstate.ErrCollaborator, steps.Convert, "run",
			fmt.Sprintf("%s produced no output for %s", cfg.Command, input), nil)
	}
	return convertResult(output, started), nil
}

func convertResult(output string, started time.Time) runstate.ResultEntry {
	return runstate.ResultEntry{
		Step:      steps.Convert,
		Producer:  steps.Convert,
		Payload:   output,
		CreatedAt: time.Now().UTC(),
		Duration:  time.Since(started),
	}
}

var _ Collaborator = (*Converter)(nil)
