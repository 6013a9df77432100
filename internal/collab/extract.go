package collab

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scribe/internal/runstate"
	"scribe/internal/steps"
)

// FrameExtractor pulls one representative frame out of a video using the
// configured tool (ffmpeg by default). Output paths are derived from the
// item identity, so re-running after a crash overwrites nothing new.
type FrameExtractor struct{}

// NewFrameExtractor constructs the frame extraction collaborator.
func NewFrameExtractor() *FrameExtractor {
	return &FrameExtractor{}
}

func (e *FrameExtractor) Name() string { return steps.ExtractFrames }

// Run extracts a frame from item's source video into the artifact directory.
// A pre-existing non-empty output short-circuits the subprocess entirely.
// An empty output after a successful run maps to ErrNoOutput.
func (e *FrameExtractor) Run(ctx context.Context, item runstate.ItemRecord, cfg StepConfig) (runstate.ResultEntry, error) {
	started := time.Now()
	output := filepath.Join(cfg.ArtifactDir, item.ID+"_frame."+normalizeFormat(cfg.Format))

	if hasContent(output) {
		return frameResult(output, started), nil
	}
	if err := os.MkdirAll(cfg.ArtifactDir, 0o755); err != nil {
		return runstate.ResultEntry{}, runstate.Wrap(runstate.ErrCollaborator, steps.ExtractFrames, "prepare",
			fmt.Sprintf("create artifact directory %s", cfg.ArtifactDir), err)
	}

	args := extractArgs(item.SourcePath, output)
	if _, err := runCommand(ctx, steps.ExtractFrames, cfg.Timeout, cfg.Command, args...); err != nil {
		return runstate.ResultEntry{}, err
	}
	if !hasContent(output) {
		os.Remove(output)
		return runstate.ResultEntry{}, ErrNoOutput
	}
	return frameResult(output, started), nil
}

// extractArgs builds an ffmpeg invocation that selects a representative frame
// via the thumbnail filter rather than blindly taking frame zero.
func extractArgs(input, output string) []string {
	return []string{
		"-y", "-v", "error",
		"-i", input,
		"-vf", "thumbnail",
		"-frames:v", "1",
		output,
	}
}

func frameResult(output string, started time.Time) runstate.ResultEntry {
	return runstate.ResultEntry{
		Step:      steps.ExtractFrames,
		Producer:  steps.ExtractFrames,
		Payload:   output,
		CreatedAt: time.Now().UTC(),
		Duration:  time.Since(started),
	}
}

func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(format, ".")))
	if format == "" {
		return "png"
	}
	return format
}

func hasContent(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

var _ Collaborator = (*FrameExtractor)(nil)
