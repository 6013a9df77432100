package collab

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"scribe/internal/runstate"
	"scribe/internal/steps"
)

func setHelperCommand(t *testing.T, mode string) *[]string {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("SCRIBE_HELPER_MODE", mode)
	captured := &[]string{}
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		*captured = append([]string{name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "SCRIBE_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return captured
}

func testItem(id, source, kind string) runstate.ItemRecord {
	return *runstate.NewItemRecord(id, source, kind)
}

func TestFrameExtractorBuildsThumbnailArgs(t *testing.T) {
	dir := t.TempDir()
	captured := setHelperCommand(t, "write-output")
	t.Setenv("SCRIBE_HELPER_OUTPUT", filepath.Join(dir, "vid1_frame.png"))

	extractor := NewFrameExtractor()
	entry, err := extractor.Run(context.Background(), testItem("vid1", "/media/clip.mp4", "video"), StepConfig{
		Command:     "ffmpeg",
		ArtifactDir: dir,
		Format:      "png",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if entry.Step != steps.ExtractFrames {
		t.Fatalf("unexpected step: %s", entry.Step)
	}
	if entry.Payload != filepath.Join(dir, "vid1_frame.png") {
		t.Fatalf("unexpected payload: %s", entry.Payload)
	}

	args := *captured
	if args[0] != "ffmpeg" {
		t.Fatalf("unexpected command: %v", args)
	}
	if findArg(args, "thumbnail") == -1 || findArg(args, "/media/clip.mp4") == -1 {
		t.Fatalf("expected thumbnail filter and input in args: %v", args)
	}
	if args[len(args)-1] != entry.Payload {
		t.Fatalf("output should be the final argument: %v", args)
	}
}

func TestFrameExtractorReusesExistingOutput(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "vid1_frame.png")
	if err := os.WriteFile(existing, []byte("frame"), 0o644); err != nil {
		t.Fatalf("seed output: %v", err)
	}
	captured := setHelperCommand(t, "failure")

	extractor := NewFrameExtractor()
	entry, err := extractor.Run(context.Background(), testItem("vid1", "/media/clip.mp4", "video"), StepConfig{
		Command:     "ffmpeg",
		ArtifactDir: dir,
		Format:      "png",
	})
	if err != nil {
		t.Fatalf("existing output should short-circuit: %v", err)
	}
	if entry.Payload != existing {
		t.Fatalf("unexpected payload: %s", entry.Payload)
	}
	if len(*captured) != 0 {
		t.Fatal("subprocess should not have run")
	}
}

func TestFrameExtractorEmptyOutputIsNoOutput(t *testing.T) {
	dir := t.TempDir()
	setHelperCommand(t, "success")

	extractor := NewFrameExtractor()
	_, err := extractor.Run(context.Background(), testItem("vid1", "/media/clip.mp4", "video"), StepConfig{
		Command:     "ffmpeg",
		ArtifactDir: dir,
		Format:      "png",
	})
	if !errors.Is(err, ErrNoOutput) {
		t.Fatalf("expected ErrNoOutput, got %v", err)
	}
}

func TestFrameExtractorFailureWrapsCollaboratorError(t *testing.T) {
	dir := t.TempDir()
	setHelperCommand(t, "failure")

	extractor := NewFrameExtractor()
	_, err := extractor.Run(context.Background(), testItem("vid1", "/media/clip.mp4", "video"), StepConfig{
		Command:     "ffmpeg",
		ArtifactDir: dir,
		Format:      "png",
	})
	if !errors.Is(err, runstate.ErrCollaborator) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
}

func TestConverterProducesCanonicalOutput(t *testing.T) {
	dir := t.TempDir()
	captured := setHelperCommand(t, "write-output")
	want := filepath.Join(dir, "img1.png")
	t.Setenv("SCRIBE_HELPER_OUTPUT", want)

	converter := NewConverter()
	entry, err := converter.Run(context.Background(), testItem("img1", "/media/photo.heic", "image"), StepConfig{
		Command:     "ffmpeg",
		ArtifactDir: dir,
		Format:      "png",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if entry.Step != steps.Convert || entry.Payload != want {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	args := *captured
	if findArg(args, "/media/photo.heic") == -1 {
		t.Fatalf("input missing from args: %v", args)
	}
}

func TestConverterPrefersResolvedPath(t *testing.T) {
	dir := t.TempDir()
	captured := setHelperCommand(t, "write-output")
	t.Setenv("SCRIBE_HELPER_OUTPUT", filepath.Join(dir, "vid1.png"))

	item := testItem("vid1", "/media/clip.mp4", "video")
	item.ResolvedPath = "/artifacts/vid1_frame.bmp"

	converter := NewConverter()
	if _, err := converter.Run(context.Background(), item, StepConfig{
		Command:     "ffmpeg",
		ArtifactDir: dir,
		Format:      "png",
	}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if findArg(*captured, "/artifacts/vid1_frame.bmp") == -1 {
		t.Fatalf("expected resolved path as input: %v", *captured)
	}
}

func TestCommandDescriberReturnsStdout(t *testing.T) {
	setHelperCommand(t, "describe")

	describer := NewCommandDescriber()
	entry, err := describer.Run(context.Background(), testItem("img1", "/media/photo.png", "image"), StepConfig{
		Command:  "describe-image",
		Producer: "openai/gpt-4o-mini",
		Provider: "openai",
		Model:    "gpt-4o-mini",
		Prompt:   "Describe this image.",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if entry.Payload != "A quiet harbor at dusk." {
		t.Fatalf("unexpected description: %q", entry.Payload)
	}
	if entry.Producer != "openai/gpt-4o-mini" {
		t.Fatalf("unexpected producer: %q", entry.Producer)
	}
	if entry.Cached {
		t.Fatal("fresh description must not be marked cached")
	}
}

func TestCommandDescriberEmptyStdoutFails(t *testing.T) {
	setHelperCommand(t, "success")

	describer := NewCommandDescriber()
	_, err := describer.Run(context.Background(), testItem("img1", "/media/photo.png", "image"), StepConfig{
		Command:  "describe-image",
		Producer: "openai/gpt-4o-mini",
	})
	if !errors.Is(err, runstate.ErrCollaborator) {
		t.Fatalf("expected collaborator error for empty description, got %v", err)
	}
}

func TestCommandDescriberRequiresCommand(t *testing.T) {
	describer := NewCommandDescriber()
	_, err := describer.Run(context.Background(), testItem("img1", "/media/photo.png", "image"), StepConfig{})
	if !errors.Is(err, runstate.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

type memoryCache struct {
	entries map[string]string
	stores  int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]string{}}
}

func (c *memoryCache) Lookup(contentHash, producer string) (string, bool, error) {
	description, ok := c.entries[contentHash+"|"+producer]
	return description, ok, nil
}

func (c *memoryCache) Store(contentHash, producer, description string) error {
	c.stores++
	c.entries[contentHash+"|"+producer] = description
	return nil
}

func TestCachingDescriberHitSkipsInner(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(image, []byte("pixels"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	cache := newMemoryCache()
	hash, err := fileContentHash(image)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := cache.Store(hash, "openai/gpt-4o-mini", "Cached description."); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	cache.stores = 0

	calls := 0
	inner := Func{StepName: steps.Describe, Fn: func(context.Context, runstate.ItemRecord, StepConfig) (runstate.ResultEntry, error) {
		calls++
		return runstate.ResultEntry{}, errors.New("must not be called")
	}}

	describer := NewCachingDescriber(inner, cache)
	entry, err := describer.Run(context.Background(), testItem("img1", image, "image"), StepConfig{
		Producer: "openai/gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !entry.Cached || entry.Payload != "Cached description." {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if calls != 0 {
		t.Fatal("cache hit must not invoke the inner describer")
	}
}

func TestCachingDescriberMissStoresResult(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(image, []byte("pixels"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	cache := newMemoryCache()
	inner := Func{StepName: steps.Describe, Fn: func(_ context.Context, _ runstate.ItemRecord, cfg StepConfig) (runstate.ResultEntry, error) {
		return runstate.ResultEntry{Step: steps.Describe, Producer: cfg.Producer, Payload: "Fresh description."}, nil
	}}

	describer := NewCachingDescriber(inner, cache)
	entry, err := describer.Run(context.Background(), testItem("img1", image, "image"), StepConfig{
		Producer: "openai/gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if entry.Cached {
		t.Fatal("miss must not be marked cached")
	}
	if cache.stores != 1 {
		t.Fatalf("expected one cache store, got %d", cache.stores)
	}

	again, err := describer.Run(context.Background(), testItem("img1", image, "image"), StepConfig{
		Producer: "openai/gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !again.Cached || again.Payload != "Fresh description." {
		t.Fatalf("expected cached repeat, got %+v", again)
	}
}

func TestCachingDescriberDistinguishesProducers(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(image, []byte("pixels"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	cache := newMemoryCache()
	inner := Func{StepName: steps.Describe, Fn: func(_ context.Context, _ runstate.ItemRecord, cfg StepConfig) (runstate.ResultEntry, error) {
		return runstate.ResultEntry{Step: steps.Describe, Producer: cfg.Producer, Payload: "From " + cfg.Producer}, nil
	}}
	describer := NewCachingDescriber(inner, cache)

	first, err := describer.Run(context.Background(), testItem("img1", image, "image"), StepConfig{Producer: "openai/gpt-4o-mini"})
	if err != nil {
		t.Fatalf("first producer: %v", err)
	}
	second, err := describer.Run(context.Background(), testItem("img1", image, "image"), StepConfig{Producer: "anthropic/claude"})
	if err != nil {
		t.Fatalf("second producer: %v", err)
	}
	if first.Cached || second.Cached {
		t.Fatal("different producers must not share cache entries")
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("SCRIBE_HELPER_MODE") {
	case "success":
		os.Exit(0)
	case "write-output":
		if out := os.Getenv("SCRIBE_HELPER_OUTPUT"); out != "" {
			if err := os.WriteFile(out, []byte("artifact"), 0o644); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		}
		os.Exit(0)
	case "describe":
		fmt.Println("A quiet harbor at dusk.")
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "tool failed")
		os.Exit(1)
	default:
		os.Exit(0)
	}
}

func findArg(args []string, target string) int {
	for i, arg := range args {
		if arg == target {
			return i
		}
	}
	return -1
}
