package testsupport

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"scribe/internal/logging"
	"scribe/internal/runstate"
)

// NewManifest builds a running manifest with the full step list and a fixed
// provider binding suitable for tests.
func NewManifest(retryLimit int) *runstate.RunManifest {
	return runstate.NewManifest("/media", true,
		[]string{"extract_frames", "convert", "describe", "render"},
		runstate.RunConfig{Provider: "openai", Model: "gpt-4o-mini", Prompt: "describe"},
		retryLimit)
}

// MustCreateStore initializes a run directory for tests and registers cleanup.
func MustCreateStore(t testing.TB, dir string, manifest *runstate.RunManifest) *runstate.Store {
	t.Helper()

	store, err := runstate.Create(dir, manifest, time.Minute, logging.NewNop())
	if err != nil {
		t.Fatalf("runstate.Create: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// MustOpenStore opens an existing run directory for tests and registers cleanup.
func MustOpenStore(t testing.TB, dir string, mode runstate.Mode) *runstate.Store {
	t.Helper()

	store, err := runstate.Open(dir, mode, time.Minute, logging.NewNop())
	if err != nil {
		t.Fatalf("runstate.Open(%s): %v", mode, err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// SeedItems appends pending image records with the given IDs.
func SeedItems(t testing.TB, store *runstate.Store, ids ...string) {
	t.Helper()

	records := make([]*runstate.ItemRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, runstate.NewItemRecord(id, "/media/"+id+".png", "image"))
	}
	if err := store.AppendItems(records); err != nil {
		t.Fatalf("AppendItems: %v", err)
	}
}

// WriteFile creates path with the given contents, making parent directories.
func WriteFile(t testing.TB, path, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
