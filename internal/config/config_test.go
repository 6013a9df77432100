package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scribe/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[pipeline]
workers = 4
retry_limit = 1
image_extensions = ["JPG", ".png", "png"]

[describe]
provider = "anthropic"
model = "claude-sonnet"

[logging]
format = "json"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved == "" {
		t.Fatalf("expected existing config, got exists=%v resolved=%q", exists, resolved)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Fatalf("workers override not applied: %d", cfg.Pipeline.Workers)
	}
	if cfg.Describe.Provider != "anthropic" || cfg.Describe.Model != "claude-sonnet" {
		t.Fatalf("describe override not applied: %+v", cfg.Describe)
	}
	if got := cfg.Pipeline.ImageExtensions; len(got) != 2 || got[0] != ".jpg" || got[1] != ".png" {
		t.Fatalf("extensions not normalized and deduplicated: %v", got)
	}
	if strings.HasPrefix(cfg.Paths.LogDir, "~") {
		t.Fatalf("log dir not expanded: %s", cfg.Paths.LogDir)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[pipeline]\nworkers = 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for zero workers")
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	if _, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing explicit config path")
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[describe]") {
		t.Fatalf("sample missing describe section: %s", data)
	}
}
