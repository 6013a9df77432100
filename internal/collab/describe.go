package collab

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"scribe/internal/runstate"
	"scribe/internal/steps"
)

// CommandDescriber invokes a configured provider adapter command per image.
// The command receives the image path as its last argument, the provider
// binding through SCRIBE_* environment variables, and must print the
// description on stdout.
type CommandDescriber struct{}

// NewCommandDescriber constructs the subprocess-backed describer.
func NewCommandDescriber() *CommandDescriber {
	return &CommandDescriber{}
}

func (d *CommandDescriber) Name() string { return steps.Describe }

func (d *CommandDescriber) Run(ctx context.Context, item runstate.ItemRecord, cfg StepConfig) (runstate.ResultEntry, error) {
	started := time.Now()
	if strings.TrimSpace(cfg.Command) == "" {
		return runstate.ResultEntry{}, runstate.Wrap(runstate.ErrConfiguration, steps.Describe, "run",
			"no describe command configured", nil)
	}

	image := inputImage(item)
	if timeout := cfg.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := commandContext(ctx, cfg.Command, image) //nolint:gosec
	cmd.Env = append(os.Environ(),
		"SCRIBE_PROVIDER="+cfg.Provider,
		"SCRIBE_MODEL="+cfg.Model,
		"SCRIBE_PROMPT="+cfg.Prompt,
	)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return runstate.ResultEntry{}, runstate.Wrap(runstate.ErrCollaborator, steps.Describe, "run",
				fmt.Sprintf("%s timed out after %s", cfg.Command, cfg.Timeout), ctxErr)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return runstate.ResultEntry{}, runstate.Wrap(runstate.ErrCollaborator, steps.Describe, "run",
			fmt.Sprintf("%s failed: %s", cfg.Command, lastLine(detail)), err)
	}

	description := strings.TrimSpace(stdout.String())
	if description == "" {
		return runstate.ResultEntry{}, runstate.Wrap(runstate.ErrCollaborator, steps.Describe, "run",
			fmt.Sprintf("%s returned an empty description for %s", cfg.Command, image), nil)
	}
	return runstate.ResultEntry{
		Step:      steps.Describe,
		Producer:  cfg.Producer,
		Payload:   description,
		CreatedAt: time.Now().UTC(),
		Duration:  time.Since(started),
	}, nil
}

var _ Collaborator = (*CommandDescriber)(nil)

// DescriptionCache stores descriptions keyed by image content hash and
// producer identity. Satisfied by describecache.Cache.
type DescriptionCache interface {
	Lookup(contentHash, producer string) (string, bool, error)
	Store(contentHash, producer, description string) error
}

// CachingDescriber consults a description cache before delegating to the
// wrapped describer. Cache hits still produce a ResultEntry, marked Cached,
// so item history stays complete across resumed runs.
type CachingDescriber struct {
	inner Collaborator
	cache DescriptionCache
}

// NewCachingDescriber wraps a describer with a content-hash cache.
func NewCachingDescriber(inner Collaborator, cache DescriptionCache) *CachingDescriber {
	return &CachingDescriber{inner: inner, cache: cache}
}

func (d *CachingDescriber) Name() string { return d.inner.Name() }

func (d *CachingDescriber) Run(ctx context.Context, item runstate.ItemRecord, cfg StepConfig) (runstate.ResultEntry, error) {
	started := time.Now()
	hash, err := fileContentHash(inputImage(item))
	if err != nil {
		// A file we cannot hash is one we cannot describe either; let the
		// inner describer surface the real error.
		return d.inner.Run(ctx, item, cfg)
	}

	if description, ok, err := d.cache.Lookup(hash, cfg.Producer); err == nil && ok {
		return runstate.ResultEntry{
			Step:      d.inner.Name(),
			Producer:  cfg.Producer,
			Payload:   description,
			Cached:    true,
			CreatedAt: time.Now().UTC(),
			Duration:  time.Since(started),
		}, nil
	}

	entry, err := d.inner.Run(ctx, item, cfg)
	if err != nil {
		return runstate.ResultEntry{}, err
	}
	// Cache writes are best effort; the durable record is the manifest.
	_ = d.cache.Store(hash, cfg.Producer, entry.Payload)
	return entry, nil
}

func fileContentHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

var _ Collaborator = (*CachingDescriber)(nil)
