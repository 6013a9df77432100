package runstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"scribe/internal/fileutil"
	"scribe/internal/logging"
)

const (
	// ManifestName is the canonical manifest file inside a run directory.
	ManifestName = "manifest.json"
	// BackupName is the last-known-good copy retained before each rewrite.
	BackupName = "manifest.json.bak"
)

// Mode selects how a Store is opened.
type Mode string

const (
	// ModeWrite grants the exclusive mutation right; one process at a time.
	ModeWrite Mode = "write"
	// ModeRead is a shared, lock-free view that never blocks the writer.
	ModeRead Mode = "read"
)

// Store owns the durable state of one run directory. All mutation funnels
// through the single commit path; readers only ever observe the canonical,
// rename-target manifest.
type Store struct {
	dir    string
	mode   Mode
	logger *slog.Logger
	lock   *writerLock

	mu       sync.Mutex
	manifest *RunManifest
	index    map[string]*ItemRecord
}

// Create initializes a new run directory with the given manifest and opens it
// in write mode.
func Create(dir string, manifest *RunManifest, lockGrace time.Duration, logger *slog.Logger) (*Store, error) {
	if manifest == nil {
		return nil, Wrap(ErrValidation, "store", "create", "manifest is nil", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	if fileutil.FileExists(filepath.Join(dir, ManifestName)) {
		return nil, Wrap(ErrValidation, "store", "create",
			fmt.Sprintf("run directory %s already contains a manifest", dir), nil)
	}

	lock, err := acquireWriterLock(dir, lockGrace)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dir:      dir,
		mode:     ModeWrite,
		logger:   logging.NewComponentLogger(logger, "store"),
		lock:     lock,
		manifest: manifest.Clone(),
	}
	s.rebuildIndex()
	if err := s.persist(s.manifest); err != nil {
		_ = lock.release()
		return nil, err
	}
	return s, nil
}

// Open loads an existing run directory. Write mode fails fast with
// ErrLockContention when another writer holds the run; read mode takes no
// lock and may coexist with a writer and other readers.
func Open(dir string, mode Mode, lockGrace time.Duration, logger *slog.Logger) (*Store, error) {
	s := &Store{
		dir:    dir,
		mode:   mode,
		logger: logging.NewComponentLogger(logger, "store"),
	}

	switch mode {
	case ModeWrite:
		lock, err := acquireWriterLock(dir, lockGrace)
		if err != nil {
			return nil, err
		}
		s.lock = lock
	case ModeRead:
	default:
		return nil, Wrap(ErrValidation, "store", "open", fmt.Sprintf("unknown mode %q", mode), nil)
	}

	manifest, fromBackup, err := loadManifest(dir)
	if err != nil {
		if s.lock != nil {
			_ = s.lock.release()
		}
		return nil, err
	}
	if fromBackup {
		s.logger.Warn("canonical manifest unreadable, recovered from backup",
			logging.String(logging.FieldEventType, "store_backup_recovery"),
			logging.String("run_dir", dir),
			logging.String(logging.FieldErrorHint, "the most recent commit may have been lost"))
		if mode == ModeWrite {
			// Re-establish the canonical file so later commits have a
			// parseable rename target to back up.
			if err := s.persistNoBackup(manifest); err != nil {
				_ = s.lock.release()
				return nil, err
			}
		}
	}

	s.manifest = manifest
	s.rebuildIndex()
	return s, nil
}

// Dir returns the run directory backing this store.
func (s *Store) Dir() string { return s.dir }

// Mode returns the mode the store was opened with.
func (s *Store) Mode() Mode { return s.mode }

// Manifest returns a copy of the run-level manifest fields without items.
func (s *Store) Manifest() RunManifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return manifestHeader(s.manifest)
}

// GetItem returns the last durably-committed version of an item record.
func (s *Store) GetItem(id string) (ItemRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.index[id]
	if !ok {
		return ItemRecord{}, false
	}
	return *item.Clone(), true
}

// Items returns copies of all item records in stored order.
func (s *Store) Items() []ItemRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.manifest)
}

// AppendItems adds records for newly classified items, ignoring IDs that are
// already present, and commits the result durably.
func (s *Store) AppendItems(records []*ItemRecord) error {
	return s.commit(func(m *RunManifest, index map[string]*ItemRecord) error {
		for _, record := range records {
			if record == nil || record.ID == "" {
				return Wrap(ErrValidation, "store", "append", "item record missing id", nil)
			}
			if _, exists := index[record.ID]; exists {
				continue
			}
			clone := record.Clone()
			m.Items = append(m.Items, clone)
			index[clone.ID] = clone
		}
		return nil
	})
}

// CommitItemUpdate applies a mutation to a single item record and performs an
// atomic durable write. This is the authoritative write path for item state.
func (s *Store) CommitItemUpdate(id string, mutate func(*ItemRecord) error) error {
	return s.commit(func(m *RunManifest, index map[string]*ItemRecord) error {
		item, ok := index[id]
		if !ok {
			return Wrap(ErrValidation, "store", "commit", fmt.Sprintf("unknown item %s", id), nil)
		}
		if err := mutate(item); err != nil {
			return err
		}
		item.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// CommitItems applies the same mutation to several item records in one commit.
func (s *Store) CommitItems(ids []string, mutate func(*ItemRecord) error) error {
	return s.commit(func(m *RunManifest, index map[string]*ItemRecord) error {
		now := time.Now().UTC()
		for _, id := range ids {
			item, ok := index[id]
			if !ok {
				return Wrap(ErrValidation, "store", "commit", fmt.Sprintf("unknown item %s", id), nil)
			}
			if err := mutate(item); err != nil {
				return err
			}
			item.UpdatedAt = now
		}
		return nil
	})
}

// CommitRun applies a mutation to the run-level manifest fields.
func (s *Store) CommitRun(mutate func(*RunManifest) error) error {
	return s.commit(func(m *RunManifest, _ map[string]*ItemRecord) error {
		return mutate(m)
	})
}

// Snapshot returns a consistent point-in-time view for monitoring and
// statistics. Read-mode stores reload from disk so long-lived observers see
// the writer's progress.
func (s *Store) Snapshot() (RunManifest, []ItemRecord, error) {
	if s.mode == ModeRead {
		manifest, fromBackup, err := loadManifest(s.dir)
		if err != nil {
			return RunManifest{}, nil, err
		}
		if fromBackup {
			s.logger.Debug("snapshot served from backup manifest",
				logging.String("run_dir", s.dir))
		}
		s.mu.Lock()
		s.manifest = manifest
		s.rebuildIndex()
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return manifestHeader(s.manifest), cloneItems(s.manifest), nil
}

// Close releases the writer lock, if held.
func (s *Store) Close() error {
	if s == nil || s.lock == nil {
		return nil
	}
	err := s.lock.release()
	s.lock = nil
	return err
}

// commit clones current state, applies the mutation, enforces run invariants,
// persists atomically, and only then installs the new state in memory.
func (s *Store) commit(mutate func(*RunManifest, map[string]*ItemRecord) error) error {
	if s.mode != ModeWrite {
		return Wrap(ErrValidation, "store", "commit", "store opened read-only", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.manifest.Clone()
	index := buildIndex(next)
	if err := mutate(next, index); err != nil {
		return err
	}

	next.UpdatedAt = time.Now().UTC()
	next.CompletedCount = next.completedItems()
	if next.CompletedCount < s.manifest.CompletedCount {
		return Wrap(ErrValidation, "store", "commit",
			fmt.Sprintf("completed count would regress from %d to %d",
				s.manifest.CompletedCount, next.CompletedCount), nil)
	}

	if err := s.persist(next); err != nil {
		return err
	}

	s.manifest = next
	s.index = index
	return nil
}

// persist backs up the current canonical manifest and then atomically renames
// the new serialization over it.
func (s *Store) persist(manifest *RunManifest) error {
	canonical := filepath.Join(s.dir, ManifestName)
	if current, err := os.ReadFile(canonical); err == nil {
		backup := filepath.Join(s.dir, BackupName)
		if err := fileutil.WriteFileAtomic(backup, current, 0o644); err != nil {
			return fmt.Errorf("retain manifest backup: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read manifest for backup: %w", err)
	}
	return s.persistNoBackup(manifest)
}

func (s *Store) persistNoBackup(manifest *RunManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteFileAtomic(filepath.Join(s.dir, ManifestName), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func (s *Store) rebuildIndex() {
	s.index = buildIndex(s.manifest)
}

func buildIndex(manifest *RunManifest) map[string]*ItemRecord {
	index := make(map[string]*ItemRecord, len(manifest.Items))
	for _, item := range manifest.Items {
		index[item.ID] = item
	}
	return index
}

func manifestHeader(m *RunManifest) RunManifest {
	header := *m
	header.Items = nil
	header.Steps = append([]string{}, m.Steps...)
	if m.Warnings != nil {
		header.Warnings = append([]string{}, m.Warnings...)
	}
	return header
}

func cloneItems(m *RunManifest) []ItemRecord {
	items := make([]ItemRecord, len(m.Items))
	for i, item := range m.Items {
		items[i] = *item.Clone()
	}
	return items
}

// loadManifest parses the canonical manifest, falling back to the retained
// backup. Both unreadable is reported as ErrUnrecoverable; silently starting
// empty would discard a user's batch progress.
func loadManifest(dir string) (*RunManifest, bool, error) {
	canonical := filepath.Join(dir, ManifestName)
	manifest, canonicalErr := parseManifest(canonical)
	if canonicalErr == nil {
		return manifest, false, nil
	}
	if errors.Is(canonicalErr, fs.ErrNotExist) && !fileutil.FileExists(filepath.Join(dir, BackupName)) {
		return nil, false, Wrap(ErrValidation, "store", "open",
			fmt.Sprintf("no manifest in %s", dir), canonicalErr)
	}

	manifest, backupErr := parseManifest(filepath.Join(dir, BackupName))
	if backupErr == nil {
		return manifest, true, nil
	}
	return nil, false, Wrap(ErrUnrecoverable, "store", "open",
		fmt.Sprintf("manifest and backup both unreadable in %s (manifest: %v)", dir, canonicalErr), backupErr)
}

func parseManifest(path string) (*RunManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var manifest RunManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, Wrap(ErrStoreCorruption, "store", "parse", path, err)
	}
	if manifest.RunID == "" {
		return nil, Wrap(ErrStoreCorruption, "store", "parse",
			fmt.Sprintf("%s missing run id", path), nil)
	}
	return &manifest, nil
}
