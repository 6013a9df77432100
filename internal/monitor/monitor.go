package monitor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"scribe/internal/logging"
	"scribe/internal/runstate"
)

// Snapshot is one consistent observation of a run. Stale means no live
// writer currently holds the run; the view remains valid, just frozen.
type Snapshot struct {
	Manifest   runstate.RunManifest
	Items      []runstate.ItemRecord
	Stale      bool
	ObservedAt time.Time
}

// Watcher polls a read-mode store and emits a snapshot whenever the
// canonical manifest changes.
type Watcher struct {
	store    *runstate.Store
	interval time.Duration
	logger   *slog.Logger
}

// NewWatcher wraps a read-mode store. The interval bounds how quickly a
// writer commit becomes visible to observers.
func NewWatcher(store *runstate.Store, interval time.Duration, logger *slog.Logger) (*Watcher, error) {
	if store == nil || store.Mode() != runstate.ModeRead {
		return nil, runstate.Wrap(runstate.ErrValidation, "monitor", "new",
			"watcher requires a read-mode store", nil)
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Watcher{
		store:    store,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "monitor"),
	}, nil
}

// Watch emits an initial snapshot and then one per observed change until ctx
// is done, at which point the channel closes. A slow receiver never blocks
// observation; intermediate snapshots are dropped in favor of the latest.
func (w *Watcher) Watch(ctx context.Context) <-chan Snapshot {
	updates := make(chan Snapshot, 1)
	go w.loop(ctx, updates)
	return updates
}

type fingerprint struct {
	modTime time.Time
	size    int64
	stale   bool
}

func (w *Watcher) loop(ctx context.Context, updates chan Snapshot) {
	defer close(updates)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var last fingerprint
	first := true
	for {
		current, ok := w.observe()
		if ok && (first || current != last) {
			if snap, loaded := w.snapshot(current.stale); loaded {
				deliver(updates, snap)
				last = current
				first = false
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// observe fingerprints the canonical manifest without parsing it. Because
// commits are atomic renames, a changed (mtime, size) pair is the only signal
// needed; the canonical path never holds a partial document.
func (w *Watcher) observe() (fingerprint, bool) {
	info, err := os.Stat(filepath.Join(w.store.Dir(), runstate.ManifestName))
	if err != nil {
		w.logger.Debug("manifest not observable", logging.Error(err))
		return fingerprint{}, false
	}
	return fingerprint{
		modTime: info.ModTime(),
		size:    info.Size(),
		stale:   !runstate.WriterActive(w.store.Dir()),
	}, true
}

func (w *Watcher) snapshot(stale bool) (Snapshot, bool) {
	manifest, items, err := w.store.Snapshot()
	if err != nil {
		// Keep watching; the writer may be mid-recovery. Observers hold
		// their previous consistent view in the meantime.
		w.logger.Debug("snapshot unavailable", logging.Error(err))
		return Snapshot{}, false
	}
	return Snapshot{
		Manifest:   manifest,
		Items:      items,
		Stale:      stale,
		ObservedAt: time.Now().UTC(),
	}, true
}

// deliver replaces any undelivered snapshot with the newer one.
func deliver(updates chan Snapshot, snap Snapshot) {
	for {
		select {
		case updates <- snap:
			return
		default:
			select {
			case <-updates:
			default:
			}
		}
	}
}
