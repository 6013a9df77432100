package runstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"scribe/internal/fileutil"
)

const (
	lockFileName  = "run.lock"
	ownerFileName = "run.lock.owner"
)

// lockOwner is the diagnostic sidecar written next to the flock target.
type lockOwner struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
	Hostname   string    `json:"hostname,omitempty"`
}

type writerLock struct {
	fl        *flock.Flock
	ownerPath string
}

// acquireWriterLock takes the exclusive run lock or fails with
// ErrLockContention describing the current holder. A leftover owner sidecar
// whose process is gone and whose timestamp has aged past grace is reclaimed.
func acquireWriterLock(runDir string, grace time.Duration) (*writerLock, error) {
	lockPath := filepath.Join(runDir, lockFileName)
	ownerPath := filepath.Join(runDir, ownerFileName)

	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, Wrap(ErrLockContention, "lock", "acquire", lockPath, err)
	}
	if !ok {
		return nil, contentionError(ownerPath)
	}

	// The flock granted, so no live process on this host holds the run. A
	// leftover owner sidecar is either a crashed writer (reclaimable once
	// stale) or a writer on another host that cannot hold our flock anyway.
	if owner, readErr := readOwner(ownerPath); readErr == nil {
		if owner.PID != os.Getpid() && !ownerStale(owner, grace) {
			_ = fl.Unlock()
			return nil, contentionError(ownerPath)
		}
	}

	owner := lockOwner{
		PID:        os.Getpid(),
		AcquiredAt: time.Now().UTC(),
		Hostname:   hostnameOrUnknown(),
	}
	data, err := json.MarshalIndent(owner, "", "  ")
	if err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("marshal lock owner: %w", err)
	}
	if err := fileutil.WriteFileAtomic(ownerPath, append(data, '\n'), 0o644); err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("write lock owner: %w", err)
	}

	return &writerLock{fl: fl, ownerPath: ownerPath}, nil
}

func (l *writerLock) release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	_ = os.Remove(l.ownerPath)
	return l.fl.Unlock()
}

func contentionError(ownerPath string) error {
	if owner, err := readOwner(ownerPath); err == nil {
		return Wrap(ErrLockContention, "lock", "acquire",
			fmt.Sprintf("held by pid %d on %s since %s",
				owner.PID, owner.Hostname, owner.AcquiredAt.Format(time.RFC3339)), nil)
	}
	return Wrap(ErrLockContention, "lock", "acquire", "another writer holds this run", nil)
}

func readOwner(path string) (lockOwner, error) {
	var owner lockOwner
	data, err := os.ReadFile(path)
	if err != nil {
		return owner, err
	}
	if err := json.Unmarshal(data, &owner); err != nil {
		return owner, err
	}
	if owner.PID <= 0 {
		return owner, errors.New("owner file missing pid")
	}
	return owner, nil
}

// ownerStale reports whether a lock owner can be reclaimed: its process no
// longer exists and its timestamp has aged past the grace period.
func ownerStale(owner lockOwner, grace time.Duration) bool {
	if pidAlive(owner.PID) {
		return false
	}
	return time.Since(owner.AcquiredAt) >= grace
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to another user.
	return errors.Is(err, unix.EPERM)
}

// WriterActive reports whether a live process currently holds the run's
// writer lock, judged by the owner sidecar. Readers use this to flag a
// stale-but-consistent view; it takes no lock itself.
func WriterActive(runDir string) bool {
	owner, err := readOwner(filepath.Join(runDir, ownerFileName))
	if err != nil {
		return false
	}
	return pidAlive(owner.PID)
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}
