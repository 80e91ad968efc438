package watcher

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock is the per-project watcher lock file. It provides best-effort
// cross-process exclusion: if acquisition fails, the process runs
// read-only against a live index.
type Lock struct {
	flock *flock.Flock
}

// NewLock creates a lock handle for the given lock file path.
func NewLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &Lock{flock: flock.New(path)}, nil
}

// TryAcquire attempts to take the lock without blocking.
func (l *Lock) TryAcquire() (bool, error) {
	return l.flock.TryLock()
}

// Release frees the lock.
func (l *Lock) Release() error {
	return l.flock.Unlock()
}
