package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	cerrors "github.com/calepin/calepin/internal/errors"
)

// DirLock holds an exclusive cross-process lock on a data directory. The
// bleve index takes an exclusive bolt lock and the vector snapshots have no
// cross-process conflict detection, so only one calepin process may open a
// data directory at a time.
type DirLock struct {
	flock *flock.Flock
}

// LockDataDir acquires the data directory lock without blocking. A held lock
// fails fast so the caller can tell the user which process to stop instead
// of hanging on bleve's own file lock.
func LockDataDir(dir string) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	fl := flock.New(filepath.Join(dir, ".calepin.lock"))
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	if !acquired {
		return nil, cerrors.Newf(cerrors.ErrCodeDataDirLocked,
			"data directory %s is in use by another calepin process (is 'calepin serve' running?)", dir)
	}
	return &DirLock{flock: fl}, nil
}

// Unlock releases the lock. Safe to call on an already released lock.
func (l *DirLock) Unlock() error {
	if l == nil || l.flock == nil {
		return nil
	}
	return l.flock.Unlock()
}
