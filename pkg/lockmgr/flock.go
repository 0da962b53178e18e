package lockmgr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// FileLocker implements Locker over gofrs/flock, for single-binary/dev-mode
// deployments where Postgres isn't reachable for advisory locking. Lock
// files live under dir, one per identity, and record holder_pid/acquired_at
// as their contents so a stale sweep (or a human) can inspect an unreleased
// lock file directly — spec.md §4.5's "Lock files must record holder_pid
// and acquired_at."
type FileLocker struct {
	dir string
	pid int
}

func NewFileLocker(dir string) *FileLocker {
	return &FileLocker{dir: dir, pid: os.Getpid()}
}

type fileHandle struct {
	fl   *flock.Flock
	path string
}

func (f *FileLocker) lockPath(identityID string) string {
	return filepath.Join(f.dir, identityID+".lock")
}

func (f *FileLocker) Acquire(ctx context.Context, identityID string, timeout time.Duration) (Handle, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	path := f.lockPath(identityID)
	fl := flock.New(path)

	acquireCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := fl.TryLockContext(acquireCtx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("attempting file lock: %w", err)
	}
	if !locked {
		return nil, ErrLockUnavailable
	}

	contents := fmt.Sprintf("holder_pid=%d\nacquired_at=%s\n", f.pid, time.Now().UTC().Format(time.RFC3339Nano))
	_ = os.WriteFile(path, []byte(contents), 0o644)

	return &fileHandle{fl: fl, path: path}, nil
}

func (h *fileHandle) Release(ctx context.Context) error {
	defer os.Remove(h.path)
	return h.fl.Unlock()
}
