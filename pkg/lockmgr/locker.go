// Package lockmgr implements the per-agent exclusive lock described in
// spec.md §4.5: acquire with stale-lock sweep and exponential-backoff
// retry, always release, periodic background sweep. Two backends share a
// common Locker interface — Postgres advisory locks (primary, auto-released
// on connection loss) and a gofrs/flock file-lock fallback for
// single-binary/dev-mode deployments — the "implementation freedom" the
// spec explicitly allows ("filesystem advisory locks... or a distributed
// lock service; the contract is the same").
package lockmgr

import (
	"context"
	"errors"
	"time"
)

// ErrLockUnavailable is returned after every acquisition attempt and the
// final emergency sweep both fail.
var ErrLockUnavailable = errors.New("lock unavailable: identity is held elsewhere")

// Handle represents a held lock; Release must be called exactly once,
// including on every panic/error exit path.
type Handle interface {
	Release(ctx context.Context) error
}

// Locker is the common contract both backends implement.
type Locker interface {
	// Acquire attempts to take the lock for identityID within timeout,
	// returning ErrLockUnavailable (wrapped) on failure.
	Acquire(ctx context.Context, identityID string, timeout time.Duration) (Handle, error)
}
