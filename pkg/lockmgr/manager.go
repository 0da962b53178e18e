package lockmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cirwel/unitares-govcore/pkg/store"
)

// Config tunes acquisition retries and the stale-lock sweep, per spec.md §4.5.
type Config struct {
	AcquireTimeout      time.Duration
	RetrySchedule       []time.Duration
	StaleLockThreshold  time.Duration
	SweepInterval       time.Duration
}

// DefaultConfig matches spec.md §4.5's documented defaults.
func DefaultConfig() Config {
	return Config{
		AcquireTimeout:     5 * time.Second,
		RetrySchedule:      []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond},
		StaleLockThreshold: 60 * time.Second,
		SweepInterval:      5 * time.Minute,
	}
}

// Manager orchestrates acquire-with-sweep-and-retry over a Locker backend,
// grounded on the teacher's WorkerPool.runOrphanDetection ticker loop
// (pkg/queue/orphan.go), generalized from session rows to lock rows.
type Manager struct {
	backend Locker
	records *store.LockRepo
	cfg     Config
	log     *slog.Logger

	stopCh chan struct{}
}

func NewManager(backend Locker, records *store.LockRepo, cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{backend: backend, records: records, cfg: cfg, log: log, stopCh: make(chan struct{})}
}

// Acquire implements spec.md §4.5's four-step acquire sequence: sweep stale
// locks for this identity, attempt, retry with backoff re-sweeping between
// attempts, and on final failure perform one more emergency sweep.
func (m *Manager) Acquire(ctx context.Context, identityID string) (Handle, error) {
	m.sweepOne(ctx, identityID)

	var handle Handle
	attempt := 0
	policy := &fixedSchedule{schedule: m.cfg.RetrySchedule}

	err := backoff.Retry(func() error {
		h, err := m.backend.Acquire(ctx, identityID, m.cfg.AcquireTimeout)
		if err == nil {
			handle = h
			return nil
		}
		if !errors.Is(err, ErrLockUnavailable) {
			return backoff.Permanent(err)
		}
		attempt++
		if attempt > len(m.cfg.RetrySchedule) {
			return backoff.Permanent(err)
		}
		m.sweepOne(ctx, identityID)
		return err
	}, backoff.WithContext(policy, ctx))

	if err != nil {
		// Emergency sweep, one last attempt.
		m.sweepOne(ctx, identityID)
		h, finalErr := m.backend.Acquire(ctx, identityID, m.cfg.AcquireTimeout)
		if finalErr != nil {
			return nil, fmt.Errorf("%w: %s", ErrLockUnavailable, identityID)
		}
		return h, nil
	}
	return handle, nil
}

// sweepOne removes a single identity's stale lock bookkeeping row if it is
// older than StaleLockThreshold. This only clears the *bookkeeping* row —
// the Postgres backend's actual exclusion releases itself on connection
// loss, and the file backend's exclusion is the lock file's own OS-level
// flock, not this row; the row's purpose is visibility for diagnostics and
// for the file backend's orphan-lock-file case.
func (m *Manager) sweepOne(ctx context.Context, identityID string) {
	rec, err := m.records.Get(ctx, identityID)
	if err != nil {
		return
	}
	if time.Since(rec.AcquiredAt) > m.cfg.StaleLockThreshold {
		if err := m.records.ForceRelease(ctx, identityID); err != nil {
			m.log.Warn("stale lock sweep failed", "identity_id", identityID, "error", err)
			return
		}
		m.log.Warn("swept stale lock", "identity_id", identityID, "holder_pid", rec.HolderPID, "age", time.Since(rec.AcquiredAt))
	}
}

// RunBackground starts the periodic sweeper (spec.md §4.5's "every 5 min").
// Stop via Stop(), mirroring the teacher's stopCh/ticker shutdown idiom.
func (m *Manager) RunBackground(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			if err := m.sweepStale(ctx); err != nil {
				m.log.Error("background lock sweep failed", "error", err)
			}
		}
	}
}

func (m *Manager) sweepStale(ctx context.Context) error {
	cutoff := time.Now().Add(-m.cfg.StaleLockThreshold)
	stale, err := m.records.Stale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("querying stale locks: %w", err)
	}
	for _, rec := range stale {
		if err := m.records.ForceRelease(ctx, rec.IdentityID); err != nil {
			m.log.Warn("failed to release stale lock", "identity_id", rec.IdentityID, "error", err)
			continue
		}
		m.log.Warn("swept stale lock", "identity_id", rec.IdentityID, "holder_pid", rec.HolderPID)
	}
	return nil
}

// Stop halts the background sweeper.
func (m *Manager) Stop() { close(m.stopCh) }

// fixedSchedule is a backoff.BackOff that replays an explicit duration
// schedule (spec.md's 0.2s/0.4s/0.8s) rather than a computed exponential
// curve — the teacher's RetryWithBackoff (dotcommander-vybe) configures
// ExponentialBackOff's fields directly; this does the analogous thing for
// a schedule the spec pins exactly.
type fixedSchedule struct {
	schedule []time.Duration
	idx      int
}

func (f *fixedSchedule) NextBackOff() time.Duration {
	if f.idx >= len(f.schedule) {
		return backoff.Stop
	}
	d := f.schedule[f.idx]
	f.idx++
	return d
}

func (f *fixedSchedule) Reset() { f.idx = 0 }
