package lockmgr

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cirwel/unitares-govcore/pkg/store"
)

// PostgresLocker acquires session-scoped pg_advisory_lock keys. Advisory
// locks are tied to the physical connection that took them, so a crashed
// or killed holder releases automatically — the property the spec's
// "filesystem advisory locks... or a distributed lock service" language is
// really asking for, generalized from the teacher's row-level
// FOR UPDATE SKIP LOCKED claim (pkg/queue/worker.go.claimNextSession) to a
// session-scoped advisory lock keyed on identity instead of a row.
type PostgresLocker struct {
	pool  *pgxpool.Pool
	locks *store.LockRepo
	pid   string
}

func NewPostgresLocker(pool *pgxpool.Pool, locks *store.LockRepo, pid string) *PostgresLocker {
	return &PostgresLocker{pool: pool, locks: locks, pid: pid}
}

// lockKey hashes identity_id to the int64 key pg_advisory_lock expects.
func lockKey(identityID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(identityID))
	return int64(h.Sum64())
}

type pgHandle struct {
	conn       *pgxpool.Conn
	locks      *store.LockRepo
	identityID string
	token      string
}

func (p *PostgresLocker) Acquire(ctx context.Context, identityID string, timeout time.Duration) (Handle, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := p.pool.Acquire(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection for advisory lock: %w", err)
	}

	var acquired bool
	key := lockKey(identityID)
	if err := conn.QueryRow(acquireCtx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, fmt.Errorf("attempting advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, ErrLockUnavailable
	}

	token := fmt.Sprintf("%s-%d", p.pid, time.Now().UnixNano())
	if p.locks != nil {
		if err := p.locks.Upsert(ctx, &store.LockRecord{
			IdentityID:  identityID,
			HolderPID:   p.pid,
			HolderToken: token,
			AcquiredAt:  time.Now(),
		}); err != nil {
			// Bookkeeping failure doesn't invalidate the real lock; the
			// stale sweep will simply not see this holder's pid/token
			// until the next successful upsert.
		}
	}

	return &pgHandle{conn: conn, locks: p.locks, identityID: identityID, token: token}, nil
}

func (h *pgHandle) Release(ctx context.Context) error {
	defer h.conn.Release()
	key := lockKey(h.identityID)
	var unlocked bool
	if err := h.conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&unlocked); err != nil {
		return fmt.Errorf("releasing advisory lock: %w", err)
	}
	if h.locks != nil {
		_ = h.locks.Release(ctx, h.identityID, h.token)
	}
	return nil
}
