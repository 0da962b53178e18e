package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LockRecord is bookkeeping metadata about a currently-held agent lock.
// It is NOT the mutual-exclusion mechanism itself — pkg/lockmgr acquires
// the actual exclusion via pg_advisory_lock keyed on the identity's hashed
// ID, or a gofrs/flock file lock as a local fallback. This table exists so
// the lock owner (pid, token, age) is visible for the stale-lock sweep and
// for diagnostics, the same way the teacher's orphan.go inspects
// heartbeat_at on alert_sessions without that column being the lock itself.
type LockRecord struct {
	IdentityID  string
	HolderPID   string
	HolderToken string
	AcquiredAt  time.Time
}

// LockRepo provides bookkeeping CRUD for lock_records.
type LockRepo struct {
	pool *pgxpool.Pool
}

// Upsert records (or replaces) the current holder of an identity's lock.
func (r *LockRepo) Upsert(ctx context.Context, rec *LockRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lock_records (identity_id, holder_pid, holder_token, acquired_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (identity_id) DO UPDATE SET
			holder_pid = EXCLUDED.holder_pid,
			holder_token = EXCLUDED.holder_token,
			acquired_at = EXCLUDED.acquired_at`,
		rec.IdentityID, rec.HolderPID, rec.HolderToken, rec.AcquiredAt,
	)
	return wrapErr("lock_record", "upsert", err)
}

// Get returns the current lock record, or ErrNotFound if unheld.
func (r *LockRepo) Get(ctx context.Context, identityID string) (*LockRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT identity_id, holder_pid, holder_token, acquired_at
		FROM lock_records WHERE identity_id = $1`, identityID)
	var rec LockRecord
	err := row.Scan(&rec.IdentityID, &rec.HolderPID, &rec.HolderToken, &rec.AcquiredAt)
	if err == pgx.ErrNoRows {
		return nil, wrapErr("lock_record", "get", ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr("lock_record", "get", err)
	}
	return &rec, nil
}

// Release removes a lock record on clean release.
func (r *LockRepo) Release(ctx context.Context, identityID, token string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM lock_records WHERE identity_id = $1 AND holder_token = $2`, identityID, token)
	if err != nil {
		return wrapErr("lock_record", "release", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapErr("lock_record", "release", ErrConcurrentModification)
	}
	return nil
}

// Stale returns lock records older than maxAge, for the periodic sweep
// that recovers locks left behind by a crashed holder (grounded on the
// teacher's detectAndRecoverOrphans).
func (r *LockRepo) Stale(ctx context.Context, olderThan time.Time) ([]*LockRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT identity_id, holder_pid, holder_token, acquired_at
		FROM lock_records WHERE acquired_at < $1`, olderThan)
	if err != nil {
		return nil, wrapErr("lock_record", "stale", err)
	}
	defer rows.Close()
	var out []*LockRecord
	for rows.Next() {
		var rec LockRecord
		if err := rows.Scan(&rec.IdentityID, &rec.HolderPID, &rec.HolderToken, &rec.AcquiredAt); err != nil {
			return nil, wrapErr("lock_record", "stale", err)
		}
		out = append(out, &rec)
	}
	return out, wrapErr("lock_record", "stale", rows.Err())
}

// ForceRelease removes a stale lock record regardless of token, used by the sweeper.
func (r *LockRepo) ForceRelease(ctx context.Context, identityID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM lock_records WHERE identity_id = $1`, identityID)
	return wrapErr("lock_record", "force_release", err)
}
