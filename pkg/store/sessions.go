package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionBinding is the (session_key, identity_id) tuple from spec.md §3.1.
type SessionBinding struct {
	SessionKey string
	IdentityID string
	LastActive time.Time
	ExpiresAt  time.Time
	IsActive   bool
}

// SessionRepo provides CRUD access to session_bindings, enforcing invariant
// 1 (at most one active binding per identity) via the partial unique index
// created in the migration.
type SessionRepo struct {
	pool *pgxpool.Pool
}

// Get loads a session binding by key.
func (r *SessionRepo) Get(ctx context.Context, sessionKey string) (*SessionBinding, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT session_key, identity_id, last_active, expires_at, is_active
		FROM session_bindings WHERE session_key = $1`, sessionKey)
	var b SessionBinding
	if err := row.Scan(&b.SessionKey, &b.IdentityID, &b.LastActive, &b.ExpiresAt, &b.IsActive); err != nil {
		if err == pgx.ErrNoRows {
			return nil, wrapErr("session", "get", ErrNotFound)
		}
		return nil, wrapErr("session", "get", err)
	}
	return &b, nil
}

// Bind creates a new active session binding for an identity. Fails with
// ErrAlreadyExists (mapped from the unique index violation) if the
// identity already has an active binding — the caller (pkg/identity)
// converts this into the opaque IDENTITY_IN_USE error.
func (r *SessionRepo) Bind(ctx context.Context, b *SessionBinding) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO session_bindings (session_key, identity_id, last_active, expires_at, is_active)
		VALUES ($1, $2, $3, $4, true)`,
		b.SessionKey, b.IdentityID, b.LastActive, b.ExpiresAt,
	)
	if isUniqueViolation(err) {
		return wrapErr("session", "bind", ErrAlreadyExists)
	}
	return wrapErr("session", "bind", err)
}

// Touch updates last_active/expires_at on each request.
func (r *SessionRepo) Touch(ctx context.Context, sessionKey string, now, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE session_bindings SET last_active = $2, expires_at = $3
		WHERE session_key = $1 AND is_active = true`, sessionKey, now, expiresAt)
	return wrapErr("session", "touch", err)
}

// End deactivates a binding explicitly (logout) or via expiry sweep.
func (r *SessionRepo) End(ctx context.Context, sessionKey string) error {
	_, err := r.pool.Exec(ctx, `UPDATE session_bindings SET is_active = false WHERE session_key = $1`, sessionKey)
	return wrapErr("session", "end", err)
}

// HasActiveBinding reports whether the identity currently has an active session.
func (r *SessionRepo) HasActiveBinding(ctx context.Context, identityID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM session_bindings WHERE identity_id = $1 AND is_active = true)`,
		identityID).Scan(&exists)
	return exists, wrapErr("session", "has_active", err)
}

// SweepExpired deactivates all bindings past their expires_at and returns
// the count swept, mirroring the teacher's periodic-sweep pattern.
func (r *SessionRepo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE session_bindings SET is_active = false
		WHERE is_active = true AND expires_at < $1`, now)
	if err != nil {
		return 0, wrapErr("session", "sweep_expired", err)
	}
	return tag.RowsAffected(), nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505) — e.g. a concurrent attempt to bind a second active
// session to the same identity.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
