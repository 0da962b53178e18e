package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEvent is one row of the append-only audit log (spec.md §6.3).
type AuditEvent struct {
	ID         string
	IdentityID *string
	EventType  string
	Payload    map[string]any
	CreatedAt  time.Time
}

// AuditRepo provides append and read access to audit_events. There is no
// Update or Delete — the log is append-only, mirroring spec.md's treatment
// of audit_events as a write-once sink.
type AuditRepo struct {
	pool *pgxpool.Pool
}

// Append writes one audit event. Failures here must never block the
// caller's primary operation (pkg/monitor logs-and-continues on error).
func (r *AuditRepo) Append(ctx context.Context, e *AuditEvent) error {
	var payload []byte
	if e.Payload != nil {
		var err error
		payload, err = json.Marshal(e.Payload)
		if err != nil {
			return wrapErr("audit_event", "append_marshal", err)
		}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_events (event_id, identity_id, event_type, payload, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		e.ID, e.IdentityID, e.EventType, payload, e.CreatedAt,
	)
	return wrapErr("audit_event", "append", err)
}

// ForIdentity returns the most recent events for an identity, newest first.
func (r *AuditRepo) ForIdentity(ctx context.Context, identityID string, limit int) ([]*AuditEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT event_id, identity_id, event_type, payload, created_at
		FROM audit_events WHERE identity_id = $1
		ORDER BY created_at DESC LIMIT $2`, identityID, limit)
	if err != nil {
		return nil, wrapErr("audit_event", "for_identity", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// SinceByType returns events of a given type since a timestamp, oldest
// first — used by pkg/telemetry's suspicious-pattern detection window scans.
func (r *AuditRepo) SinceByType(ctx context.Context, eventType string, since time.Time, limit int) ([]*AuditEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT event_id, identity_id, event_type, payload, created_at
		FROM audit_events WHERE event_type = $1 AND created_at >= $2
		ORDER BY created_at ASC LIMIT $3`, eventType, since, limit)
	if err != nil {
		return nil, wrapErr("audit_event", "since_by_type", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// Since returns events after a timestamp, oldest first, optionally scoped
// to one identity — the catchup query behind pkg/events' WebSocket channels
// (identity-scoped or global, depending on whether identityID is nil).
func (r *AuditRepo) Since(ctx context.Context, identityID *string, since time.Time, limit int) ([]*AuditEvent, error) {
	var rows pgx.Rows
	var err error
	if identityID != nil {
		rows, err = r.pool.Query(ctx, `
			SELECT event_id, identity_id, event_type, payload, created_at
			FROM audit_events WHERE identity_id = $1 AND created_at > $2
			ORDER BY created_at ASC LIMIT $3`, *identityID, since, limit)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT event_id, identity_id, event_type, payload, created_at
			FROM audit_events WHERE created_at > $1
			ORDER BY created_at ASC LIMIT $2`, since, limit)
	}
	if err != nil {
		return nil, wrapErr("audit_event", "since", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

func scanAuditRows(rows pgx.Rows) ([]*AuditEvent, error) {
	var out []*AuditEvent
	for rows.Next() {
		var e AuditEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.IdentityID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, wrapErr("audit_event", "scan", err)
		}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &e.Payload)
		}
		out = append(out, &e)
	}
	return out, wrapErr("audit_event", "scan", rows.Err())
}
