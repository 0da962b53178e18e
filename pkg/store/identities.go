package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Identity is the durable record behind an agent's identity_id.
type Identity struct {
	ID               string
	Label            string
	APIKeyHash       []byte
	ParentIdentityID *string
	CreatedAt        time.Time
	Status           string
	Tags             []string
	TrustTier        int
}

// IdentityRepo provides CRUD access to the identities table.
type IdentityRepo struct {
	pool *pgxpool.Pool
}

// Create inserts a new identity row. Returns ErrAlreadyExists on a
// duplicate label claim race (unique constraint enforced at the
// application layer by pkg/identity, not the schema, since labels are not
// globally unique — only active-session-per-identity is).
func (r *IdentityRepo) Create(ctx context.Context, id *Identity) error {
	tags, _ := json.Marshal(id.Tags)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO identities (identity_id, label, api_key_hash, parent_identity_id, created_at, status, tags, trust_tier)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id.ID, id.Label, id.APIKeyHash, id.ParentIdentityID, id.CreatedAt, id.Status, tags, id.TrustTier,
	)
	return wrapErr("identity", "create", err)
}

func scanIdentity(row pgx.Row) (*Identity, error) {
	var id Identity
	var tags []byte
	if err := row.Scan(&id.ID, &id.Label, &id.APIKeyHash, &id.ParentIdentityID, &id.CreatedAt, &id.Status, &tags, &id.TrustTier); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(tags) > 0 {
		_ = json.Unmarshal(tags, &id.Tags)
	}
	return &id, nil
}

// Get loads an identity by ID.
func (r *IdentityRepo) Get(ctx context.Context, id string) (*Identity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT identity_id, label, api_key_hash, parent_identity_id, created_at, status, tags, trust_tier
		FROM identities WHERE identity_id = $1`, id)
	out, err := scanIdentity(row)
	if err != nil {
		return nil, wrapErr("identity", "get", err)
	}
	return out, nil
}

// FindByLabel returns identities with an exact label match. The resolver
// uses this for the "label claim" path; it is the caller's responsibility
// to treat >1 results or an active-elsewhere identity as opaque failures,
// not to surface the list (spec.md §4.4's no-candidate-leakage rule).
func (r *IdentityRepo) FindByLabel(ctx context.Context, label string) ([]*Identity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT identity_id, label, api_key_hash, parent_identity_id, created_at, status, tags, trust_tier
		FROM identities WHERE label = $1`, label)
	if err != nil {
		return nil, wrapErr("identity", "find_by_label", err)
	}
	defer rows.Close()

	var out []*Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, wrapErr("identity", "find_by_label", err)
		}
		out = append(out, id)
	}
	return out, wrapErr("identity", "find_by_label", rows.Err())
}

// ListActive returns every identity currently in the active status, for
// reviewer-pool selection (pkg/dialectic) — paused/archived identities are
// never eligible reviewers.
func (r *IdentityRepo) ListActive(ctx context.Context) ([]*Identity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT identity_id, label, api_key_hash, parent_identity_id, created_at, status, tags, trust_tier
		FROM identities WHERE status = 'active'`)
	if err != nil {
		return nil, wrapErr("identity", "list_active", err)
	}
	defer rows.Close()

	var out []*Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, wrapErr("identity", "list_active", err)
		}
		out = append(out, id)
	}
	return out, wrapErr("identity", "list_active", rows.Err())
}

// SetStatus transitions an identity's status (active/paused/archived).
func (r *IdentityRepo) SetStatus(ctx context.Context, id, status string) error {
	_, err := r.pool.Exec(ctx, `UPDATE identities SET status = $2 WHERE identity_id = $1`, id, status)
	return wrapErr("identity", "set_status", err)
}

// SetLabel updates an identity's display label (tool `identity(name=...)`).
func (r *IdentityRepo) SetLabel(ctx context.Context, id, label string) error {
	_, err := r.pool.Exec(ctx, `UPDATE identities SET label = $2 WHERE identity_id = $1`, id, label)
	return wrapErr("identity", "set_label", err)
}

// SetTrustTier updates the identity's trust tier.
func (r *IdentityRepo) SetTrustTier(ctx context.Context, id string, tier int) error {
	_, err := r.pool.Exec(ctx, `UPDATE identities SET trust_tier = $2 WHERE identity_id = $1`, id, tier)
	return wrapErr("identity", "set_trust_tier", err)
}
