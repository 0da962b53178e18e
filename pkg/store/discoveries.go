package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Discovery is a knowledge-graph node (spec.md §3.1).
type Discovery struct {
	ID                  string
	AuthorIdentityID    string
	AuthorLabelSnapshot string
	Type                string
	Summary             string
	Detail              string
	Tags                []string
	CreatedAt           time.Time
	Status              string
	EmbeddingVector     []float64
	InboundEdgeCount    int
}

// KnowledgeEdge is a typed, directed edge between two discoveries.
type KnowledgeEdge struct {
	ID              string
	FromDiscoveryID string
	ToDiscoveryID   string
	EdgeType        string
	CreatedAt       time.Time
}

// DiscoveryRepo provides CRUD and graph-traversal access to discoveries.
type DiscoveryRepo struct {
	pool *pgxpool.Pool
}

func (r *DiscoveryRepo) Create(ctx context.Context, d *Discovery) error {
	tags, _ := json.Marshal(d.Tags)
	var embedding []byte
	if d.EmbeddingVector != nil {
		embedding, _ = json.Marshal(d.EmbeddingVector)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO discoveries (discovery_id, author_identity_id, author_label_snapshot, type,
			summary, detail, tags, created_at, status, embedding_vector, inbound_edge_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0)`,
		d.ID, d.AuthorIdentityID, d.AuthorLabelSnapshot, d.Type, d.Summary, d.Detail,
		tags, d.CreatedAt, d.Status, embedding,
	)
	return wrapErr("discovery", "create", err)
}

func scanDiscovery(row pgx.Row) (*Discovery, error) {
	var d Discovery
	var tags, embedding []byte
	if err := row.Scan(&d.ID, &d.AuthorIdentityID, &d.AuthorLabelSnapshot, &d.Type, &d.Summary,
		&d.Detail, &tags, &d.CreatedAt, &d.Status, &embedding, &d.InboundEdgeCount); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(tags) > 0 {
		_ = json.Unmarshal(tags, &d.Tags)
	}
	if len(embedding) > 0 {
		_ = json.Unmarshal(embedding, &d.EmbeddingVector)
	}
	return &d, nil
}

func (r *DiscoveryRepo) Get(ctx context.Context, id string) (*Discovery, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT discovery_id, author_identity_id, author_label_snapshot, type, summary, detail,
		       tags, created_at, status, embedding_vector, inbound_edge_count
		FROM discoveries WHERE discovery_id = $1`, id)
	d, err := scanDiscovery(row)
	if err != nil {
		return nil, wrapErr("discovery", "get", err)
	}
	return d, nil
}

// UpdateFields applies an author-authorized partial update: status, tags,
// or summary-append. Status transitions are validated by pkg/knowledge
// before calling this, not here — the repo trusts its caller.
func (r *DiscoveryRepo) UpdateFields(ctx context.Context, id string, status *string, tags []string, appendSummary string) error {
	if status != nil {
		if _, err := r.pool.Exec(ctx, `UPDATE discoveries SET status = $2 WHERE discovery_id = $1`, id, *status); err != nil {
			return wrapErr("discovery", "update_status", err)
		}
	}
	if tags != nil {
		b, _ := json.Marshal(tags)
		if _, err := r.pool.Exec(ctx, `UPDATE discoveries SET tags = $2 WHERE discovery_id = $1`, id, b); err != nil {
			return wrapErr("discovery", "update_tags", err)
		}
	}
	if appendSummary != "" {
		if _, err := r.pool.Exec(ctx, `UPDATE discoveries SET summary = summary || $2 WHERE discovery_id = $1`, id, appendSummary); err != nil {
			return wrapErr("discovery", "update_summary", err)
		}
	}
	return nil
}

// ByTags returns discoveries of any status matching any of the given tags,
// highest inbound_edge_count first and most recent first among ties. It is
// the whole of pkg/knowledge's Postgres search; no semantic results are
// blended in.
func (r *DiscoveryRepo) ByTags(ctx context.Context, tags []string, topK int) ([]*Discovery, error) {
	b, _ := json.Marshal(tags)
	rows, err := r.pool.Query(ctx, `
		SELECT discovery_id, author_identity_id, author_label_snapshot, type, summary, detail,
		       tags, created_at, status, embedding_vector, inbound_edge_count
		FROM discoveries
		WHERE tags ?| (SELECT array_agg(x) FROM jsonb_array_elements_text($1::jsonb) AS x)
		ORDER BY inbound_edge_count DESC, created_at DESC
		LIMIT $2`, b, topK)
	if err != nil {
		return nil, wrapErr("discovery", "by_tags", err)
	}
	defer rows.Close()
	var out []*Discovery
	for rows.Next() {
		d, err := scanDiscovery(rows)
		if err != nil {
			return nil, wrapErr("discovery", "by_tags", err)
		}
		out = append(out, d)
	}
	return out, wrapErr("discovery", "by_tags", rows.Err())
}

// AddEdge inserts a directed edge and bumps the target's inbound_edge_count.
func (r *DiscoveryRepo) AddEdge(ctx context.Context, e *KnowledgeEdge) error {
	if e.FromDiscoveryID == e.ToDiscoveryID {
		return wrapErr("knowledge_edge", "add_edge", ErrConcurrentModification)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return wrapErr("knowledge_edge", "add_edge_begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO knowledge_edges (edge_id, from_discovery_id, to_discovery_id, edge_type, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		e.ID, e.FromDiscoveryID, e.ToDiscoveryID, e.EdgeType, e.CreatedAt,
	)
	if err != nil {
		return wrapErr("knowledge_edge", "add_edge_insert", err)
	}
	_, err = tx.Exec(ctx, `UPDATE discoveries SET inbound_edge_count = inbound_edge_count + 1 WHERE discovery_id = $1`, e.ToDiscoveryID)
	if err != nil {
		return wrapErr("knowledge_edge", "add_edge_bump", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapErr("knowledge_edge", "add_edge_commit", err)
	}
	return nil
}

// Edges returns inbound and outbound edges for a discovery.
func (r *DiscoveryRepo) Edges(ctx context.Context, discoveryID string) (inbound, outbound []*KnowledgeEdge, err error) {
	inRows, err := r.pool.Query(ctx, `
		SELECT edge_id, from_discovery_id, to_discovery_id, edge_type, created_at
		FROM knowledge_edges WHERE to_discovery_id = $1`, discoveryID)
	if err != nil {
		return nil, nil, wrapErr("knowledge_edge", "edges_in", err)
	}
	defer inRows.Close()
	for inRows.Next() {
		var e KnowledgeEdge
		if err := inRows.Scan(&e.ID, &e.FromDiscoveryID, &e.ToDiscoveryID, &e.EdgeType, &e.CreatedAt); err != nil {
			return nil, nil, wrapErr("knowledge_edge", "edges_in", err)
		}
		inbound = append(inbound, &e)
	}

	outRows, err := r.pool.Query(ctx, `
		SELECT edge_id, from_discovery_id, to_discovery_id, edge_type, created_at
		FROM knowledge_edges WHERE from_discovery_id = $1`, discoveryID)
	if err != nil {
		return nil, nil, wrapErr("knowledge_edge", "edges_out", err)
	}
	defer outRows.Close()
	for outRows.Next() {
		var e KnowledgeEdge
		if err := outRows.Scan(&e.ID, &e.FromDiscoveryID, &e.ToDiscoveryID, &e.EdgeType, &e.CreatedAt); err != nil {
			return nil, nil, wrapErr("knowledge_edge", "edges_out", err)
		}
		outbound = append(outbound, &e)
	}
	return inbound, outbound, nil
}

// Cleanup archives open discoveries older than maxAge with zero inbound
// edges (the supplemented `knowledge.cleanup` action, SPEC_FULL.md §3.7).
func (r *DiscoveryRepo) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE discoveries SET status = 'archived'
		WHERE status = 'open' AND created_at < $1 AND inbound_edge_count = 0`, olderThan)
	if err != nil {
		return 0, wrapErr("discovery", "cleanup", err)
	}
	return tag.RowsAffected(), nil
}
