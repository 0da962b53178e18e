package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cirwel/unitares-govcore/pkg/store"
)

// PostgresStore is the production KnowledgeStore, a thin service wrapping
// *store.DiscoveryRepo and *store.IdentityRepo for display resolution —
// grounded on pkg/services/session_service.go's service-wraps-client shape.
type PostgresStore struct {
	discoveries *store.DiscoveryRepo
	identities  *store.IdentityRepo
	limiter     *rateLimiter
}

// NewPostgresStore builds a production gateway with the default rate limit
// (spec.md §4.7's 20/hour), overridable via perAuthorPerHour.
func NewPostgresStore(discoveries *store.DiscoveryRepo, identities *store.IdentityRepo, perAuthorPerHour int) *PostgresStore {
	if perAuthorPerHour <= 0 {
		perAuthorPerHour = 20
	}
	return &PostgresStore{
		discoveries: discoveries,
		identities:  identities,
		limiter:     newRateLimiter(time.Hour, perAuthorPerHour),
	}
}

func (s *PostgresStore) Store(ctx context.Context, req StoreRequest) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}
	if ok, _ := s.limiter.Allow(req.AuthorIdentityID, time.Now()); !ok {
		return "", ErrRateLimited
	}

	label := req.AuthorIdentityID
	if id, err := s.identities.Get(ctx, req.AuthorIdentityID); err == nil {
		label = id.Label
	}

	d := &store.Discovery{
		ID:                  uuid.NewString(),
		AuthorIdentityID:    req.AuthorIdentityID,
		AuthorLabelSnapshot: label,
		Type:                string(req.Type),
		Summary:             req.Summary,
		Detail:              req.Detail,
		Tags:                req.Tags,
		CreatedAt:           time.Now(),
		Status:              string(StatusOpen),
	}
	if err := s.discoveries.Create(ctx, d); err != nil {
		return "", wrapNotFound("store", err)
	}
	// Embedding computation is async/optional per spec.md §4.7 and has no
	// concrete provider in scope here; search blends tag-index and
	// connectivity only (see Search below).
	return d.ID, nil
}

func (s *PostgresStore) Update(ctx context.Context, req UpdateRequest) error {
	d, err := s.discoveries.Get(ctx, req.DiscoveryID)
	if err != nil {
		return wrapNotFound("update", err)
	}
	if d.AuthorIdentityID != req.AuthorIdentityID {
		return ErrNotAuthor
	}
	if len(req.Tags) > MaxTags {
		return ErrTooManyTags
	}

	var statusPtr *string
	if req.Status != nil {
		if !validStatusTransition(Status(d.Status), *req.Status) {
			return ErrInvalidStatus
		}
		s := string(*req.Status)
		statusPtr = &s
	}
	if req.AppendSummary != "" && len(d.Summary)+len(req.AppendSummary) > MaxSummaryLen {
		return ErrSummaryTooLong
	}

	if err := s.discoveries.UpdateFields(ctx, req.DiscoveryID, statusPtr, req.Tags, req.AppendSummary); err != nil {
		return wrapNotFound("update", err)
	}
	return nil
}

// Search blends the tag index with the connectivity prior
// (inbound_edge_count), since this repo has no external semantic-search
// provider wired in — spec.md §4.7 explicitly "delegates to external
// semantic+tag search"; the delegate is out of scope, so tag overlap plus
// connectivity stands in for the semantic half, tie-broken by recency.
func (s *PostgresStore) Search(ctx context.Context, req SearchRequest) ([]Discovery, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = 20
	}
	rows, err := s.discoveries.ByTags(ctx, req.Tags, topK)
	if err != nil {
		return nil, wrapNotFound("search", err)
	}
	out := make([]Discovery, 0, len(rows))
	for _, d := range rows {
		out = append(out, s.resolveDisplay(ctx, d))
	}
	return out, nil
}

// resolveDisplay implements spec.md §4.7's display-resolution rule: the
// identity's current label if it's still around and active, otherwise the
// label snapshotted at store time.
func (s *PostgresStore) resolveDisplay(ctx context.Context, d *store.Discovery) Discovery {
	out := toDomain(d)
	id, err := s.identities.Get(ctx, d.AuthorIdentityID)
	if err != nil || id.Status == "archived" {
		return out
	}
	out.AuthorDisplay = id.Label
	return out
}

func (s *PostgresStore) Details(ctx context.Context, discoveryID string) (Details, error) {
	d, err := s.discoveries.Get(ctx, discoveryID)
	if err != nil {
		return Details{}, wrapNotFound("details", err)
	}
	inbound, outbound, err := s.discoveries.Edges(ctx, discoveryID)
	if err != nil {
		return Details{}, wrapNotFound("details", err)
	}
	return Details{
		Discovery: s.resolveDisplay(ctx, d),
		Inbound:   toDomainEdges(inbound),
		Outbound:  toDomainEdges(outbound),
	}, nil
}

func (s *PostgresStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	n, err := s.discoveries.Cleanup(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, wrapNotFound("cleanup", err)
	}
	return int(n), nil
}

// AddEdge links two discoveries; not part of KnowledgeStore since the spec's
// tool table exposes it only indirectly (through search/details). Nothing
// outside this package calls it.
func (s *PostgresStore) AddEdge(ctx context.Context, fromID, toID, edgeType string) error {
	e := &store.KnowledgeEdge{
		ID:              uuid.NewString(),
		FromDiscoveryID: fromID,
		ToDiscoveryID:   toID,
		EdgeType:        edgeType,
		CreatedAt:       time.Now(),
	}
	if err := s.discoveries.AddEdge(ctx, e); err != nil {
		return fmt.Errorf("knowledge: add_edge: %w", err)
	}
	return nil
}

func toDomain(d *store.Discovery) Discovery {
	display := d.AuthorLabelSnapshot
	return Discovery{
		ID:               d.ID,
		AuthorIdentityID: d.AuthorIdentityID,
		AuthorDisplay:    display,
		Type:             DiscoveryType(d.Type),
		Summary:          d.Summary,
		Detail:           d.Detail,
		Tags:             d.Tags,
		CreatedAt:        d.CreatedAt,
		Status:           Status(d.Status),
		InboundEdgeCount: d.InboundEdgeCount,
	}
}

func toDomainEdges(in []*store.KnowledgeEdge) []Edge {
	out := make([]Edge, 0, len(in))
	for _, e := range in {
		out = append(out, Edge{ID: e.ID, FromID: e.FromDiscoveryID, ToID: e.ToDiscoveryID, EdgeType: e.EdgeType})
	}
	return out
}
