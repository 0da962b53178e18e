package knowledge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	errNotFound = errors.New("discovery not found")
	errSelfEdge = errors.New("discovery cannot link to itself")
)

// MemoryStore is an in-process KnowledgeStore for tests and for the
// single-binary dev mode where no Postgres pool is available — the
// in-memory half of spec.md §9.1's explicit dual-backend design.
type MemoryStore struct {
	mu          sync.Mutex
	discoveries map[string]*Discovery
	edges       []Edge
	limiter     *rateLimiter
	labels      map[string]string // identityID -> current label, for display resolution
}

func NewMemoryStore(perAuthorPerHour int) *MemoryStore {
	if perAuthorPerHour <= 0 {
		perAuthorPerHour = 20
	}
	return &MemoryStore{
		discoveries: make(map[string]*Discovery),
		limiter:     newRateLimiter(time.Hour, perAuthorPerHour),
		labels:      make(map[string]string),
	}
}

// SetLabel lets a test (or a dev-mode caller without pkg/identity wired)
// register an identity's current display label.
func (m *MemoryStore) SetLabel(identityID, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labels[identityID] = label
}

func (m *MemoryStore) Store(ctx context.Context, req StoreRequest) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}
	if ok, _ := m.limiter.Allow(req.AuthorIdentityID, time.Now()); !ok {
		return "", ErrRateLimited
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	label := req.AuthorIdentityID
	if l, ok := m.labels[req.AuthorIdentityID]; ok {
		label = l
	}

	d := &Discovery{
		ID:               uuid.NewString(),
		AuthorIdentityID: req.AuthorIdentityID,
		AuthorDisplay:    label,
		Type:             req.Type,
		Summary:          req.Summary,
		Detail:           req.Detail,
		Tags:             append([]string(nil), req.Tags...),
		CreatedAt:        time.Now(),
		Status:           StatusOpen,
	}
	m.discoveries[d.ID] = d
	return d.ID, nil
}

func (m *MemoryStore) Update(ctx context.Context, req UpdateRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.discoveries[req.DiscoveryID]
	if !ok {
		return wrapNotFound("update", errNotFound)
	}
	if d.AuthorIdentityID != req.AuthorIdentityID {
		return ErrNotAuthor
	}
	if len(req.Tags) > MaxTags {
		return ErrTooManyTags
	}
	if req.Status != nil {
		if !validStatusTransition(d.Status, *req.Status) {
			return ErrInvalidStatus
		}
		d.Status = *req.Status
	}
	if req.Tags != nil {
		d.Tags = req.Tags
	}
	if req.AppendSummary != "" {
		if len(d.Summary)+len(req.AppendSummary) > MaxSummaryLen {
			return ErrSummaryTooLong
		}
		d.Summary += req.AppendSummary
	}
	return nil
}

func (m *MemoryStore) Search(ctx context.Context, req SearchRequest) ([]Discovery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	topK := req.TopK
	if topK <= 0 {
		topK = 20
	}
	wantTags := make(map[string]bool, len(req.Tags))
	for _, t := range req.Tags {
		wantTags[t] = true
	}

	var matched []*Discovery
	for _, d := range m.discoveries {
		if len(wantTags) > 0 && !anyTagMatch(d.Tags, wantTags) {
			continue
		}
		matched = append(matched, d)
	}
	// Connectivity prior first, recency as tie-break — mirrors the
	// Postgres backend's ORDER BY inbound_edge_count DESC, created_at DESC.
	sortByConnectivityThenRecency(matched)
	if len(matched) > topK {
		matched = matched[:topK]
	}
	out := make([]Discovery, 0, len(matched))
	for _, d := range matched {
		out = append(out, *d)
	}
	return out, nil
}

func (m *MemoryStore) Details(ctx context.Context, discoveryID string) (Details, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.discoveries[discoveryID]
	if !ok {
		return Details{}, wrapNotFound("details", errNotFound)
	}
	var inbound, outbound []Edge
	for _, e := range m.edges {
		if e.ToID == discoveryID {
			inbound = append(inbound, e)
		}
		if e.FromID == discoveryID {
			outbound = append(outbound, e)
		}
	}
	return Details{Discovery: *d, Inbound: inbound, Outbound: outbound}, nil
}

func (m *MemoryStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	n := 0
	for _, d := range m.discoveries {
		if d.Status == StatusOpen && d.CreatedAt.Before(cutoff) && d.InboundEdgeCount == 0 {
			d.Status = StatusArchived
			n++
		}
	}
	return n, nil
}

// AddEdge mirrors PostgresStore.AddEdge for in-memory tests that exercise
// dialectic/dispatch linking behavior without a database.
func (m *MemoryStore) AddEdge(ctx context.Context, fromID, toID, edgeType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fromID == toID {
		return errSelfEdge
	}
	m.edges = append(m.edges, Edge{ID: uuid.NewString(), FromID: fromID, ToID: toID, EdgeType: edgeType})
	if to, ok := m.discoveries[toID]; ok {
		to.InboundEdgeCount++
	}
	return nil
}

func anyTagMatch(tags []string, want map[string]bool) bool {
	for _, t := range tags {
		if want[t] {
			return true
		}
	}
	return false
}

func sortByConnectivityThenRecency(ds []*Discovery) {
	for i := 1; i < len(ds); i++ {
		j := i
		for j > 0 && less(ds[j], ds[j-1]) {
			ds[j], ds[j-1] = ds[j-1], ds[j]
			j--
		}
	}
}

func less(a, b *Discovery) bool {
	if a.InboundEdgeCount != b.InboundEdgeCount {
		return a.InboundEdgeCount > b.InboundEdgeCount
	}
	return a.CreatedAt.After(b.CreatedAt)
}
