// Package knowledge implements the knowledge-graph gateway of spec.md §4.7:
// CRUD over discovery records with a tag index, per-author rate limiting,
// and label-display resolution. Two implementations share the KnowledgeStore
// interface — an in-memory one for tests, a Postgres-backed one for
// production — matching spec.md §9.1's explicit dual-backend note and the
// teacher's pattern of a thin service wrapping a database client
// (pkg/services/session_service.go).
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	MaxSummaryLen = 500
	MaxDetailLen  = 10000
	MaxTags       = 20
)

var (
	ErrSummaryTooLong  = errors.New("knowledge: summary exceeds maximum length")
	ErrDetailTooLong   = errors.New("knowledge: detail exceeds maximum length")
	ErrTooManyTags     = errors.New("knowledge: too many tags")
	ErrNotAuthor       = errors.New("knowledge: only the author may update this discovery")
	ErrInvalidStatus   = errors.New("knowledge: invalid status transition")
	ErrRateLimited     = errors.New("knowledge: rate limit exceeded")
)

// DiscoveryType enumerates spec.md §3.1's discovery node types.
type DiscoveryType string

const (
	TypeNote        DiscoveryType = "note"
	TypeInsight     DiscoveryType = "insight"
	TypeBugFound    DiscoveryType = "bug_found"
	TypeImprovement DiscoveryType = "improvement"
	TypeAnalysis    DiscoveryType = "analysis"
	TypePattern     DiscoveryType = "pattern"
)

// Status enumerates spec.md §3.1's monotonic status lifecycle:
// open -> {resolved, archived}; archived is terminal.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
	StatusArchived Status = "archived"
)

func validStatusTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if from != StatusOpen {
		return false
	}
	return to == StatusResolved || to == StatusArchived
}

// Discovery is the gateway's view of a knowledge-graph node, display-resolved.
type Discovery struct {
	ID               string
	AuthorIdentityID string
	AuthorDisplay    string // current label, or the snapshot if the identity is archived/gone
	Type             DiscoveryType
	Summary          string
	Detail           string
	Tags             []string
	CreatedAt        time.Time
	Status           Status
	InboundEdgeCount int
}

// Edge is a typed, directed link between two discoveries.
type Edge struct {
	ID       string
	FromID   string
	ToID     string
	EdgeType string
}

// Details bundles a discovery with its graph neighborhood.
type Details struct {
	Discovery Discovery
	Inbound   []Edge
	Outbound  []Edge
}

// StoreRequest is the input to Store.
type StoreRequest struct {
	AuthorIdentityID string
	Type             DiscoveryType
	Summary          string
	Detail           string
	Tags             []string
}

// UpdateRequest is the input to Update; nil fields are left unchanged.
type UpdateRequest struct {
	DiscoveryID      string
	AuthorIdentityID string
	Status           *Status
	Tags             []string
	AppendSummary    string
}

// SearchRequest is the input to Search.
type SearchRequest struct {
	Query         string
	Tags          []string
	MinSimilarity float64
	TopK          int
}

// KnowledgeStore is the gateway contract spec.md §9.1 calls out as needing
// both an in-memory and a Postgres-backed implementation.
type KnowledgeStore interface {
	Store(ctx context.Context, req StoreRequest) (string, error)
	Update(ctx context.Context, req UpdateRequest) error
	Search(ctx context.Context, req SearchRequest) ([]Discovery, error)
	Details(ctx context.Context, discoveryID string) (Details, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

func validate(req StoreRequest) error {
	if len(req.Summary) > MaxSummaryLen {
		return ErrSummaryTooLong
	}
	if len(req.Detail) > MaxDetailLen {
		return ErrDetailTooLong
	}
	if len(req.Tags) > MaxTags {
		return ErrTooManyTags
	}
	return nil
}

func wrapNotFound(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("knowledge: %s: %w", op, err)
}
