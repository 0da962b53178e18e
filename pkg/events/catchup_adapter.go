package events

import (
	"context"
	"strings"
	"time"

	"github.com/cirwel/unitares-govcore/pkg/store"
)

// auditQuerier abstracts the timestamp-scoped audit query needed by
// AuditCatchupAdapter. Implemented by *store.AuditRepo.
type auditQuerier interface {
	Since(ctx context.Context, identityID *string, since time.Time, limit int) ([]*store.AuditEvent, error)
}

// AuditCatchupAdapter wraps an auditQuerier to implement CatchupQuerier,
// translating the channel name ("identity:<id>" or the global "audit"
// channel) into the appropriate scoped query.
type AuditCatchupAdapter struct {
	querier auditQuerier
}

// NewAuditCatchupAdapter creates a CatchupQuerier backed by pkg/store's
// audit log.
func NewAuditCatchupAdapter(repo *store.AuditRepo) *AuditCatchupAdapter {
	return &AuditCatchupAdapter{querier: repo}
}

// GetCatchupEvents queries audit events newer than sinceNanos (unix
// nanoseconds) up to limit, for the catchup mechanism.
func (a *AuditCatchupAdapter) GetCatchupEvents(ctx context.Context, channel string, sinceNanos int64, limit int) ([]CatchupEvent, error) {
	since := time.Unix(0, sinceNanos)

	var identityID *string
	if id, ok := strings.CutPrefix(channel, "identity:"); ok {
		identityID = &id
	}

	rows, err := a.querier.Since(ctx, identityID, since, limit)
	if err != nil {
		return nil, err
	}

	result := make([]CatchupEvent, len(rows))
	for i, e := range rows {
		wireIdentity := ""
		if e.IdentityID != nil {
			wireIdentity = *e.IdentityID
		}
		result[i] = CatchupEvent{
			ID: e.CreatedAt.UnixNano(),
			Payload: map[string]any{
				"type":        EventTypeAuditAppended,
				"event_id":    e.ID,
				"identity_id": wireIdentity,
				"event_type":  e.EventType,
				"payload":     e.Payload,
				"timestamp":   e.CreatedAt.UTC().Format(time.RFC3339Nano),
			},
		}
	}
	return result, nil
}
