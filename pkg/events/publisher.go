package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventPublisher broadcasts already-persisted audit events over NOTIFY. It
// never writes to the database itself — pkg/store.AuditRepo.Append is the
// single writer — this only fans a row that write already committed out to
// live WebSocket subscribers.
type EventPublisher struct {
	db *sql.DB
}

// NewEventPublisher creates a new EventPublisher.
// The db parameter should be the *sql.DB backing the same pool pkg/store uses.
func NewEventPublisher(db *sql.DB) *EventPublisher {
	return &EventPublisher{db: db}
}

// Notify broadcasts one audit event to its identity channel (if identityID
// is non-nil) and to the global audit channel. Best-effort: a NOTIFY
// failure is returned to the caller, who (per pkg/monitor's emitAudit
// pattern) logs and continues rather than failing the governance decision
// that produced the event.
func (p *EventPublisher) Notify(ctx context.Context, eventID string, identityID *string, eventType string, payload map[string]any) error {
	wire := AuditEventPayload{
		Type:      EventTypeAuditAppended,
		EventID:   eventID,
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if identityID != nil {
		wire.IdentityID = *identityID
	}

	payloadJSON, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshaling audit event payload: %w", err)
	}
	notifyPayload, err := truncateIfNeeded(string(payloadJSON))
	if err != nil {
		return err
	}

	var firstErr error
	if identityID != nil {
		if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", IdentityChannel(*identityID), notifyPayload); err != nil {
			firstErr = fmt.Errorf("pg_notify identity channel: %w", err)
		}
	}
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", GlobalAuditChannel, notifyPayload); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("pg_notify global channel: %w", err)
		}
	}
	return firstErr
}

// truncateIfNeeded returns the payload string as-is if it fits within
// PostgreSQL's 8000-byte NOTIFY limit, otherwise a minimal routing-only
// envelope telling the client to re-fetch the full event over REST.
func truncateIfNeeded(payloadStr string) (string, error) {
	if len(payloadStr) <= 7900 {
		return payloadStr, nil
	}
	return buildTruncatedPayload([]byte(payloadStr))
}

func buildTruncatedPayload(payloadBytes []byte) (string, error) {
	var routing struct {
		Type       string `json:"type"`
		EventID    string `json:"event_id"`
		IdentityID string `json:"identity_id,omitempty"`
		EventType  string `json:"event_type"`
	}
	if err := json.Unmarshal(payloadBytes, &routing); err != nil {
		return "", fmt.Errorf("extracting routing fields for truncation: %w", err)
	}

	truncated := map[string]any{
		"type":        routing.Type,
		"event_id":    routing.EventID,
		"identity_id": routing.IdentityID,
		"event_type":  routing.EventType,
		"truncated":   true,
	}
	truncBytes, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("marshaling truncated payload: %w", err)
	}
	return string(truncBytes), nil
}
