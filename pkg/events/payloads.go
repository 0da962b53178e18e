package events

// AuditEventPayload is the wire shape for one broadcast audit event — the
// same fields pkg/store.AuditEvent carries, reshaped for JSON delivery.
type AuditEventPayload struct {
	Type       string         `json:"type"` // always EventTypeAuditAppended
	EventID    string         `json:"event_id"`
	IdentityID string         `json:"identity_id,omitempty"`
	EventType  string         `json:"event_type"` // e.g. "agent.process_update", "dialectic.resolved"
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  string         `json:"timestamp"` // RFC3339Nano
}
