// Package events provides real-time event delivery via WebSocket and
// PostgreSQL NOTIFY/LISTEN for cross-pod distribution of governance audit
// events (spec.md §6.3's audit_events log, broadcast live instead of only
// polled).
//
// Every audit event written by pkg/monitor (the only package that writes
// audit events) is broadcast on two channels: the identity-scoped channel (for a
// dashboard watching one agent) and the global audit channel (for an
// operator console watching everything). The broadcast is NOTIFY-only —
// pkg/store.AuditRepo already persisted the row; this package never writes
// to the database, only fans a prior write out to live subscribers and lets
// late joiners catch up by timestamp.
package events

// EventTypeAuditAppended is the single event type this package carries —
// clients discriminate on the embedded audit event's own "event_type" field
// (agent.process_update, dialectic.resolved, discovery.stored, ...), not on
// a transport-level type tag.
const EventTypeAuditAppended = "audit.appended"

// GlobalAuditChannel is the channel every audit event is also broadcast to,
// regardless of identity — an operator console subscribes here to watch the
// whole system.
const GlobalAuditChannel = "audit"

// IdentityChannel returns the channel name for one identity's audit stream.
func IdentityChannel(identityID string) string {
	return "identity:" + identityID
}

// ClientMessage is the JSON structure for client -> server WebSocket messages.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`       // e.g. "identity:abc-123" or "audit"
	LastEventAt *int64 `json:"last_event_at,omitempty"` // unix nanoseconds, for catchup
}
