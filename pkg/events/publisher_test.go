package events

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventPublisher(t *testing.T) {
	p := NewEventPublisher(nil)
	assert.NotNil(t, p)
}

func TestTruncateIfNeeded_SmallPayloadPassesThrough(t *testing.T) {
	wire := AuditEventPayload{
		Type:      EventTypeAuditAppended,
		EventID:   "evt-1",
		EventType: "agent.process_update",
		Timestamp: "2026-01-01T00:00:00Z",
	}
	data, err := json.Marshal(wire)
	require.NoError(t, err)

	out, err := truncateIfNeeded(string(data))
	require.NoError(t, err)
	assert.Equal(t, string(data), out)
}

func TestTruncateIfNeeded_OversizedPayloadIsTruncated(t *testing.T) {
	wire := AuditEventPayload{
		Type:       EventTypeAuditAppended,
		EventID:    "evt-2",
		IdentityID: "agent-7",
		EventType:  "knowledge.discovery_stored",
		Payload:    map[string]any{"blob": strings.Repeat("x", 9000)},
		Timestamp:  "2026-01-01T00:00:00Z",
	}
	data, err := json.Marshal(wire)
	require.NoError(t, err)
	require.Greater(t, len(data), 7900)

	out, err := truncateIfNeeded(string(data))
	require.NoError(t, err)
	assert.Less(t, len(out), len(data))

	var routing map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &routing))
	assert.Equal(t, "evt-2", routing["event_id"])
	assert.Equal(t, "agent-7", routing["identity_id"])
	assert.Equal(t, "knowledge.discovery_stored", routing["event_type"])
	assert.Equal(t, true, routing["truncated"])
	assert.NotContains(t, out, "blob")
}

func TestBuildTruncatedPayload_MalformedInput(t *testing.T) {
	_, err := buildTruncatedPayload([]byte("not json"))
	assert.Error(t, err)
}
