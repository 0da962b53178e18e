package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cirwel/unitares-govcore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAuditQuerier implements auditQuerier for testing the adapter.
type mockAuditQuerier struct {
	events          []*store.AuditEvent
	err             error
	capturedIdentity *string
}

func (m *mockAuditQuerier) Since(_ context.Context, identityID *string, _ time.Time, limit int) ([]*store.AuditEvent, error) {
	m.capturedIdentity = identityID
	if m.err != nil {
		return nil, m.err
	}
	if limit > 0 && len(m.events) > limit {
		return m.events[:limit], nil
	}
	return m.events, nil
}

func TestAuditCatchupAdapter_GlobalChannel(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	querier := &mockAuditQuerier{events: []*store.AuditEvent{
		{ID: "evt-1", EventType: "agent.process_update", CreatedAt: now, Payload: map[string]any{"phi": 0.4}},
	}}
	adapter := &AuditCatchupAdapter{querier: querier}

	got, err := adapter.GetCatchupEvents(context.Background(), GlobalAuditChannel, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Nil(t, querier.capturedIdentity, "global channel must not scope by identity")
	assert.Equal(t, now.UnixNano(), got[0].ID)
	assert.Equal(t, EventTypeAuditAppended, got[0].Payload["type"])
	assert.Equal(t, "evt-1", got[0].Payload["event_id"])
	assert.Equal(t, "agent.process_update", got[0].Payload["event_type"])
	assert.Equal(t, "", got[0].Payload["identity_id"])
}

func TestAuditCatchupAdapter_IdentityChannel(t *testing.T) {
	now := time.Now()
	identity := "agent-7"
	querier := &mockAuditQuerier{events: []*store.AuditEvent{
		{ID: "evt-2", IdentityID: &identity, EventType: "dialectic.resolved", CreatedAt: now},
	}}
	adapter := &AuditCatchupAdapter{querier: querier}

	got, err := adapter.GetCatchupEvents(context.Background(), IdentityChannel(identity), 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NotNil(t, querier.capturedIdentity)
	assert.Equal(t, identity, *querier.capturedIdentity)
	assert.Equal(t, identity, got[0].Payload["identity_id"])
}

func TestAuditCatchupAdapter_WithLimit(t *testing.T) {
	now := time.Now()
	events := make([]*store.AuditEvent, 5)
	for i := range events {
		events[i] = &store.AuditEvent{ID: "evt", EventType: "test", CreatedAt: now}
	}
	querier := &mockAuditQuerier{events: events}
	adapter := &AuditCatchupAdapter{querier: querier}

	got, err := adapter.GetCatchupEvents(context.Background(), GlobalAuditChannel, 0, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestAuditCatchupAdapter_PropagatesError(t *testing.T) {
	querier := &mockAuditQuerier{err: errors.New("db unreachable")}
	adapter := &AuditCatchupAdapter{querier: querier}

	_, err := adapter.GetCatchupEvents(context.Background(), GlobalAuditChannel, 0, 10)
	assert.Error(t, err)
}

func TestAuditCatchupAdapter_Empty(t *testing.T) {
	adapter := &AuditCatchupAdapter{querier: &mockAuditQuerier{}}

	got, err := adapter.GetCatchupEvents(context.Background(), GlobalAuditChannel, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNewAuditCatchupAdapter(t *testing.T) {
	adapter := NewAuditCatchupAdapter(nil)
	assert.NotNil(t, adapter)
}
