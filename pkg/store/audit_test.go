package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRepo_AppendAndForIdentity(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	identityID := randID()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Audit.Append(ctx, &AuditEvent{
			ID:         randID(),
			IdentityID: &identityID,
			EventType:  "agent.process_update",
			Payload:    map[string]any{"n": float64(i)},
			CreatedAt:  time.Now(),
		}))
	}

	events, err := c.Audit.ForIdentity(ctx, identityID, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	// newest first
	assert.Equal(t, float64(2), events[0].Payload["n"])
}

func TestAuditRepo_SinceByType(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	identityID := randID()
	cutoff := time.Now()

	require.NoError(t, c.Audit.Append(ctx, &AuditEvent{
		ID: randID(), IdentityID: &identityID, EventType: "agent.process_update",
		Payload: map[string]any{}, CreatedAt: cutoff.Add(time.Second),
	}))
	require.NoError(t, c.Audit.Append(ctx, &AuditEvent{
		ID: randID(), IdentityID: &identityID, EventType: "agent.dialectic_opened",
		Payload: map[string]any{}, CreatedAt: cutoff.Add(time.Second),
	}))

	events, err := c.Audit.SinceByType(ctx, "agent.process_update", cutoff, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "agent.process_update", events[0].EventType)
}

func TestAuditRepo_SinceGlobalAndScoped(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	a := randID()
	b := randID()
	cutoff := time.Now()

	require.NoError(t, c.Audit.Append(ctx, &AuditEvent{ID: randID(), IdentityID: &a, EventType: "x", Payload: map[string]any{}, CreatedAt: cutoff.Add(time.Second)}))
	require.NoError(t, c.Audit.Append(ctx, &AuditEvent{ID: randID(), IdentityID: &b, EventType: "x", Payload: map[string]any{}, CreatedAt: cutoff.Add(time.Second)}))

	scoped, err := c.Audit.Since(ctx, &a, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, a, *scoped[0].IdentityID)

	global, err := c.Audit.Since(ctx, nil, cutoff, 10)
	require.NoError(t, err)
	assert.Len(t, global, 2)
}
