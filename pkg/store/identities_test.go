package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityRepo_CreateAndGet(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	id := &Identity{
		ID:         "id-1",
		Label:      "agent-alpha",
		APIKeyHash: []byte("hash"),
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
		Status:     "active",
		Tags:       []string{"a", "b"},
		TrustTier:  1,
	}
	require.NoError(t, c.Identities.Create(ctx, id))

	got, err := c.Identities.Get(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-alpha", got.Label)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
	assert.Equal(t, 1, got.TrustTier)
}

func TestIdentityRepo_GetMissingReturnsNotFound(t *testing.T) {
	c := newTestClient(t)
	_, err := c.Identities.Get(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIdentityRepo_FindByLabel(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	for _, label := range []string{"shared", "shared", "unique"} {
		require.NoError(t, c.Identities.Create(ctx, &Identity{
			ID:         randID(),
			Label:      label,
			APIKeyHash: []byte("hash"),
			CreatedAt:  time.Now(),
			Status:     "active",
		}))
	}

	matches, err := c.Identities.FindByLabel(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	unique, err := c.Identities.FindByLabel(ctx, "unique")
	require.NoError(t, err)
	assert.Len(t, unique, 1)
}

func TestIdentityRepo_ListActiveExcludesPaused(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Identities.Create(ctx, &Identity{ID: randID(), Label: "active-one", APIKeyHash: []byte("h"), CreatedAt: time.Now(), Status: "active"}))
	require.NoError(t, c.Identities.Create(ctx, &Identity{ID: randID(), Label: "paused-one", APIKeyHash: []byte("h"), CreatedAt: time.Now(), Status: "paused"}))

	active, err := c.Identities.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "active-one", active[0].Label)
}

func TestIdentityRepo_SetStatusSetLabelSetTrustTier(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	id := &Identity{ID: randID(), Label: "original", APIKeyHash: []byte("h"), CreatedAt: time.Now(), Status: "active"}
	require.NoError(t, c.Identities.Create(ctx, id))

	require.NoError(t, c.Identities.SetLabel(ctx, id.ID, "renamed"))
	require.NoError(t, c.Identities.SetStatus(ctx, id.ID, "paused"))
	require.NoError(t, c.Identities.SetTrustTier(ctx, id.ID, 2))

	got, err := c.Identities.Get(ctx, id.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Label)
	assert.Equal(t, "paused", got.Status)
	assert.Equal(t, 2, got.TrustTier)
}
