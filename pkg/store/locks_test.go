package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockRepo_UpsertGetRelease(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	identityID := randID()

	rec := &LockRecord{
		IdentityID:  identityID,
		HolderPID:   "pid-1",
		HolderToken: "tok-1",
		AcquiredAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, c.Locks.Upsert(ctx, rec))

	got, err := c.Locks.Get(ctx, identityID)
	require.NoError(t, err)
	assert.Equal(t, "pid-1", got.HolderPID)
	assert.Equal(t, "tok-1", got.HolderToken)

	require.NoError(t, c.Locks.Release(ctx, identityID, "tok-1"))
	_, err = c.Locks.Get(ctx, identityID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLockRepo_ReleaseWrongTokenFails(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	identityID := randID()

	require.NoError(t, c.Locks.Upsert(ctx, &LockRecord{
		IdentityID: identityID, HolderPID: "pid-1", HolderToken: "tok-1", AcquiredAt: time.Now(),
	}))

	err := c.Locks.Release(ctx, identityID, "wrong-token")
	require.ErrorIs(t, err, ErrConcurrentModification)
}

func TestLockRepo_UpsertReplacesHolder(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	identityID := randID()

	require.NoError(t, c.Locks.Upsert(ctx, &LockRecord{
		IdentityID: identityID, HolderPID: "pid-1", HolderToken: "tok-1", AcquiredAt: time.Now(),
	}))
	require.NoError(t, c.Locks.Upsert(ctx, &LockRecord{
		IdentityID: identityID, HolderPID: "pid-2", HolderToken: "tok-2", AcquiredAt: time.Now(),
	}))

	got, err := c.Locks.Get(ctx, identityID)
	require.NoError(t, err)
	assert.Equal(t, "pid-2", got.HolderPID)
}

func TestLockRepo_StaleAndForceRelease(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	identityID := randID()

	old := time.Now().Add(-time.Hour)
	require.NoError(t, c.Locks.Upsert(ctx, &LockRecord{
		IdentityID: identityID, HolderPID: "pid-1", HolderToken: "tok-1", AcquiredAt: old,
	}))

	stale, err := c.Locks.Stale(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, identityID, stale[0].IdentityID)

	require.NoError(t, c.Locks.ForceRelease(ctx, identityID))
	_, err = c.Locks.Get(ctx, identityID)
	require.ErrorIs(t, err, ErrNotFound)
}
