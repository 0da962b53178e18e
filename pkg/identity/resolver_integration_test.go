package identity

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cirwel/unitares-govcore/pkg/store"
)

// newTestResolver starts a disposable Postgres container and returns a
// Resolver backed by real repos — Resolve/claimOrCreate's branching depends
// on store.ErrAlreadyExists and FindByLabel's uniqueness semantics closely
// enough that a mock would just re-encode the bug this test exists to catch.
// Grounded on the same testcontainers shape as pkg/store's own test helper.
func newTestResolver(t *testing.T) (*Resolver, *store.Client) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("govcore_test"),
		postgres.WithUsername("govcore"),
		postgres.WithPassword("govcore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	u, err := url.Parse(connStr)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	password, _ := u.User.Password()

	client, err := store.NewClient(ctx, store.Config{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		Database: u.Path[1:],
		SSLMode:  "disable",
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return New(client.Identities, client.Sessions, DefaultConfig()), client
}

func TestResolver_Resolve_CreateNewWhenNoLabelMatch(t *testing.T) {
	r, _ := newTestResolver(t)
	res, err := r.Resolve(context.Background(), Request{SessionKey: "sess-1", Label: "fresh-agent"})
	require.NoError(t, err)
	assert.Equal(t, PathCreated, res.Path)
	assert.NotEmpty(t, res.PlaintextAPIKey)
	assert.Equal(t, 0, res.TrustTier)
}

func TestResolver_Resolve_ClaimExistingLabelWithValidAPIKey(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	created, err := r.Resolve(ctx, Request{SessionKey: "sess-a", Label: "alice"})
	require.NoError(t, err)
	require.NoError(t, r.End(ctx, "sess-a")) // drop the active binding so the label is claimable again

	claimed, err := r.Resolve(ctx, Request{SessionKey: "sess-b", Label: "alice", APIKey: created.PlaintextAPIKey})
	require.NoError(t, err)
	assert.Equal(t, PathLabelClaim, claimed.Path)
	assert.Equal(t, created.IdentityID, claimed.IdentityID)
}

// TestResolver_Resolve_ActiveBindingRejectsBeforeAPIKeyCheck is spec.md
// Scenario B / P10: a second session claiming an in-use label must see
// IDENTITY_IN_USE, not an API-key failure, even when it supplies no API key
// at all.
func TestResolver_Resolve_ActiveBindingRejectsBeforeAPIKeyCheck(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	_, err := r.Resolve(ctx, Request{SessionKey: "sess-a", Label: "alice"})
	require.NoError(t, err)

	_, err = r.Resolve(ctx, Request{SessionKey: "sess-b", Label: "alice"})
	assert.ErrorIs(t, err, ErrIdentityInUse)
}

func TestResolver_Resolve_WrongAPIKeyOnInactiveLabelFails(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	_, err := r.Resolve(ctx, Request{SessionKey: "sess-a", Label: "alice"})
	require.NoError(t, err)
	require.NoError(t, r.End(ctx, "sess-a"))

	_, err = r.Resolve(ctx, Request{SessionKey: "sess-b", Label: "alice", APIKey: "not-the-real-key"})
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestResolver_Resolve_SessionCacheHit(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	created, err := r.Resolve(ctx, Request{SessionKey: "sess-1", Label: "cached-agent"})
	require.NoError(t, err)

	again, err := r.Resolve(ctx, Request{SessionKey: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, PathSessionCache, again.Path)
	assert.Equal(t, created.IdentityID, again.IdentityID)
}

func TestResolver_Resolve_DurableSessionHitAfterCacheEviction(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	created, err := r.Resolve(ctx, Request{SessionKey: "sess-1", Label: "durable-agent"})
	require.NoError(t, err)

	r.cache.Invalidate("sess-1") // simulate an LRU/TTL eviction; binding still durable
	again, err := r.Resolve(ctx, Request{SessionKey: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, PathDurableSession, again.Path)
	assert.Equal(t, created.IdentityID, again.IdentityID)
}

func TestResolver_Resolve_NoLabelNoSessionFails(t *testing.T) {
	r, _ := newTestResolver(t)
	_, err := r.Resolve(context.Background(), Request{SessionKey: "unbound-session"})
	assert.ErrorIs(t, err, ErrLabelRequired)
}
