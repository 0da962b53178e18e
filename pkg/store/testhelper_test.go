package store

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// randID generates a fresh row ID for tests that don't care about the
// specific value, only that it's unique.
func randID() string { return uuid.NewString() }

// newTestClient starts a disposable Postgres container, applies this
// package's embedded migrations via NewClient, and returns a ready Client.
// Grounded on the teacher's pkg/database/client_test.go newTestClient, but
// builds a store.Config from the container's connection string instead of
// handing ent a raw *sql.DB, since this package owns its own migrations.
func newTestClient(t *testing.T) *Client {
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

	cfg := configFromConnString(t, connStr)
	client, err := NewClient(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

func configFromConnString(t *testing.T, connStr string) Config {
	t.Helper()
	u, err := url.Parse(connStr)
	require.NoError(t, err)

	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	password, _ := u.User.Password()
	return Config{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		Database: u.Path[1:],
		SSLMode:  "disable",
	}
}
