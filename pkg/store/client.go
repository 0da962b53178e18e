// Package store is the persistence layer: hand-written SQL over
// jackc/pgx/v5 matching the ent/schema definitions field-for-field (see
// DESIGN.md "Ent without code generation" for why this isn't a generated
// Ent client). Every multi-row write goes through an explicit pgx.Tx,
// grounded on the teacher's client.Tx(ctx)/defer tx.Rollback()/tx.Commit()
// idiom used throughout pkg/queue and pkg/services.
package store

import (
	"context"
	stdsql "database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for migrations
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds Postgres connection settings, mirroring the teacher's
// pkg/database.Config.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (c Config) dsn() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// ConnString exposes the Postgres connection string for callers outside
// this package that need their own connection — pkg/events.NewNotifyListener
// opens a dedicated LISTEN connection separate from the pool.
func (c Config) ConnString() string { return c.dsn() }

// Client wraps the pgx connection pool and exposes repositories for every
// entity named in spec.md §6.3.
type Client struct {
	pool *pgxpool.Pool

	Identities  *IdentityRepo
	Sessions    *SessionRepo
	AgentStates *AgentStateRepo
	Discoveries *DiscoveryRepo
	Dialectic   *DialecticRepo
	Calibration *CalibrationRepo
	Audit       *AuditRepo
	Locks       *LockRepo
}

// NewClient opens a connection pool, runs pending migrations, and wires
// every repository against the shared pool.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("parsing pool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := runMigrations(cfg); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	c := &Client{pool: pool}
	c.Identities = &IdentityRepo{pool: pool}
	c.Sessions = &SessionRepo{pool: pool}
	c.AgentStates = &AgentStateRepo{pool: pool}
	c.Discoveries = &DiscoveryRepo{pool: pool}
	c.Dialectic = &DialecticRepo{pool: pool}
	c.Calibration = &CalibrationRepo{pool: pool}
	c.Audit = &AuditRepo{pool: pool}
	c.Locks = &LockRepo{pool: pool}
	return c, nil
}

// Pool exposes the underlying pool for components (e.g. pkg/lockmgr's
// Postgres advisory-lock backend) that need a raw connection.
func (c *Client) Pool() *pgxpool.Pool { return c.pool }

// Close releases the connection pool.
func (c *Client) Close() { c.pool.Close() }

// runMigrations applies embedded SQL migrations via golang-migrate, the
// same embed.FS + iofs pattern as the teacher's pkg/database/migrations.go.
func runMigrations(cfg Config) error {
	db, err := stdsql.Open("pgx", cfg.dsn())
	if err != nil {
		return fmt.Errorf("opening migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating postgres migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}
	defer sourceDriver.Close()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, cfg.Database, driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Health reports pool connectivity and statistics, mirroring the teacher's
// database.Health.
type Health struct {
	Status        string `json:"status"`
	TotalConns    int32  `json:"total_conns"`
	IdleConns     int32  `json:"idle_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	MaxConns      int32  `json:"max_conns"`
}

func (c *Client) CheckHealth(ctx context.Context) (*Health, error) {
	if err := c.pool.Ping(ctx); err != nil {
		return &Health{Status: "unhealthy"}, err
	}
	stat := c.pool.Stat()
	return &Health{
		Status:        "healthy",
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
	}, nil
}
