// Command govcore runs the governance-core coordination service: the HTTP/
// WebSocket API, the background sweepers, and the NOTIFY-driven event fan
// out, wired together the way test/e2e/harness.go wires the teacher's
// services for its own end-to-end tests.
package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	stdsql "database/sql"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" for the NOTIFY listener's raw *sql.DB
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cirwel/unitares-govcore/pkg/api"
	"github.com/cirwel/unitares-govcore/pkg/config"
	"github.com/cirwel/unitares-govcore/pkg/dialectic"
	"github.com/cirwel/unitares-govcore/pkg/dispatch"
	"github.com/cirwel/unitares-govcore/pkg/events"
	"github.com/cirwel/unitares-govcore/pkg/identity"
	"github.com/cirwel/unitares-govcore/pkg/knowledge"
	"github.com/cirwel/unitares-govcore/pkg/lockmgr"
	"github.com/cirwel/unitares-govcore/pkg/monitor"
	"github.com/cirwel/unitares-govcore/pkg/notify"
	"github.com/cirwel/unitares-govcore/pkg/store"
	"github.com/cirwel/unitares-govcore/pkg/telemetry"
)

const (
	dialecticSweepInterval = 10 * time.Minute
	knowledgeSweepInterval = time.Hour
	knowledgeRetention     = 30 * 24 * time.Hour
	telemetryScanInterval  = time.Minute
	telemetryScanLimit     = 2000
	metricsListenAddr      = ":9090"
)

func main() {
	root := &cobra.Command{
		Use:   "govcore",
		Short: "Governance-core multi-agent coordination service",
	}
	root.PersistentFlags().String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to config directory (govcore.yaml, .env)")

	root.AddCommand(serveCmd(), migrateCmd(), onboardCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		stdlog.Fatalf("govcore: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// loadEnvAndConfig loads the optional .env file from configDir (warn and
// continue on failure, same as the teacher's cmd/tarsy/main.go) and then
// builds the validated Config.
func loadEnvAndConfig(ctx context.Context, configDir string) (*config.Config, error) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("no .env file loaded, continuing with existing environment", "path", envPath, "error", err)
	}
	return config.Initialize(ctx, configDir)
}

func openStore(ctx context.Context) (*store.Client, store.Config, error) {
	dbCfg, err := store.LoadConfigFromEnv()
	if err != nil {
		return nil, store.Config{}, fmt.Errorf("loading database config: %w", err)
	}
	client, err := store.NewClient(ctx, dbCfg)
	if err != nil {
		return nil, store.Config{}, fmt.Errorf("connecting to database: %w", err)
	}
	return client, dbCfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the governance-core API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runServe(cmd.Context(), configDir)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			configDir, _ := cmd.Flags().GetString("config-dir")
			if _, err := loadEnvAndConfig(ctx, configDir); err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			// store.NewClient runs embedded golang-migrate migrations as
			// part of connecting — there is no separate migrate step.
			client, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			slog.Info("migrations applied")
			return nil
		},
	}
}

func onboardCmd() *cobra.Command {
	var label string
	var tier int
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Pre-register an identity at a given trust tier and print its API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfg, err := loadEnvAndConfig(ctx, configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			client, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			resolver := identity.New(client.Identities, client.Sessions, cfg.Identity)
			result, err := resolver.Onboard(ctx, label, tier)
			if err != nil {
				return fmt.Errorf("onboarding identity: %w", err)
			}
			fmt.Printf("identity_id: %s\nlabel: %s\ntrust_tier: %d\napi_key: %s\n",
				result.IdentityID, result.Label, result.TrustTier, result.PlaintextAPIKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "display label for the new identity (default: timestamp-derived)")
	cmd.Flags().IntVar(&tier, "tier", 0, "trust tier to assign (0-3)")
	return cmd
}

func runServe(ctx context.Context, configDir string) error {
	cfg, err := loadEnvAndConfig(ctx, configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client, dbCfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	sqlDB, err := stdsql.Open("pgx", dbCfg.ConnString())
	if err != nil {
		return fmt.Errorf("opening raw sql connection for event publisher: %w", err)
	}
	defer sqlDB.Close()
	eventPublisher := events.NewEventPublisher(sqlDB)

	adapter := events.NewAuditCatchupAdapter(client.Audit)
	connManager := events.NewConnectionManager(adapter, 5*time.Second)
	notifyListener := events.NewNotifyListener(dbCfg.ConnString(), connManager)
	connManager.SetListener(notifyListener)
	if err := notifyListener.Start(ctx); err != nil {
		return fmt.Errorf("starting notify listener: %w", err)
	}
	defer notifyListener.Stop(ctx)

	pid := fmt.Sprintf("%s-%d", hostname(), os.Getpid())
	locker := lockmgr.NewPostgresLocker(client.Pool(), client.Locks, pid)
	locks := lockmgr.NewManager(locker, client.Locks, cfg.Lock, slog.Default().With("component", "lockmgr"))
	go locks.RunBackground(ctx)
	defer locks.Stop()

	mon := monitor.New(client.AgentStates, client.Audit, client.Calibration, cfg.Monitor, slog.Default().With("component", "monitor"))
	mon.SetEventPublisher(eventPublisher)

	identities := identity.New(client.Identities, client.Sessions, cfg.Identity)

	dial := dialectic.New(client.Dialectic, client.Identities, client.AgentStates, client.Discoveries, cfg.Dialectic)
	dialSweeper := dialectic.NewSweeper(dial, dialecticSweepInterval, slog.Default().With("component", "dialectic-sweeper"))
	dialSweeper.Start(ctx)
	defer dialSweeper.Stop()

	knowledgeStore := knowledge.NewPostgresStore(client.Discoveries, client.Identities, cfg.KnowledgeStoreRatePerHour)
	knowledgeSweeper := knowledge.NewSweeper(knowledgeStore, knowledgeSweepInterval, knowledgeRetention, slog.Default().With("component", "knowledge-sweeper"))
	knowledgeSweeper.Start(ctx)
	defer knowledgeSweeper.Stop()

	notifySvc := notify.NewService(notify.ServiceConfig{
		Token:        os.Getenv("GOVCORE_SLACK_TOKEN"),
		Channel:      os.Getenv("GOVCORE_SLACK_CHANNEL"),
		DashboardURL: os.Getenv("GOVCORE_DASHBOARD_URL"),
	})

	metrics, err := telemetry.NewMetrics(client.Audit, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("registering telemetry metrics: %w", err)
	}
	go runTelemetryScans(ctx, metrics)

	deps := &dispatch.Deps{
		Identities:     identities,
		Locks:          locks,
		Monitor:        mon,
		Dialectic:      dial,
		Knowledge:      knowledgeStore,
		IdentityDB:     client.Identities,
		AgentStates:    client.AgentStates,
		Calibration:    client.Calibration,
		Notify:         notifySvc,
		Log:            slog.Default().With("component", "dispatch"),
		BasinThreshold: cfg.Monitor.BasinThreshold,
	}
	dispatcher := dispatch.New(deps)

	server := api.NewServer(dispatcher, connManager)

	metricsServer := &http.Server{Addr: metricsListenAddr, Handler: promhttp.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Server.ListenAddr)
		if err := server.Start(cfg.Server.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		slog.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
	_ = metricsServer.Shutdown(shutdownCtx)
	return nil
}

// runTelemetryScans periodically refreshes pkg/telemetry's Prometheus
// gauges over the audit log's recent window, the read-through design
// described in that package's own doc comment.
func runTelemetryScans(ctx context.Context, m *telemetry.Metrics) {
	ticker := time.NewTicker(telemetryScanInterval)
	defer ticker.Stop()
	since := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := m.Scan(ctx, since, telemetryScanLimit); err != nil {
				slog.Warn("telemetry scan failed", "error", err)
				continue
			}
			since = now
		}
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
