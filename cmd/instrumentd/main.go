// instrumentd - Instrument Position Database Daemon
//
// instrumentd owns a single instrument database: a catalogue of
// instruments, their channels, and named positions that can be saved from
// and restored to a live control system. It keeps the database valid and
// up to date, claims the advisory host lock, connects the channel-access
// gateway, and serves the position engine until shut down.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/skordaschristofanis/instrumentdb/migrations"

	"github.com/skordaschristofanis/instrumentdb/internal/channel"
	"github.com/skordaschristofanis/instrumentdb/internal/history"
	"github.com/skordaschristofanis/instrumentdb/internal/infrastructure/config"
	"github.com/skordaschristofanis/instrumentdb/internal/infrastructure/database"
	"github.com/skordaschristofanis/instrumentdb/internal/infrastructure/logging"
	"github.com/skordaschristofanis/instrumentdb/internal/position"
	"github.com/skordaschristofanis/instrumentdb/internal/store"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting instrumentd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open (or create) the instrument database
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", db.Path())

	// Apply any pending version upgrades
	if upgradeErr := db.CheckVersion(ctx); upgradeErr != nil {
		return fmt.Errorf("upgrading database: %w", upgradeErr)
	}
	dbVersion, err := db.Version(ctx)
	if err != nil {
		return fmt.Errorf("reading database version: %w", err)
	}
	log.Info("database schema current", "version", dbVersion)

	// Claim the advisory host/process lock. The lock is informational:
	// a foreign claim is reported but does not stop the daemon.
	free, err := db.CheckHostLock(ctx)
	if err != nil {
		return fmt.Errorf("checking host lock: %w", err)
	}
	if !free {
		log.Warn("database appears claimed by another process", "path", db.Path())
	}
	if lockErr := db.SetHostLock(ctx); lockErr != nil {
		return fmt.Errorf("claiming host lock: %w", lockErr)
	}
	defer func() {
		if clearErr := db.ClearHostLock(context.Background()); clearErr != nil {
			log.Error("error releasing host lock", "error", clearErr)
		}
	}()
	log.Info("host lock claimed")

	// Initialise the schema access layer. Store and registry must agree
	// on the default field suffix used to normalize channel names.
	st := store.NewSQLiteStore(db.DB)
	st.SetDefaultField(cfg.Channels.DefaultField)

	// Connect the channel-access gateway (optional)
	provider, cleanup, err := connectChannels(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	// Initialise the channel registry
	registry := channel.NewRegistry(provider)
	registry.SetLogger(log)
	registry.SetDefaultField(cfg.Channels.DefaultField)

	if known, listErr := st.ListChannels(ctx); listErr != nil {
		log.Warn("listing known channels failed", "error", listErr)
	} else {
		names := make([]string, 0, len(known))
		for _, ch := range known {
			names = append(names, ch.Name)
		}
		registry.Warm(names)
		log.Info("channel registry initialised", "channels", registry.Count())
	}

	// Connect the audit trail (optional)
	recorder, err := history.New(cfg.History, log)
	if err != nil {
		return fmt.Errorf("connecting history: %w", err)
	}
	if recorder != nil {
		defer func() {
			log.Info("closing history connection")
			recorder.Close()
		}()
		log.Info("history connected", "url", cfg.History.URL, "bucket", cfg.History.Bucket)
	} else {
		log.Info("history disabled")
	}

	// Initialise the position engine
	engine := position.NewEngine(st, registry, recorder)
	engine.SetLogger(log)
	engine.SetConnectWait(cfg.Channels.ConnectWaitDuration())

	// Startup consistency pass: surface positions whose stored values no
	// longer cover the instrument membership
	if report, auditErr := engine.Audit(ctx); auditErr != nil {
		log.Warn("position audit failed", "error", auditErr)
	} else {
		log.Info("position audit complete",
			"instruments", report.Instruments,
			"positions", report.Positions,
			"stale", report.Stale,
		)
	}

	// Verify the database connection is healthy
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("instrumentd stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses INSTRUMENTDB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("INSTRUMENTDB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDatabase opens an existing instrument database, or creates a fresh
// one when the file is absent and creation is enabled. An existing file
// that is not an instrument database is rejected rather than clobbered.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	dbCfg := database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	}

	if _, statErr := os.Stat(cfg.Database.Path); errors.Is(statErr, os.ErrNotExist) {
		if !cfg.Database.Create {
			return nil, fmt.Errorf("database %s does not exist and creation is disabled", cfg.Database.Path)
		}
		log.Info("creating instrument database", "path", cfg.Database.Path)
		db, err := database.Create(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("creating database: %w", err)
		}
		return db, nil
	}

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	valid, err := db.IsInstrumentDB(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("probing database: %w", err)
	}
	if !valid {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s", database.ErrNotInstrumentDB, cfg.Database.Path)
	}
	return db, nil
}

// connectChannels returns the channel provider and its cleanup function.
// With MQTT disabled the daemon runs offline: saves and database edits
// work, restores skip every channel.
func connectChannels(cfg *config.Config, log *logging.Logger) (channel.Provider, func(), error) {
	if !cfg.Channels.MQTT.Enabled {
		log.Info("channel access disabled, running offline")
		return offlineProvider{}, func() {}, nil
	}

	provider, err := channel.ConnectMQTT(cfg.Channels.MQTT, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting channel gateway: %w", err)
	}
	log.Info("channel gateway connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Channels.MQTT.Host, cfg.Channels.MQTT.Port),
		"topic_prefix", cfg.Channels.MQTT.TopicPrefix,
	)
	cleanup := func() {
		log.Info("disconnecting channel gateway")
		provider.Close()
	}
	return provider, cleanup, nil
}

// offlineProvider is the Provider used when no channel gateway is
// configured. Every dial fails, so live operations degrade to skips while
// the database stays fully usable.
type offlineProvider struct{}

// Dial implements channel.Provider.
func (offlineProvider) Dial(string) (channel.Conn, error) {
	return nil, fmt.Errorf("%w: channel access disabled", channel.ErrNotConnected)
}
