// Workbench Agent - local session and authorization manager
//
// The agent is the trusted local companion for the Workbench repair
// shop front-end. It owns the authenticated session against the hosted
// backend: recovery at startup, token refresh, encrypted credential
// storage, profile caching and role resolution. The SPA talks to it
// over a loopback HTTP API and a WebSocket feed; it never sees a token.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/workbenchhq/workbench-agent/migrations"

	"github.com/workbenchhq/workbench-agent/internal/api"
	"github.com/workbenchhq/workbench-agent/internal/audit"
	"github.com/workbenchhq/workbench-agent/internal/auth"
	"github.com/workbenchhq/workbench-agent/internal/backend"
	"github.com/workbenchhq/workbench-agent/internal/backend/realtime"
	"github.com/workbenchhq/workbench-agent/internal/bridge"
	"github.com/workbenchhq/workbench-agent/internal/device"
	"github.com/workbenchhq/workbench-agent/internal/infrastructure/config"
	"github.com/workbenchhq/workbench-agent/internal/infrastructure/database"
	"github.com/workbenchhq/workbench-agent/internal/infrastructure/logging"
	"github.com/workbenchhq/workbench-agent/internal/profile"
	"github.com/workbenchhq/workbench-agent/internal/session"
	"github.com/workbenchhq/workbench-agent/internal/telemetry"
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

// agentSecretSize is the size of the generated sealing secret.
const agentSecretSize = 32

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Workbench agent",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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

	// Open local store
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Sealing key material: per-install secret plus device fingerprint.
	secret, err := loadAgentSecret(cfg.Agent.SecretPath)
	if err != nil {
		return fmt.Errorf("loading agent secret: %w", err)
	}
	fingerprint := device.Fingerprint()

	sealer, err := session.NewSealer(secret, fingerprint)
	if err != nil {
		return fmt.Errorf("initialising sealer: %w", err)
	}
	store := session.NewSQLiteStore(db.DB, sealer)
	manager := session.NewManager()

	// Hosted backend client and profile service
	backendClient := backend.New(cfg.Backend, log.Logger)
	profiles := profile.NewService(backendClient, db.DB, cfg.Session, log.Logger)

	resolver := auth.NewResolver(func() (auth.Role, bool) {
		snap := manager.Current()
		if snap.Session == nil || snap.User == nil {
			return "", false
		}
		p, profErr := profiles.Get(context.Background(), snap.Session.AccessToken, snap.User.ID)
		if profErr != nil {
			return "", false
		}
		return p.Role, true
	})

	auditRepo := audit.NewSQLiteRepository(db.DB)
	trust := device.NewTrustReporter(backendClient, log.Logger)

	// Local API server and WebSocket hub. The hub doubles as the
	// front-end directive channel for the session service.
	hub := api.NewHub(cfg.LocalAPI.WebSocket, log)
	authService := session.NewService(backendClient, store, manager, profiles, trust, hub, log.Logger)

	server, err := api.New(api.Deps{
		Config:      cfg.LocalAPI,
		Logger:      log,
		Manager:     manager,
		Auth:        authService,
		Profiles:    profiles,
		Resolver:    resolver,
		Audit:       auditRepo,
		DB:          db,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("local API listening",
		"host", cfg.LocalAPI.Host,
		"port", cfg.LocalAPI.Port,
	)

	// Connect telemetry (optional)
	var teleClient *telemetry.Client
	if cfg.Telemetry.Enabled {
		teleClient, err = telemetry.Connect(cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting telemetry: %w", err)
		}
		defer func() {
			log.Info("closing telemetry connection")
			if closeErr := teleClient.Close(); closeErr != nil {
				log.Error("error closing telemetry", "error", closeErr)
			}
		}()
		teleClient.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
		backendClient.SetMetrics(teleClient)
		profiles.SetMetrics(teleClient)
		log.Info("telemetry connected",
			"url", cfg.Telemetry.URL,
			"org", cfg.Telemetry.Org,
			"bucket", cfg.Telemetry.Bucket,
		)
	} else {
		log.Info("telemetry disabled")
	}

	// Recover the persisted session. The API is already up, so the SPA
	// sees ready=false until this settles.
	bootstrapper := session.NewBootstrapper(store, backendClient, manager, cfg.Session.RefreshLeewayDuration(), log.Logger)
	bootStart := time.Now()
	state := bootstrapper.Run(ctx)
	teleClient.RecordBootstrap(state.String(), time.Since(bootStart))
	recordBootAudit(ctx, auditRepo, manager, state, log)
	log.Info("session bootstrap complete", "state", state.String())

	// Backend auth event stream and listener
	stream, err := realtime.New(cfg.Backend.URL, cfg.Realtime, cfg.Backend.APIKey, log.Logger)
	if err != nil {
		return fmt.Errorf("creating realtime stream: %w", err)
	}
	go stream.Run(ctx)

	listener := session.NewListener(manager, store, hub, profiles, log.Logger)
	if teleClient != nil {
		listener.AddSink(telemetrySink{client: teleClient})
	}

	// Connect the MQTT event bridge (optional)
	var bridgeClient *bridge.Client
	if cfg.Bridge.Enabled {
		bridgeClient, err = bridge.Connect(cfg.Bridge)
		if err != nil {
			return fmt.Errorf("connecting bridge: %w", err)
		}
		defer func() {
			log.Info("disconnecting bridge")
			if closeErr := bridgeClient.Close(); closeErr != nil {
				log.Error("error closing bridge", "error", closeErr)
			}
		}()
		bridgeClient.SetLogger(log)
		log.Info("bridge connected",
			"broker", fmt.Sprintf("%s:%d", cfg.Bridge.Broker.Host, cfg.Bridge.Broker.Port),
			"client_id", cfg.Bridge.Broker.ClientID,
		)

		mirror := bridge.NewMirror(bridgeClient, bridgeClient.Topics(), manager, authService.SignOut, log.Logger)
		listener.AddSink(mirror)
		go func() {
			if runErr := mirror.Run(ctx); runErr != nil {
				log.Error("bridge mirror stopped", "error", runErr)
			}
		}()
	} else {
		log.Info("bridge disabled")
	}

	go listener.Run(ctx, stream.Events())

	if err := healthCheck(ctx, db, teleClient, bridgeClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Bridge (if enabled)
	// 2. Telemetry (if enabled)
	// 3. API server
	// 4. Database

	log.Info("Workbench agent stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses WORKBENCH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WORKBENCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadAgentSecret reads the per-install sealing secret, generating one
// on first run. The file is created with owner-only permissions.
func loadAgentSecret(path string) ([]byte, error) {
	secret, err := os.ReadFile(path)
	if err == nil {
		if len(secret) < agentSecretSize {
			return nil, fmt.Errorf("agent secret at %s is too short", path)
		}
		return secret, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading agent secret: %w", err)
	}

	secret = make([]byte, agentSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating agent secret: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating secret directory: %w", err)
	}
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return nil, fmt.Errorf("writing agent secret: %w", err)
	}
	return secret, nil
}

// recordBootAudit writes the bootstrap outcome to the audit trail.
func recordBootAudit(ctx context.Context, repo audit.Repository, manager *session.Manager, state session.State, log *logging.Logger) {
	outcome := audit.OutcomeSuccess
	if state == session.StateSignedOut {
		outcome = audit.OutcomeFailure
	}
	entry := &audit.Entry{
		Event:   audit.EventBootstrap,
		Outcome: outcome,
		Details: map[string]any{"state": state.String()},
	}
	if snap := manager.Current(); snap.User != nil {
		entry.UserID = snap.User.ID
	}
	if err := repo.Record(ctx, entry); err != nil {
		log.Warn("recording bootstrap audit entry failed", "error", err)
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// Telemetry and bridge clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, teleClient *telemetry.Client, bridgeClient *bridge.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if teleClient != nil {
		if err := teleClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	if bridgeClient != nil {
		if err := bridgeClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("bridge: %w", err)
		}
	}

	return nil
}

// telemetrySink feeds handled auth events into telemetry.
type telemetrySink struct {
	client *telemetry.Client
}

func (s telemetrySink) ObserveAuthEvent(ev session.AuthEvent) {
	s.client.RecordAuthEvent(string(ev.Type))
}
