// Foyer Core - Visitor Coordination Platform
//
// This is the main entry point for the Foyer Core application. Foyer
// coordinates visitor check-in for a staffed site: visit lifecycle,
// host approvals, front desk operations, realtime staff notification,
// and access hardware control over MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	_ "github.com/foyerlink/foyer-core/migrations"

	"github.com/foyerlink/foyer-core/internal/api"
	"github.com/foyerlink/foyer-core/internal/auth"
	"github.com/foyerlink/foyer-core/internal/device"
	"github.com/foyerlink/foyer-core/internal/infrastructure/config"
	"github.com/foyerlink/foyer-core/internal/infrastructure/database"
	"github.com/foyerlink/foyer-core/internal/infrastructure/logging"
	"github.com/foyerlink/foyer-core/internal/infrastructure/metrics"
	"github.com/foyerlink/foyer-core/internal/infrastructure/mqtt"
	"github.com/foyerlink/foyer-core/internal/integrations"
	"github.com/foyerlink/foyer-core/internal/realtime"
	"github.com/foyerlink/foyer-core/internal/visitor"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error { //nolint:gocognit // linear startup wiring
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Foyer Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load .env before config so FOYER_* overrides are visible.
	// Missing file is fine; secrets come from the environment in production.
	if err := godotenv.Load(); err == nil {
		log.Info("loaded environment from .env")
	}

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

	// Open database
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

	// Repositories
	userRepo := auth.NewUserRepository(db.DB)
	deviceRepo := device.NewRepository(db.DB)
	visitorRepo := visitor.NewRepository(db.DB)

	// First-run admin account so the API is reachable on a fresh install
	if password, seedErr := auth.SeedAdmin(ctx, userRepo, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	} else if password != "" {
		log.Warn("created initial admin account, change this password immediately",
			"username", "admin",
			"password", password,
		)
	}

	// Connect to MQTT broker (optional: sites without hardware run
	// registration and notification only)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var metricsClient *metrics.Client
	if cfg.Metrics.Enabled {
		metricsClient, err = metrics.Connect(cfg.Metrics)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := metricsClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		metricsClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.Metrics.URL, "bucket", cfg.Metrics.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Visit lifecycle engine
	visitors := visitor.NewService(visitorRepo, userRepo, log)
	visitors.SetDoorLister(deviceRepo)
	visitors.SetNotifier(integrations.NewLogSMSSender(log))
	if metricsClient != nil {
		visitors.SetRecorder(metricsClient)
	}

	// Connection registry and event fanout
	registry := realtime.NewRegistry(log)
	if metricsClient != nil {
		registry.SetGauge(metricsClient)
	}

	fanout := realtime.NewFanout(registry, log)
	if metricsClient != nil {
		fanout.SetRecorder(metricsClient)
	}
	visitors.AddSink(fanout)

	go registry.Run(ctx, cfg.GetLivenessInterval())

	// Device command dispatcher (hardware path)
	if mqttClient != nil {
		dispatcher := device.NewDispatcher(deviceRepo, mqttClient, log)
		if metricsClient != nil {
			dispatcher.SetHeartbeatRecorder(metricsClient)
		}
		visitors.AddSink(dispatcher)

		if subErr := mqttClient.Subscribe(mqtt.Topics{}.AllHeartbeats(), byte(cfg.MQTT.QoS), dispatcher.HandleHeartbeat); subErr != nil {
			return fmt.Errorf("subscribing to heartbeats: %w", subErr)
		}

		// API server
		return startAndWait(ctx, cfg, log, visitors, userRepo, deviceRepo, dispatcher, registry, mqttClient)
	}

	// No bus: dispatch still validates but publishes nowhere useful, so
	// wire a dispatcher over a null transport to keep the REST surface whole.
	dispatcher := device.NewDispatcher(deviceRepo, nullPublisher{log}, log)
	visitors.AddSink(dispatcher)

	return startAndWait(ctx, cfg, log, visitors, userRepo, deviceRepo, dispatcher, registry, nil)
}

// startAndWait brings up the API server and blocks until shutdown.
func startAndWait(
	ctx context.Context,
	cfg *config.Config,
	log *logging.Logger,
	visitors *visitor.Service,
	userRepo auth.UserRepository,
	deviceRepo device.Repository,
	dispatcher *device.Dispatcher,
	registry *realtime.Registry,
	mqttClient *mqtt.Client,
) error {
	server, err := api.New(api.Deps{
		Config:     cfg,
		Logger:     log,
		Version:    version,
		Visitors:   visitors,
		UserRepo:   userRepo,
		DeviceRepo: deviceRepo,
		Dispatcher: dispatcher,
		Registry:   registry,
		MQTT:       mqttClient,
		Recognizer: integrations.NewStaticRecognizer(),
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Device status relay needs both sides constructed first.
	dispatcher.SetStatusSink(server)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// nullPublisher satisfies the dispatcher transport when MQTT is disabled.
// Commands are logged and dropped.
type nullPublisher struct {
	log *logging.Logger
}

func (p nullPublisher) Publish(topic string, _ []byte, _ byte, _ bool) error {
	p.log.Debug("bus disabled, dropping publication", "topic", topic)
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FOYER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FOYER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
