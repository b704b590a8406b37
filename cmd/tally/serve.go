package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/tally-core/internal/api"
	"github.com/nerrad567/tally-core/internal/counter"
	"github.com/nerrad567/tally-core/internal/identity"
	"github.com/nerrad567/tally-core/internal/infrastructure/config"
	"github.com/nerrad567/tally-core/internal/infrastructure/database"
	"github.com/nerrad567/tally-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/tally-core/internal/infrastructure/logging"
	"github.com/nerrad567/tally-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/tally-core/migrations"
)

// startupCheckTimeout bounds the health checks run before serving.
const startupCheckTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), resolveConfigPath())
		},
	}
}

// loadConfig loads the config file and builds the configured logger.
func loadConfig(path string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, logging.New(cfg.Logging, version), nil
}

// openDatabase opens the actor over the configured file and applies the
// embedded migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.Database, error) {
	db, err := database.Open(ctx, cfg.Path, database.Options{
		Readers:       cfg.Readers,
		QueueCapacity: cfg.QueueCapacity,
		BusyTimeout:   time.Duration(cfg.BusyTimeout) * time.Second,
		CacheSizeKiB:  cfg.CacheSizeKiB,
		Migrations:    migrations.FS,
		MigrationsDir: migrations.Dir,
		Logger:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// run is the serve logic, separated from cobra for testability. It returns
// nil on a clean shutdown after ctx is cancelled.
//
// Components are closed in reverse start order by the deferred calls, so the
// API stops first and the database is closed last.
func run(ctx context.Context, path string) error { //nolint:gocognit,gocyclo // linear start-up sequence
	log := logging.Default()
	log.Info("starting Tally Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, log, err := loadConfig(path)
	if err != nil {
		return err
	}
	log.Info("configuration loaded", "path", path)

	db, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", cfg.Database.Path, "readers", db.Readers())

	checks := make(map[string]api.HealthChecker)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, log)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, log)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		if cfg.Database.StatsInterval > 0 {
			go influxClient.ReportStats(ctx, time.Duration(cfg.Database.StatsInterval)*time.Second, db)
		}
	} else {
		log.Info("InfluxDB disabled")
	}

	// Counter service. Closed before the MQTT and InfluxDB clients so queued
	// notifications still reach them.
	counters := counter.NewService(db, log)
	defer counters.Close()

	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)
	counters.AddNotifier(counter.NewBroadcaster(hub))

	if mqttClient != nil {
		counters.AddNotifier(counter.NewStatePublisher(mqttClient, log))

		listener := counter.NewCommandListener(counters, mqttClient, byte(cfg.MQTT.QoS), log) //nolint:gosec // QoS validated by config
		if startErr := listener.Start(); startErr != nil {
			return fmt.Errorf("starting counter command listener: %w", startErr)
		}
		defer func() {
			if stopErr := listener.Stop(); stopErr != nil {
				log.Warn("error stopping counter command listener", "error", stopErr)
			}
		}()
	}
	var history api.HistorySource
	if influxClient != nil {
		counters.AddNotifier(counter.NewRecorder(influxClient))
		history = influxClient
	}

	// Kratos session verification (optional)
	var users api.UserResolver
	if cfg.Identity.Enabled {
		kratos, kratosErr := identity.NewClient(cfg.Identity)
		if kratosErr != nil {
			return fmt.Errorf("configuring identity client: %w", kratosErr)
		}
		users = identity.NewResolver(kratos, db, log)
		checks["identity"] = kratos
		log.Info("identity enabled", "public_url", cfg.Identity.PublicURL)
	} else {
		log.Info("identity disabled, /user is unavailable")
	}

	if err := startupCheck(ctx, db, checks, log); err != nil {
		return err
	}

	srv, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		DB:          db,
		Counters:    counters,
		Users:       users,
		History:     history,
		Checks:      checks,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal", "address", srv.Addr())

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// startupCheck fails start-up if the database is unhealthy. Optional
// dependencies only produce a warning; /health keeps reporting on them.
func startupCheck(ctx context.Context, db *database.Database, checks map[string]api.HealthChecker, log *logging.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	for name, check := range checks {
		if err := check.HealthCheck(ctx); err != nil {
			log.Warn("dependency unhealthy at start-up", "dependency", name, "error", err)
		}
	}
	log.Info("start-up health checks complete")
	return nil
}
