// ringbridge mirrors a Ring alarm and camera account onto an MQTT broker
// using Home Assistant discovery conventions.
//
// This is the main entry point. It loads configuration, connects the
// infrastructure (journal database, InfluxDB history, MQTT), starts the
// synchronisation engine and the monitoring API, and shuts everything down
// in order on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/ringbridge/internal/api"
	"github.com/nerrad567/ringbridge/internal/audit"
	"github.com/nerrad567/ringbridge/internal/bridge"
	"github.com/nerrad567/ringbridge/internal/confirm"
	"github.com/nerrad567/ringbridge/internal/infrastructure/config"
	"github.com/nerrad567/ringbridge/internal/infrastructure/database"
	"github.com/nerrad567/ringbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/ringbridge/internal/infrastructure/logging"
	"github.com/nerrad567/ringbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/ringbridge/internal/metrics"
	"github.com/nerrad567/ringbridge/internal/remote"
	"github.com/nerrad567/ringbridge/internal/remote/sim"
	"github.com/nerrad567/ringbridge/internal/republish"
	"github.com/nerrad567/ringbridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// journalPruneInterval is how often expired journal records are removed.
const journalPruneInterval = time.Hour

// simLocationID is the location of the simulated demo account.
const simLocationID = "sim-location"

// errRemoteUnavailable is returned when the configuration asks for the
// live remote API, which this build does not carry.
var errRemoteUnavailable = errors.New("remote API transport not available in this build; set ring.simulate")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // Linear bootstrap sequence
	log := logging.Default()
	log.Info("starting ringbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	account, err := remoteClient(ctx, cfg.Ring, log)
	if err != nil {
		return err
	}

	var journal audit.Repository
	if cfg.Database.Enabled {
		db, openErr := database.Open(cfg.Database)
		if openErr != nil {
			return fmt.Errorf("opening database: %w", openErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		repo := audit.NewSQLiteRepository(db.DB)
		journal = repo
		if days := cfg.Database.RetentionDays; days > 0 {
			go audit.RunRetention(ctx, repo, time.Duration(days)*24*time.Hour, journalPruneInterval, log.Component("audit"))
		}
		log.Info("command journal ready",
			"path", cfg.Database.Path,
			"retention_days", cfg.Database.RetentionDays,
		)
	} else {
		log.Info("command journal disabled")
	}

	var history bridge.HistoryWriter
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		history = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	m := metrics.New()

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))
	// Closed last: Close publishes the bridge offline status after the
	// engine has published every device offline.
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	hub := api.NewHub(log.Component("websocket"))
	go hub.Run(ctx)

	opts := bridgeOptions(cfg, account, mqttClient, m, hub, log.Component("bridge"))
	if journal != nil {
		opts.Journal = journal
	}
	if history != nil {
		opts.History = history
	}
	engine, err := bridge.New(ctx, opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	mqttClient.SetOnConnect(engine.OnBusConnected)
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
		engine.OnBusDisconnected()
	})
	engine.Start()
	defer func() {
		log.Info("stopping bridge")
		engine.Shutdown()
	}()

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log,
			Bridge:  engine,
			Journal: journal,
			Metrics: m,
			Hub:     hub,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case <-mqttClient.Lost():
		log.Error("MQTT broker unreachable, exiting", "max_attempts", cfg.MQTT.Reconnect.MaxAttempts)
		return mqtt.ErrReconnectGaveUp
	}

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. Bridge (devices and locations offline)
	// 3. MQTT (bridge status offline)
	// 4. InfluxDB (if enabled)
	// 5. Database (if enabled)
	return nil
}

// remoteClient returns the remote account the engine mirrors.
func remoteClient(ctx context.Context, cfg config.RingConfig, log *logging.Logger) (remote.Client, error) {
	if !cfg.Simulate {
		return nil, errRemoteUnavailable
	}
	account := sim.Demo(simLocationID)
	go account.Run(ctx, config.Seconds(cfg.SimulateInterval))
	log.Warn("using simulated remote account", "location_id", simLocationID)
	return account, nil
}

// bridgeOptions maps the configuration onto engine options.
func bridgeOptions(cfg *config.Config, account remote.Client, bus bridge.Bus, m *metrics.Metrics, hub *api.Hub, log *logging.Logger) bridge.Options {
	e := cfg.Engine
	return bridge.Options{
		Remote:               account,
		Bus:                  bus,
		Topics:               mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.MQTT.DiscoveryPrefix),
		QoS:                  byte(cfg.MQTT.QoS), //nolint:gosec // Validated to 0-2
		StatusTopic:          cfg.MQTT.StatusTopic,
		LocationIDs:          cfg.Ring.LocationIDs,
		EnableCameras:        cfg.Ring.EnableCameras,
		ConnectDelay:         config.Seconds(e.ConnectDelay),
		DiscoverySettle:      config.Seconds(e.DiscoverySettle),
		AvailabilitySettle:   config.Seconds(e.AvailabilitySettle),
		CameraPollInterval:   config.Seconds(cfg.Ring.CameraPollInterval),
		DingWatchdogInterval: config.Seconds(cfg.Ring.DingWatchdogInterval),
		Republish: republish.Options{
			Cycles:       e.RepublishCount,
			Interval:     config.Seconds(e.RepublishInterval),
			RestartDelay: config.Seconds(e.RestartDelay),
		},
		Confirm: confirm.Options{
			MaxRetries:  e.CommandRetries,
			RetryDelay:  config.Seconds(e.CommandRetryDelay),
			SettleDelay: config.Seconds(e.CommandSettle),
		},
		Events:  hub,
		Metrics: m,
		Logger:  log,
	}
}

// getConfigPath returns the configuration file path.
// Uses RINGBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RINGBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
