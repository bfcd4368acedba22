// meshbridge relays text messages from a Meshtastic mesh network to
// Discord.
//
// It subscribes to the JSON packet topics a Meshtastic MQTT gateway
// publishes, decodes the packet events, and posts text messages to a
// Discord webhook with rate limiting and retry. Position, telemetry and
// nodeinfo packets optionally feed a second webhook and an InfluxDB
// bucket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/radiomesh/meshbridge/migrations"

	"github.com/radiomesh/meshbridge/internal/bridge"
	"github.com/radiomesh/meshbridge/internal/infrastructure/config"
	"github.com/radiomesh/meshbridge/internal/infrastructure/database"
	"github.com/radiomesh/meshbridge/internal/infrastructure/influxdb"
	"github.com/radiomesh/meshbridge/internal/infrastructure/logging"
	"github.com/radiomesh/meshbridge/internal/infrastructure/mqtt"
	"github.com/radiomesh/meshbridge/internal/node"
	"github.com/radiomesh/meshbridge/internal/webhook"
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

// healthCheckInterval is the spacing between periodic infrastructure probes.
const healthCheckInterval = 60 * time.Second

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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting meshbridge",
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

	// Open database and apply migrations
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
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Hydrate the node name cache from past nodeinfo broadcasts
	names := node.NewCache(node.NewSQLiteRepository(db.DB))
	names.SetLogger(log)
	if loadErr := names.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading node names: %w", loadErr)
	}
	log.Info("node name cache loaded", "nodes", names.Len())

	// Text message deliverer (required)
	textSink, err := webhook.New(cfg.Webhook.URL, cfg.Webhook)
	if err != nil {
		return fmt.Errorf("creating webhook deliverer: %w", err)
	}
	textSink.SetLogger(log.With("sink", "text"))
	textSink.Start()
	defer textSink.Stop()

	// Telemetry deliverer (optional second endpoint)
	var telemetrySink *webhook.Deliverer
	if cfg.Webhook.TelemetryURL != "" {
		telemetrySink, err = webhook.New(cfg.Webhook.TelemetryURL, cfg.Webhook)
		if err != nil {
			return fmt.Errorf("creating telemetry deliverer: %w", err)
		}
		telemetrySink.SetLogger(log.With("sink", "telemetry"))
		telemetrySink.Start()
		defer telemetrySink.Stop()
		log.Info("telemetry webhook enabled")
	}

	// InfluxDB metrics sink (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// A subscription filter the broker will always reject is a
	// configuration error, not something to retry against.
	topic := topicPattern(cfg)
	if err := mqtt.ValidateTopicFilter(topic); err != nil {
		return fmt.Errorf("invalid topic pattern %q: %w", topic, err)
	}

	// MQTT client; the controller owns connect/reconnect
	mqttClient := mqtt.New(cfg.MQTT)
	mqttClient.SetLogger(log)

	controller := bridge.New(bridge.Config{
		TopicPattern:          topic,
		QoS:                   byte(cfg.MQTT.QoS),
		InboundQueueSize:      cfg.Bridge.InboundQueueSize,
		DedupCacheSize:        cfg.Bridge.DedupCacheSize,
		ReconnectInitialDelay: cfg.MQTT.Reconnect.InitialDelay,
		ReconnectMaxDelay:     cfg.MQTT.Reconnect.MaxDelay,
	}, mqttClient, textSink, names)
	controller.SetLogger(log)
	if telemetrySink != nil {
		controller.SetTelemetrySink(telemetrySink)
	}
	if influxClient != nil {
		controller.SetMetricsSink(influxClient)
	}

	// Periodic infrastructure probe; degradation is logged, not fatal.
	go monitorHealth(ctx, log, db, mqttClient, influxClient)

	log.Info("initialisation complete, starting bridge",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"topic", topic,
	)

	if runErr := controller.Run(ctx); runErr != nil {
		return fmt.Errorf("running bridge: %w", runErr)
	}

	log.Info("meshbridge stopped")
	return nil
}

// topicPattern resolves the subscription filter: an explicit topic_pattern
// wins, otherwise the filter is built from the configured region and
// channel, defaulting to the json subtree across all regions.
func topicPattern(cfg *config.Config) string {
	if cfg.Bridge.TopicPattern != "" {
		return cfg.Bridge.TopicPattern
	}
	var topics mqtt.Topics
	switch {
	case cfg.Bridge.Region != "" && cfg.Bridge.Channel != "":
		return topics.JSONRegionChannel(cfg.Bridge.Region, cfg.Bridge.Channel)
	case cfg.Bridge.Region != "":
		return topics.JSONRegion(cfg.Bridge.Region)
	case cfg.Bridge.Channel != "":
		return topics.JSONChannel(cfg.Bridge.Channel)
	default:
		return topics.JSONAll()
	}
}

// monitorHealth probes the infrastructure connections at a fixed interval
// until ctx is cancelled.
func monitorHealth(ctx context.Context, log *logging.Logger, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
				log.Warn("health check failed", "error", err)
			} else {
				log.Debug("health check passed")
			}
		}
	}
}

// healthCheck verifies each infrastructure connection in turn. The MQTT
// check reports not-connected while the controller is between reconnect
// attempts; that is a degraded state worth surfacing, not a fault here.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MESHBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MESHBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
