package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for meshbridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
// Public Meshtastic brokers typically use well-known shared credentials;
// leave empty for anonymous access.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains broker reconnection settings.
// The reconnect loop applies exponential backoff with jitter between
// InitialDelay and MaxDelay, and retries indefinitely.
type MQTTReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// BridgeConfig contains the bridging pipeline settings.
type BridgeConfig struct {
	// TopicPattern is the MQTT subscription filter for mesh packet events.
	// Only JSON-encoded packets are processed, so the pattern should target
	// the broker's json subtree (e.g. "msh/+/2/json/#"). When empty, the
	// filter is derived from Region and Channel, falling back to the
	// all-regions json subtree.
	TopicPattern string `yaml:"topic_pattern"`

	// Region and Channel optionally narrow the derived subscription to one
	// mesh region (e.g. "EU_868") and/or one channel (e.g. "LongFast").
	// Ignored when TopicPattern is set explicitly.
	Region  string `yaml:"region"`
	Channel string `yaml:"channel"`

	// InboundQueueSize bounds the channel between the broker callback and
	// the controller's read loop. On overflow the oldest message is dropped.
	InboundQueueSize int `yaml:"inbound_queue_size"`

	// DedupCacheSize bounds the seen-packet-ID cache used to suppress
	// duplicate reports of the same mesh packet from multiple gateways.
	DedupCacheSize int `yaml:"dedup_cache_size"`
}

// WebhookConfig contains outbound webhook delivery settings.
type WebhookConfig struct {
	// URL is the webhook endpoint for user-visible text messages. Required.
	URL string `yaml:"url"`

	// TelemetryURL is an optional second endpoint for position, telemetry
	// and nodeinfo packets. When empty those packet kinds are not relayed.
	TelemetryURL string `yaml:"telemetry_url"`

	// MinInterval is the minimum spacing between outbound HTTP requests,
	// enforced globally across all tasks on one endpoint. The default of 2s
	// matches Discord's published 30 requests/minute webhook limit.
	MinInterval time.Duration `yaml:"min_interval"`

	// RequestTimeout bounds each individual HTTP attempt.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxAttempts is the total number of delivery attempts per task before
	// the task is dropped and a delivery failure is reported.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialBackoff and MaxBackoff bound the exponential retry schedule
	// for transient failures. Jitter is applied on top.
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`

	// QueueSize bounds the in-memory delivery queue. On overflow the oldest
	// task is dropped with a logged warning (freshness over backlog).
	QueueSize int `yaml:"queue_size"`

	// MaxTaskAge drops tasks that waited in the queue longer than this
	// before their next attempt. Zero disables the staleness check.
	MaxTaskAge time.Duration `yaml:"max_task_age"`

	// ShutdownGrace bounds the drain of in-flight deliveries on stop.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// DatabaseConfig contains SQLite database settings for the node name cache.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for the optional
// telemetry metrics sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MESHBRIDGE_SECTION_KEY
// For example: MESHBRIDGE_MQTT_HOST, MESHBRIDGE_WEBHOOK_URL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "meshbridge",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1 * time.Second,
				MaxDelay:     60 * time.Second,
			},
		},
		Bridge: BridgeConfig{
			InboundQueueSize: 256,
			DedupCacheSize:   1000,
		},
		Webhook: WebhookConfig{
			MinInterval:    2 * time.Second,
			RequestTimeout: 10 * time.Second,
			MaxAttempts:    5,
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     30 * time.Second,
			QueueSize:      128,
			MaxTaskAge:     5 * time.Minute,
			ShutdownGrace:  10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/meshbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MESHBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("MESHBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MESHBRIDGE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("MESHBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MESHBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Bridge
	if v := os.Getenv("MESHBRIDGE_MQTT_TOPIC"); v != "" {
		cfg.Bridge.TopicPattern = v
	}

	// Webhook (URLs embed their auth token, so they belong in the environment)
	if v := os.Getenv("MESHBRIDGE_WEBHOOK_URL"); v != "" {
		cfg.Webhook.URL = v
	}
	if v := os.Getenv("MESHBRIDGE_TELEMETRY_WEBHOOK_URL"); v != "" {
		cfg.Webhook.TelemetryURL = v
	}

	// Database
	if v := os.Getenv("MESHBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("MESHBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Configuration-class problems are fatal at startup by design: a bridge with
// a malformed webhook URL or topic pattern can never do useful work.
//
// Returns:
//   - error: Description of all validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.InitialDelay <= 0 || c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
		errs = append(errs, "mqtt.reconnect delays must satisfy 0 < initial_delay <= max_delay")
	}

	// Bridge validation (an empty topic_pattern is derived at startup)
	if c.Bridge.InboundQueueSize < 1 {
		errs = append(errs, "bridge.inbound_queue_size must be at least 1")
	}
	if c.Bridge.DedupCacheSize < 0 {
		errs = append(errs, "bridge.dedup_cache_size must not be negative")
	}

	// Webhook validation
	if c.Webhook.URL == "" {
		errs = append(errs, "webhook.url is required (set MESHBRIDGE_WEBHOOK_URL environment variable)")
	} else if err := validateWebhookURL(c.Webhook.URL); err != nil {
		errs = append(errs, fmt.Sprintf("webhook.url: %v", err))
	}
	if c.Webhook.TelemetryURL != "" {
		if err := validateWebhookURL(c.Webhook.TelemetryURL); err != nil {
			errs = append(errs, fmt.Sprintf("webhook.telemetry_url: %v", err))
		}
	}
	if c.Webhook.MinInterval <= 0 {
		errs = append(errs, "webhook.min_interval must be positive")
	}
	if c.Webhook.MaxAttempts < 1 {
		errs = append(errs, "webhook.max_attempts must be at least 1")
	}
	if c.Webhook.InitialBackoff <= 0 || c.Webhook.MaxBackoff < c.Webhook.InitialBackoff {
		errs = append(errs, "webhook backoff must satisfy 0 < initial_backoff <= max_backoff")
	}
	if c.Webhook.QueueSize < 1 {
		errs = append(errs, "webhook.queue_size must be at least 1")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// InfluxDB validation (only when enabled)
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateWebhookURL checks that a webhook URL is an absolute http(s) URL.
func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
