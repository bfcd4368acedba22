package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes YAML content to a temp file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const minimalConfig = `
webhook:
  url: https://discord.com/api/webhooks/123/token
`

// =============================================================================
// Load Tests
// =============================================================================

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Defaults survive a minimal file.
	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("Broker.Host = %q, want default localhost", cfg.MQTT.Broker.Host)
	}
	if cfg.Bridge.TopicPattern != "" {
		t.Errorf("TopicPattern = %q, want empty (derived at startup)", cfg.Bridge.TopicPattern)
	}
	if cfg.Webhook.MinInterval != 2*time.Second {
		t.Errorf("MinInterval = %v, want 2s", cfg.Webhook.MinInterval)
	}
	if cfg.Webhook.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Webhook.MaxAttempts)
	}
	if cfg.Bridge.DedupCacheSize != 1000 {
		t.Errorf("DedupCacheSize = %d, want 1000", cfg.Bridge.DedupCacheSize)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
mqtt:
  broker:
    host: broker.example.net
    port: 8883
    tls: true
bridge:
  topic_pattern: "msh/EU_868/2/json/#"
webhook:
  url: https://discord.com/api/webhooks/123/token
  min_interval: 5s
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.example.net" {
		t.Errorf("Broker.Host = %q", cfg.MQTT.Broker.Host)
	}
	if !cfg.MQTT.Broker.TLS {
		t.Error("Broker.TLS = false, want true")
	}
	if cfg.Bridge.TopicPattern != "msh/EU_868/2/json/#" {
		t.Errorf("TopicPattern = %q", cfg.Bridge.TopicPattern)
	}
	if cfg.Webhook.MinInterval != 5*time.Second {
		t.Errorf("MinInterval = %v, want 5s", cfg.Webhook.MinInterval)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "webhook: [not: valid"))
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML")
	}
}

// =============================================================================
// Environment Override Tests
// =============================================================================

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MESHBRIDGE_MQTT_HOST", "env-broker")
	t.Setenv("MESHBRIDGE_MQTT_PORT", "2883")
	t.Setenv("MESHBRIDGE_WEBHOOK_URL", "https://discord.com/api/webhooks/999/envtoken")
	t.Setenv("MESHBRIDGE_MQTT_TOPIC", "msh/US/2/json/#")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "env-broker" {
		t.Errorf("Broker.Host = %q, want env-broker", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Broker.Port != 2883 {
		t.Errorf("Broker.Port = %d, want 2883", cfg.MQTT.Broker.Port)
	}
	if cfg.Webhook.URL != "https://discord.com/api/webhooks/999/envtoken" {
		t.Errorf("Webhook.URL = %q, want env value", cfg.Webhook.URL)
	}
	if cfg.Bridge.TopicPattern != "msh/US/2/json/#" {
		t.Errorf("TopicPattern = %q, want env value", cfg.Bridge.TopicPattern)
	}
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.Broker.Host = ""
	cfg.MQTT.QoS = 7
	cfg.Webhook.URL = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}

	msg := err.Error()
	for _, want := range []string{"mqtt.broker.host", "mqtt.qos", "webhook.url"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Validate() error missing %q: %v", want, msg)
		}
	}
}

func TestValidateWebhookURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https", "https://discord.com/api/webhooks/1/t", false},
		{"http", "http://localhost:8080/hook", false},
		{"missing scheme", "discord.com/api/webhooks/1/t", true},
		{"wrong scheme", "ftp://discord.com/hook", true},
		{"missing host", "https:///hook", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Webhook.URL = tt.url
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTelemetryURLOptional(t *testing.T) {
	cfg := defaultConfig()
	cfg.Webhook.URL = "https://discord.com/api/webhooks/1/t"

	cfg.Webhook.TelemetryURL = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil without telemetry URL", err)
	}

	cfg.Webhook.TelemetryURL = "not a url at all"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for bad telemetry URL")
	}
}

func TestValidateInfluxDBOnlyWhenEnabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.Webhook.URL = "https://discord.com/api/webhooks/1/t"

	// Disabled: empty InfluxDB settings are fine.
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil when influxdb disabled", err)
	}

	cfg.InfluxDB.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for enabled influxdb without url/org/bucket")
	}
}

func TestValidateBackoffOrdering(t *testing.T) {
	cfg := defaultConfig()
	cfg.Webhook.URL = "https://discord.com/api/webhooks/1/t"
	cfg.Webhook.InitialBackoff = 30 * time.Second
	cfg.Webhook.MaxBackoff = time.Second

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for max_backoff < initial_backoff")
	}
}
