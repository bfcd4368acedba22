package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/radiomesh/meshbridge/internal/infrastructure/config"
	"github.com/radiomesh/meshbridge/internal/infrastructure/database"
	"github.com/radiomesh/meshbridge/internal/infrastructure/mqtt"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("MESHBRIDGE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want default %q", got, defaultConfigPath)
	}

	t.Setenv("MESHBRIDGE_CONFIG", "/etc/meshbridge/config.yaml")
	if got := getConfigPath(); got != "/etc/meshbridge/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env value", got)
	}
}

func TestTopicPattern(t *testing.T) {
	tests := []struct {
		name   string
		bridge config.BridgeConfig
		want   string
	}{
		{
			name:   "explicit pattern wins",
			bridge: config.BridgeConfig{TopicPattern: "meshtastic/json/#", Region: "EU_868"},
			want:   "meshtastic/json/#",
		},
		{
			name:   "default is all regions",
			bridge: config.BridgeConfig{},
			want:   "msh/+/2/json/#",
		},
		{
			name:   "region only",
			bridge: config.BridgeConfig{Region: "EU_868"},
			want:   "msh/EU_868/2/json/#",
		},
		{
			name:   "channel only",
			bridge: config.BridgeConfig{Channel: "LongFast"},
			want:   "msh/+/2/json/LongFast/#",
		},
		{
			name:   "region and channel",
			bridge: config.BridgeConfig{Region: "EU_868", Channel: "LongFast"},
			want:   "msh/EU_868/2/json/LongFast/#",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Bridge: tt.bridge}
			if got := topicPattern(cfg); got != tt.want {
				t.Errorf("topicPattern() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHealthCheckReportsBrokerDown(t *testing.T) {
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "health.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	client := mqtt.New(config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "health-test"},
	})

	err = healthCheck(context.Background(), db, client, nil)
	if err == nil {
		t.Fatal("healthCheck() = nil, want error while broker disconnected")
	}
	if !strings.Contains(err.Error(), "mqtt") {
		t.Errorf("healthCheck() error = %v, want mqtt failure", err)
	}
}

func TestRunMissingConfig(t *testing.T) {
	t.Setenv("MESHBRIDGE_CONFIG", "/nonexistent/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() = nil, want error for missing config")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want config load failure", err)
	}
}
