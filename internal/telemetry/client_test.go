package telemetry_test

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/workbenchhq/workbench-agent/internal/infrastructure/config"
	"github.com/workbenchhq/workbench-agent/internal/telemetry"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "workbench-dev-token",
		Org:           "workbench",
		Bucket:        "agent",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// skipIfNoInfluxDB skips the test if InfluxDB is not running.
func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		cfg := testConfig()
		client, err := telemetry.Connect(cfg)
		if err != nil {
			t.Skip("InfluxDB not available, skipping integration test")
		}
		client.Close()
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := telemetry.Connect(cfg)
	if err == nil {
		t.Fatal("Connect() should return error when disabled")
	}
	if !errors.Is(err, telemetry.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := telemetry.Connect(cfg)
	if err == nil {
		t.Fatal("Connect() should fail against a dead endpoint")
	}
	if !errors.Is(err, telemetry.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

// TestNilClientWritesAreSafe verifies that the write helpers tolerate a
// nil client, which is how a disabled telemetry config is wired.
func TestNilClientWritesAreSafe(t *testing.T) {
	var client *telemetry.Client

	client.RecordBootstrap("valid", time.Second)
	client.RecordAuthEvent("signed-in")
	client.RecordBackendLatency("sign_in", time.Millisecond, true)
	client.RecordCacheAccess(true)
}

func TestConnectAndRecord(t *testing.T) {
	skipIfNoInfluxDB(t)
	cfg := testConfig()

	client, err := telemetry.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}

	client.RecordBootstrap("valid", 120*time.Millisecond)
	client.RecordAuthEvent("token-refreshed")
	client.RecordBackendLatency("refresh", 80*time.Millisecond, true)
	client.RecordCacheAccess(false)
	client.Flush()
}
