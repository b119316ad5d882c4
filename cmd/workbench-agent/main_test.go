package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("WORKBENCH_CONFIG")
	defer os.Setenv("WORKBENCH_CONFIG", originalEnv)

	os.Setenv("WORKBENCH_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("WORKBENCH_CONFIG")
	defer os.Setenv("WORKBENCH_CONFIG", originalEnv)

	os.Unsetenv("WORKBENCH_CONFIG")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("WORKBENCH_CONFIG")
	defer os.Setenv("WORKBENCH_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("WORKBENCH_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestLoadAgentSecret_GeneratesOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets", "agent.secret")

	secret, err := loadAgentSecret(path)
	if err != nil {
		t.Fatalf("loadAgentSecret() error = %v", err)
	}
	if len(secret) != agentSecretSize {
		t.Errorf("secret length = %d, want %d", len(secret), agentSecretSize)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat secret file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("secret file mode = %o, want 600", perm)
	}

	// Second load must return the same secret, not regenerate.
	again, err := loadAgentSecret(path)
	if err != nil {
		t.Fatalf("loadAgentSecret() second call error = %v", err)
	}
	if string(again) != string(secret) {
		t.Error("loadAgentSecret() should be stable across calls")
	}
}

func TestLoadAgentSecret_RejectsShortSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.secret")
	if err := os.WriteFile(path, []byte("too-short"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	if _, err := loadAgentSecret(path); err == nil {
		t.Fatal("loadAgentSecret() should reject an undersized secret")
	}
}
