package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Workbench agent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Backend   BackendConfig   `yaml:"backend"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Database  DatabaseConfig  `yaml:"database"`
	LocalAPI  LocalAPIConfig  `yaml:"local_api"`
	Session   SessionConfig   `yaml:"session"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Bridge    BridgeConfig    `yaml:"bridge"`
}

// AgentConfig identifies this agent installation.
type AgentConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	SecretPath  string `yaml:"secret_path"`
}

// BackendConfig contains the hosted backend connection settings.
type BackendConfig struct {
	URL string `yaml:"url"`
	// APIKey is the publishable project key sent with every request.
	// The real secret is the user's credentials; this key only scopes
	// requests to the project.
	APIKey string `yaml:"api_key"`
	// RequestTimeout bounds every backend call (seconds). A hung call
	// must never stall the agent's ready transition.
	RequestTimeout int `yaml:"request_timeout"`
}

// RealtimeConfig contains the backend auth event stream settings.
type RealtimeConfig struct {
	Path         string                  `yaml:"path"`
	PingInterval int                     `yaml:"ping_interval"`
	PongTimeout  int                     `yaml:"pong_timeout"`
	Reconnect    RealtimeReconnectConfig `yaml:"reconnect"`
}

// RealtimeReconnectConfig contains event stream reconnection settings.
type RealtimeReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LocalAPIConfig contains the local front-end API server settings.
type LocalAPIConfig struct {
	Host      string                `yaml:"host"`
	Port      int                   `yaml:"port"`
	Timeouts  LocalAPITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig            `yaml:"cors"`
	WebSocket WebSocketConfig       `yaml:"websocket"`
}

// LocalAPITimeoutConfig contains HTTP timeout settings.
type LocalAPITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings for the
// local front-end origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains local WebSocket hub settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// SessionConfig contains session lifecycle tuning.
type SessionConfig struct {
	// RefreshLeeway is subtracted from a stored session's expiry when
	// deciding whether it is still worth adopting (seconds).
	RefreshLeeway int `yaml:"refresh_leeway"`

	// ProfileCacheFresh is how long a cached profile is served without
	// consulting the backend (seconds).
	ProfileCacheFresh int `yaml:"profile_cache_fresh"`

	// ProfileCacheHard is the hard eviction age for cached profiles
	// (seconds). A cache row older than this is never served.
	ProfileCacheHard int `yaml:"profile_cache_hard"`

	// DefaultProfileExpirationDays is the expiration applied to lazily
	// provisioned profiles.
	DefaultProfileExpirationDays int `yaml:"default_profile_expiration_days"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TelemetryConfig contains InfluxDB telemetry settings.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// BridgeConfig contains the optional MQTT event bridge settings.
type BridgeConfig struct {
	Enabled     bool                  `yaml:"enabled"`
	Broker      BridgeBrokerConfig    `yaml:"broker"`
	Auth        BridgeAuthConfig      `yaml:"auth"`
	QoS         int                   `yaml:"qos"`
	TopicPrefix string                `yaml:"topic_prefix"`
	Reconnect   BridgeReconnectConfig `yaml:"reconnect"`
}

// BridgeBrokerConfig contains MQTT broker connection details.
type BridgeBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// BridgeAuthConfig contains MQTT authentication credentials.
type BridgeAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// BridgeReconnectConfig contains MQTT reconnection settings.
type BridgeReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The loading order is: hardcoded defaults, then YAML file values, then
// environment variables. Environment variables follow the pattern
// WORKBENCH_SECTION_KEY, e.g. WORKBENCH_BACKEND_KEY.
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
		Agent: AgentConfig{
			Name:        "workbench-agent",
			Environment: "production",
			SecretPath:  "./data/agent.secret",
		},
		Backend: BackendConfig{
			RequestTimeout: 15,
		},
		Realtime: RealtimeConfig{
			Path:         "/realtime/v1/auth",
			PingInterval: 30,
			PongTimeout:  10,
			Reconnect: RealtimeReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/workbench.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		LocalAPI: LocalAPIConfig{
			Host: "127.0.0.1",
			Port: 7420,
			Timeouts: LocalAPITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				Path:           "/ws",
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Session: SessionConfig{
			RefreshLeeway:                30,
			ProfileCacheFresh:            300,
			ProfileCacheHard:             600,
			DefaultProfileExpirationDays: 365,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Telemetry: TelemetryConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Bridge: BridgeConfig{
			Broker: BridgeBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "workbench-agent",
			},
			QoS:         1,
			TopicPrefix: "workbench",
			Reconnect: BridgeReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WORKBENCH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Backend
	if v := os.Getenv("WORKBENCH_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("WORKBENCH_BACKEND_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}

	// Database
	if v := os.Getenv("WORKBENCH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Telemetry
	if v := os.Getenv("WORKBENCH_INFLUX_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}

	// Bridge
	if v := os.Getenv("WORKBENCH_MQTT_USERNAME"); v != "" {
		cfg.Bridge.Auth.Username = v
	}
	if v := os.Getenv("WORKBENCH_MQTT_PASSWORD"); v != "" {
		cfg.Bridge.Auth.Password = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Backend.URL == "" {
		errs = append(errs, "backend.url is required (set WORKBENCH_BACKEND_URL environment variable)")
	} else if !strings.HasPrefix(c.Backend.URL, "http://") && !strings.HasPrefix(c.Backend.URL, "https://") {
		errs = append(errs, "backend.url must be an http(s) URL")
	}
	if c.Backend.APIKey == "" {
		errs = append(errs, "backend.api_key is required (set WORKBENCH_BACKEND_KEY environment variable)")
	}
	if c.Backend.RequestTimeout <= 0 {
		errs = append(errs, "backend.request_timeout must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.LocalAPI.Port < 1 || c.LocalAPI.Port > 65535 {
		errs = append(errs, "local_api.port must be between 1 and 65535")
	}

	if c.Session.ProfileCacheFresh <= 0 {
		errs = append(errs, "session.profile_cache_fresh must be positive")
	}
	if c.Session.ProfileCacheHard < c.Session.ProfileCacheFresh {
		errs = append(errs, "session.profile_cache_hard must be >= session.profile_cache_fresh")
	}

	if c.Bridge.Enabled && (c.Bridge.QoS < 0 || c.Bridge.QoS > 2) {
		errs = append(errs, "bridge.qos must be 0, 1, or 2")
	}
	if c.Telemetry.Enabled && c.Telemetry.URL == "" {
		errs = append(errs, "telemetry.url is required when telemetry is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// RequestTimeout returns the backend request timeout as a Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeout) * time.Second
}

// ProfileCacheFreshDuration returns the profile cache freshness window as a Duration.
func (c *SessionConfig) ProfileCacheFreshDuration() time.Duration {
	return time.Duration(c.ProfileCacheFresh) * time.Second
}

// ProfileCacheHardDuration returns the profile cache hard eviction age as a Duration.
func (c *SessionConfig) ProfileCacheHardDuration() time.Duration {
	return time.Duration(c.ProfileCacheHard) * time.Second
}

// RefreshLeewayDuration returns the session refresh leeway as a Duration.
func (c *SessionConfig) RefreshLeewayDuration() time.Duration {
	return time.Duration(c.RefreshLeeway) * time.Second
}

// GetReadTimeout returns the local API read timeout as a Duration.
func (c *LocalAPIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the local API write timeout as a Duration.
func (c *LocalAPIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the local API idle timeout as a Duration.
func (c *LocalAPIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
