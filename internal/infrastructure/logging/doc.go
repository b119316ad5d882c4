// Package logging provides structured logging for the Workbench agent.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the whole agent.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting agent", "port", 7420)
//	logger.Error("backend unreachable", "error", err)
//
// # Security
//
// Never log tokens, passwords, or API keys. Sessions are logged by user
// id and expiry only, never by token contents.
package logging
