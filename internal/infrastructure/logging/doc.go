// Package logging provides structured logging for ringbridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Per-component child loggers
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, or a file path
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	engine.SetLogger(logger.Component("engine"))
//	logger.Error("failed to connect", "error", err)
//
// # Security
//
// Attributes named token, refresh_token, access_token, password or
// authorization are replaced with [REDACTED] before they are written.
package logging
