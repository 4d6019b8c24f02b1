// Package logging provides a structured logging system for edaconn with
// unified log handling and level filtering.
//
// The package is a thin layer over Go's standard slog package. Every log
// entry carries a subsystem identifier (Bootstrap, Config, Session,
// Transport, Relay, Token, Server, Store) so that output from the daemon
// can be filtered per concern.
//
// Usage:
//
//	logging.Init(logging.LevelInfo, os.Stdout)
//
//	logging.Info("Bootstrap", "Daemon starting up")
//	logging.Debug("Config", "Loaded configuration from %s", configPath)
//	logging.Error("Store", err, "Failed to open storage")
//
// Token and credential values must never be logged. Callers log URLs,
// origins and statuses only.
package logging
