// Package app bootstraps and runs the edaconn daemon: it loads
// configuration, initializes logging and persistence, wires the
// transport chain and session manager together and serves the
// WebSocket endpoint until shutdown.
package app
