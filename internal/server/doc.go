// Package server implements the WebSocket message router the browser
// clients talk to. Clients connect to /ws and exchange JSON frames:
// commands carry a type and an optional correlation id, replies flatten
// their payload next to the echoed id, and lifecycle changes go out as
// uncorrelated broadcasts.
//
// A client that announces an origin with a tab-ready frame doubles as a
// relay peer: the daemon forwards requests through it (tab-fetch) when
// direct TLS connections to that origin fail.
package server
