package session

// Status represents the connection lifecycle state of the session.
// Transitions: disconnected -> connecting -> {connected | error};
// connected -> disconnected (explicit or forced). Reconnecting to a
// different target always disconnects the prior one first.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Notifier receives session lifecycle signals. The message router
// implements it to broadcast state to connected clients and to keep
// them awake while a session is live.
type Notifier interface {
	// StatusChanged is called after every state transition.
	StatusChanged(status Status, edaURL, activeTargetID string)

	// Keepalive is called periodically while connected. It carries no
	// data and has no ordering contract; its sole job is liveness.
	Keepalive()
}
