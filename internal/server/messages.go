package server

import (
	"edaconn/internal/store"
)

// Message is the wire format for inbound client messages. One flat struct
// covers every command; handlers read the fields their type defines and
// ignore the rest. Replies to outbound relay calls (tab-ping, tab-fetch)
// arrive through the same struct, correlated by id.
type Message struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// connect, save-target, delete-target, fetch-client-secret
	TargetID     string               `json:"targetId,omitempty"`
	EdaURL       string               `json:"edaUrl,omitempty"`
	Username     string               `json:"username,omitempty"`
	Password     string               `json:"password,omitempty"`
	ClientSecret string               `json:"clientSecret,omitempty"`
	Target       *store.TargetProfile `json:"target,omitempty"`

	// request, and tab-fetch replies
	Path    string            `json:"path,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	URL     string            `json:"url,omitempty"`

	// tab-ready
	Origin string `json:"origin,omitempty"`

	// set-auto-login
	Enabled *bool `json:"enabled,omitempty"`

	// tab-ping and tab-fetch replies
	OK     bool `json:"ok,omitempty"`
	Status int  `json:"status,omitempty"`
}

// Outbound payloads. Each is flattened into an envelope that carries the
// reply type and the request id, so the status-as-string of a lifecycle
// message never collides with the status-as-code of a proxied response.

type resultPayload struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type statusPayload struct {
	Status         string `json:"status"`
	EdaURL         string `json:"edaUrl"`
	ActiveTargetID string `json:"activeTargetId"`
}

type targetsPayload struct {
	Targets []store.TargetProfile `json:"targets"`
}

type targetPayload struct {
	Target *store.TargetProfile `json:"target"`
}

type credentialsPayload struct {
	OK       bool   `json:"ok"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type secretPayload struct {
	OK           bool   `json:"ok"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Error        string `json:"error,omitempty"`
}

type transportTabPayload struct {
	Opened  bool `json:"opened"`
	Pending bool `json:"pending"`
}

type relayCallPayload struct {
	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}
