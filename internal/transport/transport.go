package transport

import (
	"context"
	"errors"
)

// ErrTLSCertificate is the distinguished sentinel surfaced when a direct
// fetch fails at the network level and no relay peer could serve the
// request. Its message is the one error string clients branch on; all
// other error strings are human-readable detail only.
var ErrTLSCertificate = errors.New("TLS_CERT_ERROR")

// Response is the outcome of an outbound HTTP call. HTTP error statuses
// are data (OK=false plus Status), never Go errors; a Go error from a
// strategy always means the call never completed at the protocol level.
type Response struct {
	OK     bool   `json:"ok"`
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// Request describes an outbound call. BaseURL is the connection target the
// request belongs to; the relay strategy uses its origin to locate a peer.
type Request struct {
	BaseURL string
	URL     string
	Method  string
	Headers map[string]string
	Body    string
}

// Strategy performs an outbound HTTP call one particular way.
type Strategy interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// Fallback is a strategy that may be unavailable: a (nil, nil) return
// means "no transport for this request here", distinct from a failure.
type Fallback interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}
