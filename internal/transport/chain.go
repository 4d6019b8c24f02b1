package transport

import (
	"context"

	"edaconn/pkg/logging"
)

// Chain tries the direct strategy first and falls back to the relay on
// network-level failure. When the fallback is also unavailable it fails
// with ErrTLSCertificate so callers can prompt the user to open and trust
// the target in a browser.
type Chain struct {
	direct   Strategy
	fallback Fallback
}

// NewChain builds the fallback chain. fallback may be nil, in which case
// any direct failure surfaces as ErrTLSCertificate.
func NewChain(direct Strategy, fallback Fallback) *Chain {
	return &Chain{direct: direct, fallback: fallback}
}

// Fetch implements Strategy.
func (c *Chain) Fetch(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.direct.Fetch(ctx, req)
	if err == nil {
		return resp, nil
	}

	logging.Debug("Transport", "Direct fetch failed for %s, trying relay: %v", req.URL, err)

	if c.fallback != nil {
		fresp, ferr := c.fallback.Fetch(ctx, req)
		if ferr == nil && fresp != nil {
			return fresp, nil
		}
		if ferr != nil {
			logging.Debug("Transport", "Relay fallback failed for %s: %v", req.URL, ferr)
		}
	}

	return nil, ErrTLSCertificate
}
