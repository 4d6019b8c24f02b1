package relay

import (
	"context"

	"edaconn/internal/transport"
)

// Strategy adapts the registry into the transport fallback: requests are
// relayed through a live peer for the target's origin. A (nil, nil)
// return means no usable peer exists, which callers treat as "fallback
// unavailable" rather than a fetch failure.
type Strategy struct {
	registry *Registry
}

// NewStrategy creates the relay transport strategy.
func NewStrategy(registry *Registry) *Strategy {
	return &Strategy{registry: registry}
}

// Fetch implements transport.Fallback.
func (s *Strategy) Fetch(ctx context.Context, req transport.Request) (*transport.Response, error) {
	origin := NormalizeOrigin(req.BaseURL)
	if origin == "" {
		return nil, nil
	}

	peer := s.registry.Lookup(origin)
	if peer == nil {
		peer = s.registry.Discover(ctx, origin)
		if peer == nil {
			return nil, nil
		}
	}

	resp, err := peer.Fetch(ctx, req.URL, req.Method, req.Headers, req.Body)
	if err == nil {
		return resp, nil
	}

	// Known peer failed: purge it and try to discover a different one
	// once before giving up.
	s.registry.Forget(origin)
	peer = s.registry.Discover(ctx, origin)
	if peer == nil {
		return nil, nil
	}

	resp, err = peer.Fetch(ctx, req.URL, req.Method, req.Headers, req.Body)
	if err != nil {
		return nil, nil
	}
	return resp, nil
}
