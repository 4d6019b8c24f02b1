package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"edaconn/pkg/logging"

	"edaconn/internal/transport"
)

// ReopenCooldown is how long after launching a browser for an origin the
// registry refuses to launch another one. Certificate acceptance takes a
// moment; reopening inside the window would spawn a storm of windows
// while the user is mid-click-through.
const ReopenCooldown = 15 * time.Second

// Peer is a connected relay capable of fetching within its own origin.
// An entry in the registry is evidence, not a guarantee: liveness must be
// reverified with Ping before use.
type Peer interface {
	// Origin is the scheme://host[:port] the peer announced for itself.
	Origin() string

	// Ping verifies the peer is still alive and serving its origin.
	Ping(ctx context.Context) error

	// Fetch performs the request in the peer's network context.
	Fetch(ctx context.Context, url, method string, headers map[string]string, body string) (*transport.Response, error)
}

// ErrInvalidURL is returned by Ensure for URLs with no usable origin.
var ErrInvalidURL = errors.New("invalid EDA URL")

// Registry tracks, per origin, which relay peers exist and which one is
// currently trusted to serve requests. Peers announce themselves on
// connect; the registry self-heals on failed pings by purging the stale
// entry and rediscovering among the remaining candidates.
type Registry struct {
	mu       sync.RWMutex
	peers    map[string][]Peer    // all announced peers per origin
	active   map[string]Peer      // chosen peer per origin
	openedAt map[string]time.Time // when we last launched a browser per origin

	opener Opener
	group  singleflight.Group
	now    func() time.Time
}

// RegistryOption configures the registry.
type RegistryOption func(*Registry)

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates a relay registry. opener may be nil when the
// environment has no way to launch a browser.
func NewRegistry(opener Opener, opts ...RegistryOption) *Registry {
	r := &Registry{
		peers:    make(map[string][]Peer),
		active:   make(map[string]Peer),
		openedAt: make(map[string]time.Time),
		opener:   opener,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register records a peer that announced readiness for its origin.
// The newest announcement wins the active slot.
func (r *Registry) Register(p Peer) {
	origin := p.Origin()
	if origin == "" {
		return
	}

	r.mu.Lock()
	r.peers[origin] = append(r.peers[origin], p)
	r.active[origin] = p
	r.mu.Unlock()

	logging.Debug("Relay", "Registered relay peer for %s", origin)
}

// Unregister removes a peer, e.g. when its connection closes.
func (r *Registry) Unregister(p Peer) {
	origin := p.Origin()
	if origin == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := r.peers[origin]
	for i, candidate := range candidates {
		if candidate == p {
			r.peers[origin] = append(candidates[:i], candidates[i+1:]...)
			break
		}
	}
	if len(r.peers[origin]) == 0 {
		delete(r.peers, origin)
	}
	if r.active[origin] == p {
		delete(r.active, origin)
	}
}

// Lookup returns the active peer for an origin, if any.
func (r *Registry) Lookup(origin string) Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[origin]
}

// Forget drops the active peer for an origin without unregistering it as
// a discovery candidate.
func (r *Registry) Forget(origin string) {
	r.mu.Lock()
	delete(r.active, origin)
	r.mu.Unlock()
}

// Discover pings candidate peers for the origin until one answers, makes
// it active and returns it. Concurrent discoveries for the same origin
// are deduplicated. Returns nil when no peer answers.
func (r *Registry) Discover(ctx context.Context, origin string) Peer {
	result, _, _ := r.group.Do(origin, func() (interface{}, error) {
		r.mu.RLock()
		candidates := append([]Peer(nil), r.peers[origin]...)
		r.mu.RUnlock()

		for _, candidate := range candidates {
			if err := candidate.Ping(ctx); err != nil {
				continue
			}
			r.mu.Lock()
			r.active[origin] = candidate
			r.mu.Unlock()
			return candidate, nil
		}
		return nil, nil
	})

	if p, ok := result.(Peer); ok {
		return p
	}
	return nil
}

// Ensure makes sure a live relay exists for the base URL's origin.
// A live known peer is a no-op. Any launch younger than ReopenCooldown
// reports pending without reopening, whether or not the relay has
// announced itself yet. Otherwise a stale active entry is purged and a
// browser is launched at the origin root.
func (r *Registry) Ensure(ctx context.Context, baseURL string) (opened, pending bool, err error) {
	origin := NormalizeOrigin(baseURL)
	if origin == "" {
		return false, false, ErrInvalidURL
	}

	if known := r.Lookup(origin); known != nil {
		if known.Ping(ctx) == nil {
			return false, false, nil
		}
		r.Forget(origin)
	}

	// The cooldown covers the gap between launching a browser and the
	// relay page connecting back. Repeated calls in that window must not
	// spawn more windows while the user is mid-certificate-acceptance.
	r.mu.RLock()
	openedAt := r.openedAt[origin]
	r.mu.RUnlock()
	if r.now().Sub(openedAt) < ReopenCooldown {
		return false, true, nil
	}

	if r.opener == nil {
		return false, false, errors.New("no way to open a transport context")
	}
	if err := r.opener.Open(origin + "/"); err != nil {
		return false, false, err
	}

	r.mu.Lock()
	r.openedAt[origin] = r.now()
	r.mu.Unlock()

	logging.Info("Relay", "Opened browser for %s to establish a relay", origin)
	return true, false, nil
}
