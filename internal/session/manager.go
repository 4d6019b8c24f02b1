package session

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"edaconn/pkg/logging"

	"edaconn/internal/relay"
	"edaconn/internal/store"
	"edaconn/internal/token"
	"edaconn/internal/transport"
)

const (
	// RefreshMargin is how long before actual expiry the access token is
	// refreshed.
	RefreshMargin = 30 * time.Second

	// DefaultKeepaliveInterval is the default period of the keepalive
	// signal while connected.
	DefaultKeepaliveInterval = 25 * time.Second
)

// Manager owns the single mutable session. All operations go through one
// mutex so every state transition is atomic; async work (token fetches,
// storage writes) happens outside the lock, so overlapping Connect calls
// can interleave and the last writer wins -- acceptable for a single-user
// interactive surface, see DESIGN.md.
//
// Invariant: status == connected implies an access token and an active
// target are held. Invariant: at most one target is active; activating a
// different target force-disconnects the prior one first.
type Manager struct {
	mu             sync.Mutex
	status         Status
	edaURL         string
	tok            *oauth2.Token // nil when no session tokens are held
	clientSecret   string
	activeTargetID string
	username       string
	password       string
	refreshTimer   *time.Timer
	keepaliveStop  chan struct{}

	tokens   *token.Client
	proxy    transport.Strategy
	store    *store.Store
	notifier Notifier

	now               func() time.Time
	keepaliveInterval time.Duration
}

// ManagerOption configures the manager.
type ManagerOption func(*Manager)

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithKeepaliveInterval overrides the keepalive period. Zero disables
// the keepalive entirely.
func WithKeepaliveInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		m.keepaliveInterval = interval
	}
}

// NewManager creates the session manager. proxy is the strategy used for
// proxied application requests (direct with relay fallback); token
// exchanges use the tokens client, which carries its own chain.
func NewManager(tokens *token.Client, proxy transport.Strategy, st *store.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		status:            StatusDisconnected,
		tokens:            tokens,
		proxy:             proxy,
		store:             st,
		now:               time.Now,
		keepaliveInterval: DefaultKeepaliveInterval,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// SetNotifier wires the lifecycle sink. Must be called before any
// operation that can transition state.
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	m.notifier = n
	m.mu.Unlock()
}

// Status returns the current status, base URL and active target id.
func (m *Manager) Status() (Status, string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.edaURL, m.activeTargetID
}

// Connect establishes a session for the given target using the password
// grant. A different active target is force-disconnected first. On
// failure the session is marked error with tokens and active target
// cleared -- never left half-connected.
func (m *Manager) Connect(ctx context.Context, targetID, edaURL, username, password, clientSecret string) error {
	if relay.NormalizeOrigin(edaURL) == "" {
		return relay.ErrInvalidURL
	}

	m.mu.Lock()
	priorActive := m.activeTargetID != "" && m.activeTargetID != targetID
	// Cancel timer and keepalive on every entry, not just on a target
	// switch: a stale timer must never fire into the connecting window.
	m.disconnectLocked()
	m.status = StatusConnecting
	m.edaURL = edaURL
	m.activeTargetID = targetID
	m.clientSecret = clientSecret
	m.mu.Unlock()

	if priorActive {
		m.clearPersistedSession()
	}
	m.persistStatus(StatusConnecting)
	m.broadcast()

	tr, err := m.tokens.FetchToken(ctx, edaURL, token.Realm, url.Values{
		"grant_type":    {"password"},
		"client_id":     {token.ClientID},
		"client_secret": {clientSecret},
		"username":      {username},
		"password":      {password},
		"scope":         {"openid"},
	})
	if err != nil {
		m.mu.Lock()
		m.status = StatusError
		m.tok = nil
		m.activeTargetID = ""
		m.mu.Unlock()
		m.persistStatus(StatusError)
		m.broadcast()
		logging.Warn("Session", "Connect to %s failed: %v", edaURL, err)
		return err
	}

	expiresAt := token.DecodeExpiry(tr.AccessToken)
	m.mu.Lock()
	m.status = StatusConnected
	m.tok = &oauth2.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       time.UnixMilli(expiresAt),
	}
	m.username = username
	m.password = password
	m.mu.Unlock()

	m.persistSession()
	m.scheduleRefresh()
	m.startKeepalive()
	m.broadcast()

	logging.Info("Session", "Connected to %s", edaURL)
	return nil
}

// Disconnect cancels the refresh timer and keepalive, resets the session
// to its disconnected defaults and clears all persisted session fields.
// Target profiles survive. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.disconnectLocked()
	m.mu.Unlock()

	m.clearPersistedSession()
	m.persistStatus(StatusDisconnected)
	m.broadcast()
}

// disconnectLocked resets in-memory state. Caller holds the mutex.
func (m *Manager) disconnectLocked() {
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	if m.keepaliveStop != nil {
		close(m.keepaliveStop)
		m.keepaliveStop = nil
	}
	m.status = StatusDisconnected
	m.edaURL = ""
	m.tok = nil
	m.clientSecret = ""
	m.activeTargetID = ""
	m.username = ""
	m.password = ""
}

// scheduleRefresh arms the single-shot refresh timer. Any previously
// armed timer is cancelled first, so exactly one timer is outstanding.
func (m *Manager) scheduleRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	if m.tok == nil {
		return
	}

	delay := refreshDelay(m.tok.Expiry.UnixMilli(), m.now())
	m.refreshTimer = time.AfterFunc(delay, func() {
		m.refreshAccessToken(context.Background())
	})
	logging.Debug("Session", "Scheduled token refresh in %s", delay)
}

// refreshDelay computes the timer delay: RefreshMargin before expiry,
// never negative. A past expiry yields an immediate refresh.
func refreshDelay(expiresAtMillis int64, now time.Time) time.Duration {
	delay := time.Duration(expiresAtMillis-now.UnixMilli())*time.Millisecond - RefreshMargin
	if delay < 0 {
		return 0
	}
	return delay
}

// refreshAccessToken performs one refresh-token grant. Missing refresh
// credentials or any failure are session-ending: a stale refresh token
// cannot usually be retried successfully, so the session fails closed.
func (m *Manager) refreshAccessToken(ctx context.Context) {
	m.mu.Lock()
	refreshToken := ""
	if m.tok != nil {
		refreshToken = m.tok.RefreshToken
	}
	clientSecret := m.clientSecret
	edaURL := m.edaURL
	m.mu.Unlock()

	if refreshToken == "" || clientSecret == "" {
		m.Disconnect()
		return
	}

	tr, err := m.tokens.FetchToken(ctx, edaURL, token.Realm, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {token.ClientID},
		"client_secret": {clientSecret},
		"refresh_token": {refreshToken},
	})
	if err != nil {
		logging.Warn("Session", "Token refresh failed, disconnecting: %v", err)
		m.Disconnect()
		return
	}

	expiresAt := token.DecodeExpiry(tr.AccessToken)
	m.mu.Lock()
	m.tok = &oauth2.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       time.UnixMilli(expiresAt),
	}
	m.mu.Unlock()

	m.setStored(store.KeyAccessToken, tr.AccessToken)
	m.setStored(store.KeyRefreshToken, tr.RefreshToken)
	if err := m.store.SetInt64(store.KeyExpiresAt, expiresAt); err != nil {
		logging.Error("Session", err, "Failed to persist token expiry")
	}
	m.scheduleRefresh()
}

// Restore reconstructs the session from persisted credentials on daemon
// start. Absent credentials leave the session disconnected. An unexpired
// access token restores directly; an expired one gets exactly one refresh
// attempt. Auto-login credentials are re-hydrated from the matching
// target profile, not from the session blob.
func (m *Manager) Restore(ctx context.Context) error {
	edaURL, _, err := m.store.GetString(store.KeyEdaURL)
	if err != nil {
		return err
	}
	clientSecret, _, err := m.store.GetString(store.KeyClientSecret)
	if err != nil {
		return err
	}
	accessToken, _, err := m.store.GetString(store.KeyAccessToken)
	if err != nil {
		return err
	}
	refreshToken, _, err := m.store.GetString(store.KeyRefreshToken)
	if err != nil {
		return err
	}
	if edaURL == "" || clientSecret == "" || accessToken == "" || refreshToken == "" {
		return nil
	}

	expiresAt, _, err := m.store.GetInt64(store.KeyExpiresAt)
	if err != nil {
		return err
	}
	activeTargetID, _, err := m.store.GetString(store.KeyActiveTargetID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.edaURL = edaURL
	m.clientSecret = clientSecret
	m.activeTargetID = activeTargetID
	m.tok = &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		Expiry:       time.UnixMilli(expiresAt),
	}
	m.mu.Unlock()

	if activeTargetID != "" {
		if target, ok, err := m.store.GetTarget(activeTargetID); err == nil && ok {
			m.mu.Lock()
			m.username = target.Username
			m.password = target.Password
			m.mu.Unlock()
		}
	}

	if m.now().UnixMilli() < expiresAt {
		m.mu.Lock()
		m.status = StatusConnected
		m.mu.Unlock()
		m.persistStatus(StatusConnected)
		m.scheduleRefresh()
		m.startKeepalive()
		m.broadcast()
		logging.Info("Session", "Restored session for %s", edaURL)
		return nil
	}

	// Access token already expired: one refresh decides the outcome.
	m.refreshAccessToken(ctx)

	m.mu.Lock()
	restored := m.tok != nil && m.tok.AccessToken != ""
	if restored {
		m.status = StatusConnected
	}
	m.mu.Unlock()

	if restored {
		m.persistStatus(StatusConnected)
		m.startKeepalive()
		m.broadcast()
		logging.Info("Session", "Restored session for %s after refresh", edaURL)
	}
	return nil
}

// DeleteTarget removes a saved profile, force-disconnecting first when it
// is the active one.
func (m *Manager) DeleteTarget(id string) error {
	m.mu.Lock()
	active := m.activeTargetID == id
	m.mu.Unlock()

	if active {
		m.Disconnect()
	}
	return m.store.DeleteTarget(id)
}

// Credentials returns the cached username/password for auto-login replay.
// Gated on the persisted autoLogin consent flag, which is off by default.
func (m *Manager) Credentials() (username, password string, ok bool) {
	enabled, err := m.store.GetBool(store.KeyAutoLogin)
	if err != nil || !enabled {
		return "", "", false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.username == "" || m.password == "" {
		return "", "", false
	}
	return m.username, m.password, true
}

// persistSession writes all durable session fields so that persisted
// state matches in-memory state. Individual key writes are not atomic as
// a group; each transition rewrites them all.
func (m *Manager) persistSession() {
	m.mu.Lock()
	edaURL := m.edaURL
	clientSecret := m.clientSecret
	activeTargetID := m.activeTargetID
	accessToken, refreshToken := "", ""
	var expiresAt int64
	if m.tok != nil {
		accessToken = m.tok.AccessToken
		refreshToken = m.tok.RefreshToken
		expiresAt = m.tok.Expiry.UnixMilli()
	}
	status := m.status
	m.mu.Unlock()

	m.setStored(store.KeyEdaURL, edaURL)
	m.setStored(store.KeyClientSecret, clientSecret)
	m.setStored(store.KeyAccessToken, accessToken)
	m.setStored(store.KeyRefreshToken, refreshToken)
	m.setStored(store.KeyActiveTargetID, activeTargetID)
	m.setStored(store.KeyConnectionStatus, string(status))
	if err := m.store.SetInt64(store.KeyExpiresAt, expiresAt); err != nil {
		logging.Error("Session", err, "Failed to persist token expiry")
	}
}

func (m *Manager) clearPersistedSession() {
	if err := m.store.DeleteKeys(store.SessionKeys...); err != nil {
		logging.Error("Session", err, "Failed to clear persisted session")
	}
}

func (m *Manager) persistStatus(status Status) {
	m.setStored(store.KeyConnectionStatus, string(status))
}

func (m *Manager) setStored(key, value string) {
	if err := m.store.SetString(key, value); err != nil {
		logging.Error("Session", err, "Failed to persist %s", key)
	}
}

// broadcast pushes the current state to the notifier. Never called while
// holding the mutex: the notifier may call back into the manager.
func (m *Manager) broadcast() {
	m.mu.Lock()
	n := m.notifier
	status := m.status
	edaURL := m.edaURL
	activeTargetID := m.activeTargetID
	m.mu.Unlock()

	if n != nil {
		n.StatusChanged(status, edaURL, activeTargetID)
	}
}

// startKeepalive starts the periodic liveness signal. No-op when already
// running or disabled.
func (m *Manager) startKeepalive() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.keepaliveInterval <= 0 || m.keepaliveStop != nil {
		return
	}
	stop := make(chan struct{})
	m.keepaliveStop = stop
	interval := m.keepaliveInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.mu.Lock()
				n := m.notifier
				m.mu.Unlock()
				if n != nil {
					n.Keepalive()
				}
			}
		}
	}()
}

// HandleRequest proxies an authenticated request to the connected target.
// Fails fast with a synthetic not-connected response when no session is
// live; otherwise injects the bearer token (overriding any caller-supplied
// Authorization header) and performs the call with relay fallback.
func (m *Manager) HandleRequest(ctx context.Context, path, method string, headers map[string]string, body string) *transport.Response {
	m.mu.Lock()
	status := m.status
	accessToken := ""
	if m.tok != nil {
		accessToken = m.tok.AccessToken
	}
	edaURL := m.edaURL
	m.mu.Unlock()

	if status != StatusConnected || accessToken == "" {
		return &transport.Response{OK: false, Status: 0, Body: "not connected to EDA"}
	}

	requestURL := strings.TrimRight(edaURL, "/") + path
	hdrs := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		hdrs[k] = v
	}
	hdrs["Authorization"] = "Bearer " + accessToken

	resp, err := m.proxy.Fetch(ctx, transport.Request{
		BaseURL: edaURL,
		URL:     requestURL,
		Method:  method,
		Headers: hdrs,
		Body:    body,
	})
	if err != nil {
		return &transport.Response{OK: false, Status: 0, Body: err.Error()}
	}
	return resp
}
