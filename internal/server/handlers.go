package server

import (
	"context"
	"errors"

	"edaconn/pkg/logging"

	"edaconn/internal/relay"
	"edaconn/internal/store"
	"edaconn/internal/transport"
)

// handleConnect establishes a session for a target. Missing target ids
// are derived from the URL, so ad-hoc connects and saved-profile
// connects take the same path.
func (s *Server) handleConnect(ctx context.Context, c *Client, msg *Message) {
	targetID := msg.TargetID
	if targetID == "" {
		targetID = store.TargetID(msg.EdaURL)
	}

	err := s.sessions.Connect(ctx, targetID, msg.EdaURL, msg.Username, msg.Password, msg.ClientSecret)
	if err != nil {
		c.sendTyped("connect-result", msg.ID, resultPayload{OK: false, Error: errorString(err)})
		return
	}
	c.sendTyped("connect-result", msg.ID, resultPayload{OK: true})
}

func (s *Server) handleDisconnect(ctx context.Context, c *Client, msg *Message) {
	s.sessions.Disconnect()
	c.sendTyped("disconnect-result", msg.ID, resultPayload{OK: true})
}

func (s *Server) handleGetStatus(ctx context.Context, c *Client, msg *Message) {
	status, edaURL, activeTargetID := s.sessions.Status()
	c.sendTyped("status", msg.ID, statusPayload{
		Status:         string(status),
		EdaURL:         edaURL,
		ActiveTargetID: activeTargetID,
	})
}

func (s *Server) handleGetTargets(ctx context.Context, c *Client, msg *Message) {
	targets, err := s.store.Targets()
	if err != nil {
		c.sendTyped("error", msg.ID, resultPayload{OK: false, Error: errorString(err)})
		return
	}
	c.sendTyped("targets", msg.ID, targetsPayload{Targets: targets})
}

// handleSaveTarget upserts a profile. Accepts either a nested target
// object or the flat credential fields; the id is derived from the URL
// when absent so the same URL always maps to the same profile.
func (s *Server) handleSaveTarget(ctx context.Context, c *Client, msg *Message) {
	target := msg.Target
	if target == nil {
		target = &store.TargetProfile{
			ID:           msg.TargetID,
			EdaURL:       msg.EdaURL,
			Username:     msg.Username,
			Password:     msg.Password,
			ClientSecret: msg.ClientSecret,
		}
	}
	if target.ID == "" {
		target.ID = store.TargetID(target.EdaURL)
	}

	if err := s.store.SaveTarget(*target); err != nil {
		c.sendTyped("error", msg.ID, resultPayload{OK: false, Error: errorString(err)})
		return
	}
	c.sendTyped("target-saved", msg.ID, targetPayload{Target: target})
}

func (s *Server) handleDeleteTarget(ctx context.Context, c *Client, msg *Message) {
	if err := s.sessions.DeleteTarget(msg.TargetID); err != nil {
		c.sendTyped("error", msg.ID, resultPayload{OK: false, Error: errorString(err)})
		return
	}
	c.sendTyped("target-deleted", msg.ID, resultPayload{OK: true})
}

// handleGetCredentials replays stored credentials for auto-login. The
// reply is ok=false unless the user has enabled the consent flag.
func (s *Server) handleGetCredentials(ctx context.Context, c *Client, msg *Message) {
	username, password, ok := s.sessions.Credentials()
	c.sendTyped("credentials", msg.ID, credentialsPayload{
		OK:       ok,
		Username: username,
		Password: password,
	})
}

// handleSetAutoLogin records the user's explicit consent to credential
// autofill. get-credentials answers ok=false until this flag is on.
func (s *Server) handleSetAutoLogin(ctx context.Context, c *Client, msg *Message) {
	if msg.Enabled == nil {
		c.sendTyped("error", msg.ID, resultPayload{OK: false, Error: "set-auto-login requires enabled"})
		return
	}
	if err := s.store.SetBool(store.KeyAutoLogin, *msg.Enabled); err != nil {
		c.sendTyped("error", msg.ID, resultPayload{OK: false, Error: errorString(err)})
		return
	}
	c.sendTyped("auto-login-set", msg.ID, resultPayload{OK: true})
}

func (s *Server) handleFetchClientSecret(ctx context.Context, c *Client, msg *Message) {
	secret, err := s.tokens.FetchClientSecret(ctx, msg.EdaURL, msg.Username, msg.Password)
	if err != nil {
		c.sendTyped("client-secret", msg.ID, secretPayload{OK: false, Error: errorString(err)})
		return
	}
	c.sendTyped("client-secret", msg.ID, secretPayload{OK: true, ClientSecret: secret})
}

// handleRequest proxies an authenticated application request through the
// session. The reply mirrors the upstream response; transport failures
// come back as ok=false with status 0.
func (s *Server) handleRequest(ctx context.Context, c *Client, msg *Message) {
	resp := s.sessions.HandleRequest(ctx, msg.Path, msg.Method, msg.Headers, msg.Body)
	c.sendTyped("response", msg.ID, resp)
}

// handleTabReady registers the client as a relay peer for its announced
// origin. Re-announcing replaces the previous registration.
func (s *Server) handleTabReady(ctx context.Context, c *Client, msg *Message) {
	origin := relay.NormalizeOrigin(msg.Origin)
	if origin == "" {
		logging.Warn("Server", "Client %s announced unusable origin %q", c.id, msg.Origin)
		c.sendTyped("tab-ready-result", msg.ID, resultPayload{OK: false, Error: "unusable origin"})
		return
	}

	c.mu.Lock()
	prior := c.peer
	c.mu.Unlock()
	if prior != nil {
		s.registry.Unregister(prior)
	}

	c.setOrigin(origin)
	peer := &wsPeer{client: c}

	c.mu.Lock()
	c.peer = peer
	c.mu.Unlock()

	s.registry.Register(peer)
	logging.Info("Server", "Relay ready for %s", origin)
	c.sendTyped("tab-ready-result", msg.ID, resultPayload{OK: true})
}

// handleOpenTransportTab makes sure a relay exists for the given URL's
// origin, launching a browser when necessary.
func (s *Server) handleOpenTransportTab(ctx context.Context, c *Client, msg *Message) {
	opened, pending, err := s.registry.Ensure(ctx, msg.EdaURL)
	if err != nil {
		c.sendTyped("error", msg.ID, resultPayload{OK: false, Error: errorString(err)})
		return
	}
	c.sendTyped("transport-tab", msg.ID, transportTabPayload{Opened: opened, Pending: pending})
}

// errorString maps an error to its wire form. The TLS sentinel keeps its
// exact literal so clients can branch on it; everything else is detail.
func errorString(err error) string {
	if errors.Is(err, transport.ErrTLSCertificate) {
		return transport.ErrTLSCertificate.Error()
	}
	return err.Error()
}
