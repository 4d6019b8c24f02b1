package app

import (
	"fmt"

	"edaconn/internal/config"
	"edaconn/internal/relay"
	"edaconn/internal/server"
	"edaconn/internal/session"
	"edaconn/internal/store"
	"edaconn/internal/token"
	"edaconn/internal/transport"
)

// Services holds every long-lived component of the daemon, wired in
// dependency order. The transport chain is shared: token exchanges and
// proxied requests both go direct-first with relay fallback.
type Services struct {
	Config   config.Config
	Store    *store.Store
	Registry *relay.Registry
	Tokens   *token.Client
	Sessions *session.Manager
	Server   *server.Server
}

// InitializeServices builds the full service graph from configuration.
func InitializeServices(cfg config.Config) (*Services, error) {
	st, err := store.Open(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	registry := relay.NewRegistry(relay.BrowserOpener{})

	direct := transport.NewDirect()
	chain := transport.NewChain(direct, relay.NewStrategy(registry))

	tokens := token.NewClient(chain)
	sessions := session.NewManager(tokens, chain, st)

	srv := server.NewServer(cfg.Listen.Address(), sessions, st, tokens, registry)
	sessions.SetNotifier(srv)

	return &Services{
		Config:   cfg,
		Store:    st,
		Registry: registry,
		Tokens:   tokens,
		Sessions: sessions,
		Server:   srv,
	}, nil
}

// Close releases everything InitializeServices opened.
func (s *Services) Close() error {
	if s.Store != nil {
		return s.Store.Close()
	}
	return nil
}
