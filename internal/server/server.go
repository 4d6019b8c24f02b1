package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"edaconn/pkg/logging"

	"edaconn/internal/relay"
	"edaconn/internal/session"
	"edaconn/internal/store"
	"edaconn/internal/token"
)

// handlerTimeout bounds a single command, including any token exchange
// or relayed fetch it triggers.
const handlerTimeout = 60 * time.Second

// Server is the WebSocket message router. Clients connect to /ws and
// exchange JSON frames; the server dispatches commands to the session
// manager, persistence and relay registry, and pushes lifecycle
// broadcasts back out. It is the session.Notifier implementation.
type Server struct {
	addr     string
	sessions *session.Manager
	store    *store.Store
	tokens   *token.Client
	registry *relay.Registry

	upgrader websocket.Upgrader
	handlers map[string]func(context.Context, *Client, *Message)

	mu      sync.RWMutex
	clients map[*Client]bool

	httpServer *http.Server
}

// NewServer creates the message router listening on addr.
func NewServer(addr string, sessions *session.Manager, st *store.Store, tokens *token.Client, registry *relay.Registry) *Server {
	s := &Server{
		addr:     addr,
		sessions: sessions,
		store:    st,
		tokens:   tokens,
		registry: registry,
		clients:  make(map[*Client]bool),
		upgrader: websocket.Upgrader{
			// The daemon binds to localhost; browser clients connect
			// cross-origin from extension and application pages.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.handlers = map[string]func(context.Context, *Client, *Message){
		"connect":             s.handleConnect,
		"disconnect":          s.handleDisconnect,
		"get-status":          s.handleGetStatus,
		"get-targets":         s.handleGetTargets,
		"save-target":         s.handleSaveTarget,
		"delete-target":       s.handleDeleteTarget,
		"get-credentials":     s.handleGetCredentials,
		"set-auto-login":      s.handleSetAutoLogin,
		"fetch-client-secret": s.handleFetchClientSecret,
		"request":             s.handleRequest,
		"tab-ready":           s.handleTabReady,
		"open-transport-tab":  s.handleOpenTransportTab,
	}

	return s
}

// Handler returns the HTTP handler serving the WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start begins serving and blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	logging.Info("Server", "Listening on %s", s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the listener and closes all client connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for client := range s.clients {
		client.conn.Close()
	}
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, edaURL, _ := s.sessions.Status()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": string(status),
		"edaUrl": edaURL,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("Server", "WebSocket upgrade failed: %v", err)
		return
	}

	client := newClient(conn, s)

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()

	go client.writePump()
	go client.readPump()

	// Every new client immediately learns the current session state.
	status, edaURL, activeTargetID := s.sessions.Status()
	client.sendTyped("status-update", "", statusPayload{
		Status:         string(status),
		EdaURL:         edaURL,
		ActiveTargetID: activeTargetID,
	})
}

func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()

	c.close()

	c.mu.Lock()
	peer := c.peer
	c.mu.Unlock()
	if peer != nil {
		s.registry.Unregister(peer)
	}
}

// ClientCount reports the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// dispatch routes one inbound command. Unknown types get an error reply
// when they carry an id and are dropped otherwise.
func (s *Server) dispatch(c *Client, msg *Message) {
	handler, ok := s.handlers[msg.Type]
	if !ok {
		logging.Warn("Server", "Unknown message type %q from client %s", msg.Type, c.id)
		if msg.ID != "" {
			c.sendTyped("error", msg.ID, resultPayload{OK: false, Error: "unknown message type: " + msg.Type})
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	handler(ctx, c, msg)
}

// broadcast sends a frame to every connected client.
func (s *Server) broadcast(msgType string, payload any) {
	envelope := map[string]any{"type": msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			logging.Error("Server", err, "Failed to marshal %s broadcast", msgType)
			return
		}
		fields := map[string]any{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			logging.Error("Server", err, "Failed to flatten %s broadcast", msgType)
			return
		}
		for k, v := range fields {
			envelope[k] = v
		}
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		logging.Error("Server", err, "Failed to marshal %s broadcast", msgType)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.clients {
		client.enqueue(data)
	}
}

// StatusChanged implements session.Notifier.
func (s *Server) StatusChanged(status session.Status, edaURL, activeTargetID string) {
	s.broadcast("status-update", statusPayload{
		Status:         string(status),
		EdaURL:         edaURL,
		ActiveTargetID: activeTargetID,
	})
}

// Keepalive implements session.Notifier. The frame carries no data; its
// delivery is what keeps event-driven clients from being suspended.
func (s *Server) Keepalive() {
	s.broadcast("keepalive", nil)
}
