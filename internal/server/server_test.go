package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edaconn/internal/relay"
	"edaconn/internal/session"
	"edaconn/internal/store"
	"edaconn/internal/token"
	"edaconn/internal/transport"
)

type testHarness struct {
	server   *Server
	registry *relay.Registry
	http     *httptest.Server
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry := relay.NewRegistry(nil)
	direct := transport.NewDirect()
	tokens := token.NewClient(direct)
	sessions := session.NewManager(tokens, direct, st, session.WithKeepaliveInterval(0))

	s := NewServer("localhost:0", sessions, st, tokens, registry)
	sessions.SetNotifier(s)

	httpServer := httptest.NewServer(s.Handler())
	t.Cleanup(httpServer.Close)

	return &testHarness{server: s, registry: registry, http: httpServer}
}

func (h *testHarness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// awaitType reads frames until one of the wanted type arrives, skipping
// broadcasts interleaved with replies.
func awaitType(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["type"] == msgType {
			return frame
		}
	}
	t.Fatalf("no %s frame arrived", msgType)
	return nil
}

func send(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

func TestNewClientReceivesStatusSnapshot(t *testing.T) {
	h := newTestHarness(t)
	conn := h.dial(t)

	frame := awaitType(t, conn, "status-update")
	assert.Equal(t, "disconnected", frame["status"])
}

func TestGetStatusRoundTrip(t *testing.T) {
	h := newTestHarness(t)
	conn := h.dial(t)

	send(t, conn, map[string]any{"type": "get-status", "id": "req-1"})

	frame := awaitType(t, conn, "status")
	assert.Equal(t, "req-1", frame["id"])
	assert.Equal(t, "disconnected", frame["status"])
	assert.Equal(t, "", frame["edaUrl"])
}

func TestTargetLifecycle(t *testing.T) {
	h := newTestHarness(t)
	conn := h.dial(t)

	send(t, conn, map[string]any{
		"type":     "save-target",
		"id":       "req-1",
		"edaUrl":   "https://eda.example:9443",
		"username": "admin",
	})
	saved := awaitType(t, conn, "target-saved")
	target, ok := saved["target"].(map[string]any)
	require.True(t, ok)
	id, _ := target["id"].(string)
	assert.NotEmpty(t, id, "id derived from the URL when absent")
	assert.Equal(t, store.TargetID("https://eda.example:9443"), id)

	send(t, conn, map[string]any{"type": "get-targets", "id": "req-2"})
	listed := awaitType(t, conn, "targets")
	targets, ok := listed["targets"].([]any)
	require.True(t, ok)
	require.Len(t, targets, 1)

	send(t, conn, map[string]any{"type": "delete-target", "id": "req-3", "targetId": id})
	awaitType(t, conn, "target-deleted")

	send(t, conn, map[string]any{"type": "get-targets", "id": "req-4"})
	listed = awaitType(t, conn, "targets")
	assert.Empty(t, listed["targets"])
}

func TestRequestWhileDisconnected(t *testing.T) {
	h := newTestHarness(t)
	conn := h.dial(t)

	send(t, conn, map[string]any{
		"type":   "request",
		"id":     "req-1",
		"path":   "/api/v1/things",
		"method": "GET",
	})

	frame := awaitType(t, conn, "response")
	assert.Equal(t, "req-1", frame["id"])
	assert.Equal(t, false, frame["ok"])
	assert.Equal(t, float64(0), frame["status"])
	assert.Contains(t, frame["body"], "not connected")
}

func TestCredentialsDeniedWithoutConsent(t *testing.T) {
	h := newTestHarness(t)
	conn := h.dial(t)

	send(t, conn, map[string]any{"type": "get-credentials", "id": "req-1"})

	frame := awaitType(t, conn, "credentials")
	assert.Equal(t, false, frame["ok"])
	assert.Nil(t, frame["username"])
}

func TestSetAutoLoginEnablesCredentialReplay(t *testing.T) {
	h := newTestHarness(t)
	conn := h.dial(t)

	send(t, conn, map[string]any{"type": "set-auto-login", "id": "req-1", "enabled": true})
	frame := awaitType(t, conn, "auto-login-set")
	assert.Equal(t, true, frame["ok"])

	// Still no credentials: consent is necessary but a live session with
	// cached credentials is too.
	send(t, conn, map[string]any{"type": "get-credentials", "id": "req-2"})
	frame = awaitType(t, conn, "credentials")
	assert.Equal(t, false, frame["ok"])
}

func TestUnknownTypeGetsErrorReply(t *testing.T) {
	h := newTestHarness(t)
	conn := h.dial(t)

	send(t, conn, map[string]any{"type": "self-destruct", "id": "req-1"})

	frame := awaitType(t, conn, "error")
	assert.Equal(t, "req-1", frame["id"])
	assert.Contains(t, frame["error"], "unknown message type")
}

func TestStatusChangedBroadcasts(t *testing.T) {
	h := newTestHarness(t)
	conn := h.dial(t)
	awaitType(t, conn, "status-update") // initial snapshot

	h.server.StatusChanged(session.StatusConnected, "https://eda.example", "target-1")

	frame := awaitType(t, conn, "status-update")
	assert.Equal(t, "connected", frame["status"])
	assert.Equal(t, "https://eda.example", frame["edaUrl"])
	assert.Equal(t, "target-1", frame["activeTargetId"])
}

func TestKeepaliveBroadcasts(t *testing.T) {
	h := newTestHarness(t)
	conn := h.dial(t)
	awaitType(t, conn, "status-update")

	h.server.Keepalive()

	frame := awaitType(t, conn, "keepalive")
	assert.Equal(t, "keepalive", frame["type"])
}

func TestTabReadyRegistersPeer(t *testing.T) {
	h := newTestHarness(t)
	conn := h.dial(t)

	send(t, conn, map[string]any{"type": "tab-ready", "origin": "HTTPS://EDA.Example:9443"})

	require.Eventually(t, func() bool {
		return h.registry.Lookup("https://eda.example:9443") != nil
	}, 2*time.Second, 10*time.Millisecond, "origin is normalized before registration")
}

func TestPeerFetchRefusesForeignOrigin(t *testing.T) {
	h := newTestHarness(t)
	conn := h.dial(t)
	awaitType(t, conn, "status-update")

	send(t, conn, map[string]any{"type": "tab-ready", "origin": "https://eda.example"})
	awaitType(t, conn, "tab-ready-result")
	var peer relay.Peer
	require.Eventually(t, func() bool {
		peer = h.registry.Lookup("https://eda.example")
		return peer != nil
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := peer.Fetch(context.Background(), "https://other.example/api", "GET", nil, "")
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, 0, resp.Status)
	assert.Equal(t, "origin mismatch", resp.Body)

	// The refusal happened before the wire: no tab-fetch frame reaches
	// the relay client.
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var frame map[string]any
	err = conn.ReadJSON(&frame)
	require.Error(t, err, "no frame expected, got %v", frame)
}

func TestPeerFetchRoundTrip(t *testing.T) {
	h := newTestHarness(t)
	conn := h.dial(t)
	awaitType(t, conn, "status-update")

	send(t, conn, map[string]any{"type": "tab-ready", "origin": "https://eda.example"})
	awaitType(t, conn, "tab-ready-result")
	var peer relay.Peer
	require.Eventually(t, func() bool {
		peer = h.registry.Lookup("https://eda.example")
		return peer != nil
	}, 2*time.Second, 10*time.Millisecond)

	// Play the relay side: answer the forwarded fetch.
	go func() {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame["type"] != "tab-fetch" {
			return
		}
		conn.WriteJSON(map[string]any{
			"type":   "tab-fetch-result",
			"id":     frame["id"],
			"ok":     true,
			"status": 200,
			"body":   `{"answer":42}`,
		})
	}()

	resp, err := peer.Fetch(context.Background(), "https://eda.example/api/v1/things", "GET",
		map[string]string{"Authorization": "Bearer at"}, "")
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, `{"answer":42}`, resp.Body)
}

func TestPeerPing(t *testing.T) {
	h := newTestHarness(t)
	conn := h.dial(t)
	awaitType(t, conn, "status-update")

	send(t, conn, map[string]any{"type": "tab-ready", "origin": "https://eda.example"})
	awaitType(t, conn, "tab-ready-result")
	var peer relay.Peer
	require.Eventually(t, func() bool {
		peer = h.registry.Lookup("https://eda.example")
		return peer != nil
	}, 2*time.Second, 10*time.Millisecond)

	go func() {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame["type"] != "tab-ping" {
			return
		}
		conn.WriteJSON(map[string]any{
			"type":   "tab-ping-result",
			"id":     frame["id"],
			"ok":     true,
			"origin": "https://eda.example",
		})
	}()

	assert.NoError(t, peer.Ping(context.Background()))
}

func TestPeerPingDetectsOriginMove(t *testing.T) {
	h := newTestHarness(t)
	conn := h.dial(t)
	awaitType(t, conn, "status-update")

	send(t, conn, map[string]any{"type": "tab-ready", "origin": "https://eda.example"})
	awaitType(t, conn, "tab-ready-result")
	var peer relay.Peer
	require.Eventually(t, func() bool {
		peer = h.registry.Lookup("https://eda.example")
		return peer != nil
	}, 2*time.Second, 10*time.Millisecond)

	go func() {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		conn.WriteJSON(map[string]any{
			"type":   "tab-ping-result",
			"id":     frame["id"],
			"ok":     true,
			"origin": "https://somewhere-else.example",
		})
	}()

	assert.ErrorIs(t, peer.Ping(context.Background()), errOriginMoved)
}

func TestLateTrafficToDisconnectedClientIsDropped(t *testing.T) {
	h := newTestHarness(t)
	conn := h.dial(t)

	send(t, conn, map[string]any{"type": "tab-ready", "origin": "https://eda.example"})
	var peer relay.Peer
	require.Eventually(t, func() bool {
		peer = h.registry.Lookup("https://eda.example")
		return peer != nil
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return h.server.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// The refresh timer can still route through a peer whose client just
	// went away. That must surface as an error, never bring the daemon
	// down.
	_, err := peer.Fetch(context.Background(), "https://eda.example/api", "GET", nil, "")
	assert.ErrorIs(t, err, errClientClosed)
	assert.ErrorIs(t, peer.Ping(context.Background()), errClientClosed)

	// Late handler replies are dropped the same way.
	wp, ok := peer.(*wsPeer)
	require.True(t, ok)
	wp.client.sendTyped("status-update", "", statusPayload{Status: "disconnected"})
}

func TestDisconnectedPeerIsUnregistered(t *testing.T) {
	h := newTestHarness(t)
	conn := h.dial(t)

	send(t, conn, map[string]any{"type": "tab-ready", "origin": "https://eda.example"})
	require.Eventually(t, func() bool {
		return h.registry.Lookup("https://eda.example") != nil
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return h.registry.Lookup("https://eda.example") == nil && h.server.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
