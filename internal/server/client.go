package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"edaconn/pkg/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// sendBuffer bounds the per-client outbound queue. A client that
	// cannot drain it loses messages rather than blocking the rest.
	sendBuffer = 256
)

var (
	errPeerTimeout  = errors.New("relay peer did not answer")
	errOriginMoved  = errors.New("relay peer navigated to a different origin")
	errClientClosed = errors.New("client connection closed")
)

// Client is one WebSocket connection: a popup, an application page or a
// relay. A client becomes a relay peer by announcing its origin with a
// tab-ready message; until then origin is empty.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	server *Server

	mu      sync.Mutex
	origin  string
	peer    *wsPeer // set once the client announces itself as a relay
	closed  bool
	pending map[string]chan *Message
}

func newClient(conn *websocket.Conn, server *Server) *Client {
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		server:  server,
		pending: make(map[string]chan *Message),
	}
}

// Origin returns the announced relay origin, empty for ordinary clients.
func (c *Client) Origin() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.origin
}

func (c *Client) setOrigin(origin string) {
	c.mu.Lock()
	c.origin = origin
	c.mu.Unlock()
}

// enqueue queues a raw frame for delivery, dropping it when the client
// is too slow to drain its buffer or already gone. Late replies are
// common: a handler may finish long after its client disconnected.
func (c *Client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		logging.Warn("Server", "Dropping frame for slow client %s", c.id)
	}
}

// close marks the client dead and closes the send channel. The mutex
// serializes this against enqueue, so no frame can hit a closed channel.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// sendTyped flattens payload into an envelope carrying type and id and
// queues it. payload may be nil for bare acknowledgements.
func (c *Client) sendTyped(msgType, id string, payload any) {
	envelope := map[string]any{"type": msgType}
	if id != "" {
		envelope["id"] = id
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			logging.Error("Server", err, "Failed to marshal %s payload", msgType)
			return
		}
		fields := map[string]any{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			logging.Error("Server", err, "Failed to flatten %s payload", msgType)
			return
		}
		for k, v := range fields {
			envelope[k] = v
		}
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		logging.Error("Server", err, "Failed to marshal %s envelope", msgType)
		return
	}
	c.enqueue(data)
}

// call sends a correlated request to the client and waits for the reply
// with the matching id. Used for the relay choreography (tab-ping,
// tab-fetch); ordinary commands never wait.
func (c *Client) call(ctx context.Context, msgType string, payload any) (*Message, error) {
	id := uuid.NewString()
	ch := make(chan *Message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errClientClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.sendTyped(msgType, id, payload)

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolve routes an inbound message to a waiting call. Reports whether
// the message was consumed as a reply.
func (c *Client) resolve(msg *Message) bool {
	if msg.ID == "" {
		return false
	}

	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	ch <- msg
	return true
}

// readPump reads frames until the connection dies. Command handling runs
// in its own goroutine per message: a relay fallback triggered by one
// command may need this same pump free to deliver the peer's reply.
func (c *Client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug("Server", "Client %s read error: %v", c.id, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Warn("Server", "Client %s sent unparseable frame: %v", c.id, err)
			continue
		}

		if c.resolve(&msg) {
			continue
		}
		go c.server.dispatch(c, &msg)
	}
}

// writePump serializes all writes to the connection and keeps it alive
// with protocol-level pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
