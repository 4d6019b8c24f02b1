package server

import (
	"context"
	"time"

	"edaconn/internal/relay"
	"edaconn/internal/transport"
)

const (
	peerPingTimeout  = 3 * time.Second
	peerFetchTimeout = 30 * time.Second
)

// wsPeer adapts a relay-announcing WebSocket client to the relay.Peer
// contract. One wsPeer is registered per tab-ready announcement.
type wsPeer struct {
	client *Client
}

func (p *wsPeer) Origin() string {
	return p.client.Origin()
}

// Ping asks the relay to prove it is alive and still serving its origin.
func (p *wsPeer) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, peerPingTimeout)
	defer cancel()

	reply, err := p.client.call(ctx, "tab-ping", nil)
	if err != nil {
		return err
	}
	if !reply.OK {
		return errPeerTimeout
	}
	// A relay that navigated away answers with a different origin; it is
	// no longer usable for this one.
	if reply.Origin != "" && relay.NormalizeOrigin(reply.Origin) != p.client.Origin() {
		return errOriginMoved
	}
	return nil
}

// Fetch relays one request through the peer. Requests for a different
// origin than the peer announced are refused before anything goes over
// the wire; the refusal is shaped like a failed response so callers
// handle it uniformly.
func (p *wsPeer) Fetch(ctx context.Context, url, method string, headers map[string]string, body string) (*transport.Response, error) {
	if relay.NormalizeOrigin(url) != p.client.Origin() {
		return &transport.Response{OK: false, Status: 0, Body: "origin mismatch"}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, peerFetchTimeout)
	defer cancel()

	reply, err := p.client.call(ctx, "tab-fetch", relayCallPayload{
		URL:     url,
		Method:  method,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return nil, err
	}

	return &transport.Response{OK: reply.OK, Status: reply.Status, Body: reply.Body}, nil
}
