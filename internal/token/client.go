package token

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"edaconn/internal/transport"
)

const (
	// ProxyPath is the fixed EDA HTTP proxy prefix in front of Keycloak.
	ProxyPath = "/core/httpproxy/v1/keycloak"

	// Realm is the application realm tokens are issued under.
	Realm = "eda"

	// ClientID is the OAuth client the application authenticates as.
	ClientID = "eda"

	// AdminRealm is Keycloak's administrative realm.
	AdminRealm = "master"

	// AdminClientID is Keycloak's built-in administrative CLI client.
	AdminClientID = "admin-cli"
)

// Response is a token endpoint response. Both tokens are opaque bearer
// strings; the only structure relied upon is the JWT-decodable expiry in
// the access token (see DecodeExpiry).
type Response struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Client performs grant exchanges against the identity provider behind
// the EDA HTTP proxy. All outbound calls go through the injected
// transport strategy (normally the TLS-fallback chain), never a raw
// http.Client.
type Client struct {
	doer   transport.Strategy
	logger *slog.Logger
}

// ClientOption configures the token client.
type ClientOption func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a token client on top of a transport strategy.
func NewClient(doer transport.Strategy, opts ...ClientOption) *Client {
	c := &Client{
		doer:   doer,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchToken POSTs form-encoded grant parameters to the realm's token
// endpoint. Non-2xx responses fail with *RequestError carrying status and
// body; unparseable bodies fail with ErrInvalidPayload.
func (c *Client) FetchToken(ctx context.Context, baseURL, realm string, params url.Values) (*Response, error) {
	endpoint := strings.TrimRight(baseURL, "/") + ProxyPath +
		"/realms/" + realm + "/protocol/openid-connect/token"

	resp, err := c.doer.Fetch(ctx, transport.Request{
		BaseURL: baseURL,
		URL:     endpoint,
		Method:  http.MethodPost,
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    params.Encode(),
	})
	if err != nil {
		return nil, err
	}

	if !resp.OK {
		c.logger.Debug("Token request failed",
			"realm", realm,
			"status", resp.Status)
		return nil, &RequestError{Status: resp.Status, Body: resp.Body}
	}

	var tr Response
	if err := json.Unmarshal([]byte(resp.Body), &tr); err != nil {
		return nil, ErrInvalidPayload
	}

	return &tr, nil
}

// fetchAdminToken obtains an administrative access token via the password
// grant against Keycloak's master realm.
func (c *Client) fetchAdminToken(ctx context.Context, baseURL, username, password string) (string, error) {
	tr, err := c.FetchToken(ctx, baseURL, AdminRealm, url.Values{
		"grant_type": {"password"},
		"client_id":  {AdminClientID},
		"username":   {username},
		"password":   {password},
	})
	if err != nil {
		return "", err
	}
	return tr.AccessToken, nil
}

// FetchClientSecret retrieves the confidential client secret of the "eda"
// OAuth client using the user's administrative credentials: admin token,
// client listing, then the secret itself. Each HTTP step independently
// fails with status and body detail.
func (c *Client) FetchClientSecret(ctx context.Context, baseURL, username, password string) (string, error) {
	base := strings.TrimRight(baseURL, "/") + ProxyPath

	adminToken, err := c.fetchAdminToken(ctx, baseURL, username, password)
	if err != nil {
		return "", err
	}
	authHeader := map[string]string{"Authorization": "Bearer " + adminToken}

	listResp, err := c.doer.Fetch(ctx, transport.Request{
		BaseURL: baseURL,
		URL:     base + "/admin/realms/" + Realm + "/clients?clientId=" + ClientID,
		Method:  http.MethodGet,
		Headers: authHeader,
	})
	if err != nil {
		return "", err
	}
	if !listResp.OK {
		return "", fmt.Errorf("failed to list keycloak clients (%d): %s", listResp.Status, listResp.Body)
	}

	var clients []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(listResp.Body), &clients); err != nil {
		return "", fmt.Errorf("invalid keycloak client list response")
	}
	if len(clients) == 0 {
		return "", ErrClientNotFound
	}

	secretResp, err := c.doer.Fetch(ctx, transport.Request{
		BaseURL: baseURL,
		URL:     base + "/admin/realms/" + Realm + "/clients/" + clients[0].ID + "/client-secret",
		Method:  http.MethodGet,
		Headers: authHeader,
	})
	if err != nil {
		return "", err
	}
	if !secretResp.OK {
		return "", fmt.Errorf("failed to fetch client secret (%d): %s", secretResp.Status, secretResp.Body)
	}

	var secret struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal([]byte(secretResp.Body), &secret); err != nil {
		return "", fmt.Errorf("invalid keycloak secret response")
	}

	return secret.Value, nil
}
