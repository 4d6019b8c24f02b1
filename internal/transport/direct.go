package transport

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultHTTPTimeout is the default timeout for direct HTTP requests.
const DefaultHTTPTimeout = 30 * time.Second

// Direct performs outbound calls straight from the daemon's own network
// stack. TLS validation is the standard library's; there is deliberately
// no InsecureSkipVerify escape hatch -- untrusted certificates are routed
// around via the relay fallback instead.
type Direct struct {
	httpClient *http.Client
}

// DirectOption configures the direct strategy.
type DirectOption func(*Direct)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) DirectOption {
	return func(d *Direct) {
		d.httpClient = httpClient
	}
}

// NewDirect creates the direct fetch strategy.
func NewDirect(opts ...DirectOption) *Direct {
	d := &Direct{
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Fetch performs a single outbound HTTP call. Non-2xx statuses are
// reflected in the Response; an error return means a network-level
// failure (TLS, DNS, connection refused).
func (d *Direct) Fetch(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if req.Body != "" {
		bodyReader = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
		Body:   string(body),
	}, nil
}
