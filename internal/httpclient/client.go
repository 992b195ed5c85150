// Package httpclient provides the JSON GET client used to read the remote listing.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a whole request including reading the body.
	DefaultTimeout = 10 * time.Second

	// DefaultConnectTimeout bounds dialing the remote host.
	DefaultConnectTimeout = 5 * time.Second

	// MaxResponseSize is the largest body accepted (100MB)
	MaxResponseSize = 100 * 1024 * 1024

	// DefaultUserAgent identifies this service to remote hosts.
	DefaultUserAgent = "site-discovery-server/1.0"
)

// Client performs HTTP GET requests.
type Client interface {
	// Get performs a GET request and returns the body of a 200 response.
	// Any other status is returned as *HTTPError.
	Get(ctx context.Context, url string, opts ...RequestOption) ([]byte, error)
}

// RequestOption adjusts a single outgoing request.
type RequestOption func(*http.Request)

// WithHeader sets a header on the outgoing request.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// ClientOption configures a DefaultClient.
type ClientOption func(*DefaultClient)

// WithTimeout sets the overall request timeout. Zero keeps the default.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *DefaultClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *DefaultClient) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *DefaultClient) {
		c.transport = rt
	}
}

// DefaultClient is the net/http backed Client.
type DefaultClient struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	transport http.RoundTripper
}

var _ Client = (*DefaultClient)(nil)

// NewDefaultClient creates a client with a 10s request timeout and a 5s connect timeout.
func NewDefaultClient(opts ...ClientOption) *DefaultClient {
	c := &DefaultClient{
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = dialer(DefaultConnectTimeout)
		c.transport = transport
	}

	c.client = &http.Client{
		Timeout:   c.timeout,
		Transport: c.transport,
	}
	return c
}

// Get performs an HTTP GET request
func (c *DefaultClient) Get(ctx context.Context, url string, opts ...RequestOption) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        url,
			Message:    resp.Status,
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	}

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes (%.2f MB)",
			resp.ContentLength, MaxResponseSize, float64(MaxResponseSize)/(1024*1024))
	}

	// Read one byte past the limit to detect oversize bodies without Content-Length.
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response size exceeds maximum allowed size of %d bytes (%.2f MB)",
			MaxResponseSize, float64(MaxResponseSize)/(1024*1024))
	}

	return body, nil
}
