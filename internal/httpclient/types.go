package httpclient

import (
	"context"
	"fmt"
	"net"
	"time"
)

// HTTPError is returned for any non-200 response.
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
	// RetryAfter is the raw Retry-After header, if the server sent one.
	RetryAfter string
}

// Error returns the error message
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

func dialer(connectTimeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}
	return d.DialContext
}
