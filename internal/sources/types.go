// Package sources implements the client for the remote topic listing: page
// fetching with a shared page cache, optional API credentials, rate-limit
// retries and a fail-soft policy that turns every failure into an empty page.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mocks -source=types.go Fetcher

// Fetcher reads pages of raw topic records from the remote listing.
type Fetcher interface {
	// FetchPage returns the records on page (zero based). It never fails:
	// an empty result means either the end of the listing or a failed fetch.
	FetchPage(ctx context.Context, page int, opts ...FetchOption) []json.RawMessage

	// ClearCache drops every cached page so the next crawl hits the remote.
	ClearCache(ctx context.Context) error
}

// FetchOption adjusts a single FetchPage call.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	maxRetries *int
}

// WithMaxRetries overrides the rate-limit retry budget for one call.
func WithMaxRetries(n int) FetchOption {
	return func(o *fetchOptions) {
		o.maxRetries = &n
	}
}

// TransportError is a network level failure talking to the listing.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error fetching %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RateLimitedError means the listing kept answering 429 until the retry budget ran out.
type RateLimitedError struct {
	URL      string
	Attempts int
	// LastRetryAfter is the last delay the server asked for, zero if none.
	LastRetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited fetching %s after %d attempts", e.URL, e.Attempts)
}

// ParseError means the listing answered 200 with a body that is not a topic listing.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse listing from %s: %s", e.URL, e.Reason)
}
