package sources

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stacklok/site-discovery-server/internal/httpclient"
	"github.com/stacklok/site-discovery-server/internal/kv"
	"github.com/stacklok/site-discovery-server/internal/telemetry"
)

const (
	// DefaultCacheTTL is how long a fetched page is served from cache.
	DefaultCacheTTL = 5 * time.Minute

	// topicsPath locates the record array inside a listing body.
	topicsPath = "topic_list.topics"

	cacheKeyPrefix = "discover:topics:"
)

// ListingConfig describes where the listing lives and how to authenticate.
type ListingConfig struct {
	BaseURL      string
	CategorySlug string
	CategoryID   int
	APIKey       string
	APIUsername  string
}

func (c ListingConfig) validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("listing base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("listing base URL %q is not an absolute URL", c.BaseURL)
	}
	if c.CategorySlug == "" && c.CategoryID <= 0 {
		return fmt.Errorf("listing category slug or id is required")
	}
	return nil
}

// categoryPath builds "c/{slug}/{id}", dropping whichever part is unset.
func (c ListingConfig) categoryPath() string {
	parts := []string{"c"}
	if c.CategorySlug != "" {
		parts = append(parts, url.PathEscape(c.CategorySlug))
	}
	if c.CategoryID > 0 {
		parts = append(parts, strconv.Itoa(c.CategoryID))
	}
	return strings.Join(parts, "/")
}

// ListingClient is the production Fetcher.
type ListingClient struct {
	cfg      ListingConfig
	listing  string
	client   httpclient.Client
	cache    kv.Store
	cacheTTL time.Duration
	retry    RetryPolicy
	enabled  func() bool
	sleep    SleepFunc
	metrics  *telemetry.FetchMetrics
}

var _ Fetcher = (*ListingClient)(nil)

// Option configures a ListingClient.
type Option func(*ListingClient)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c httpclient.Client) Option {
	return func(l *ListingClient) {
		l.client = c
	}
}

// WithCacheTTL sets the page cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(l *ListingClient) {
		if ttl > 0 {
			l.cacheTTL = ttl
		}
	}
}

// WithRetryPolicy sets the rate-limit retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(l *ListingClient) {
		l.retry = p
	}
}

// WithEnabled installs the feature gate. When it reports false every page is empty.
func WithEnabled(enabled func() bool) Option {
	return func(l *ListingClient) {
		l.enabled = enabled
	}
}

// WithSleep replaces the wait used between retries.
func WithSleep(sleep SleepFunc) Option {
	return func(l *ListingClient) {
		l.sleep = sleep
	}
}

// WithFetchMetrics records fetch outcomes.
func WithFetchMetrics(m *telemetry.FetchMetrics) Option {
	return func(l *ListingClient) {
		l.metrics = m
	}
}

// NewListingClient creates a client for the listing described by cfg, caching pages in cache.
func NewListingClient(cfg ListingConfig, cache kv.Store, opts ...Option) (*ListingClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cache == nil {
		return nil, fmt.Errorf("page cache is required")
	}

	l := &ListingClient{
		cfg:      cfg,
		listing:  strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.categoryPath() + ".json",
		cache:    cache,
		cacheTTL: DefaultCacheTTL,
		retry:    DefaultRetryPolicy(),
		enabled:  func() bool { return true },
		sleep:    SleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.client == nil {
		l.client = httpclient.NewDefaultClient()
	}
	return l, nil
}

// PageURL returns the request URL for page.
func (l *ListingClient) PageURL(page int) string {
	return l.listing + "?page=" + strconv.Itoa(page)
}

// cacheNamespace scopes cache keys to one listing so two configured
// listings sharing a store never read each other's pages.
func (l *ListingClient) cacheNamespace() string {
	sum := sha256.Sum256([]byte(l.listing))
	return cacheKeyPrefix + hex.EncodeToString(sum[:6]) + ":"
}

func (l *ListingClient) cacheKey(page int) string {
	return l.cacheNamespace() + "page:" + strconv.Itoa(page)
}

// FetchPage implements Fetcher.
func (l *ListingClient) FetchPage(ctx context.Context, page int, opts ...FetchOption) []json.RawMessage {
	if !l.enabled() {
		slog.DebugContext(ctx, "Site discovery disabled, skipping listing fetch", "page", page)
		return nil
	}

	o := fetchOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	policy := l.retry
	if o.maxRetries != nil {
		policy.MaxRetries = *o.maxRetries
	}

	key := l.cacheKey(page)
	if records, ok := l.cached(ctx, key); ok {
		l.metrics.RecordCacheLookup(ctx, true)
		return records
	}
	l.metrics.RecordCacheLookup(ctx, false)

	start := time.Now()
	records, err := l.fetchWithRetry(ctx, page, policy)
	l.metrics.RecordPageFetch(ctx, outcome(err), time.Since(start))
	if err != nil {
		l.logFailure(ctx, page, err)
		return nil
	}

	l.store(ctx, key, records)
	return records
}

// ClearCache implements Fetcher.
func (l *ListingClient) ClearCache(ctx context.Context) error {
	removed, err := l.cache.DeletePrefix(ctx, l.cacheNamespace())
	if err != nil {
		return fmt.Errorf("failed to clear listing cache: %w", err)
	}
	slog.InfoContext(ctx, "Cleared listing cache", "pages", removed)
	return nil
}

func (l *ListingClient) cached(ctx context.Context, key string) ([]json.RawMessage, bool) {
	data, ok, err := l.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "Listing cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		slog.WarnContext(ctx, "Discarding corrupt cached page", "key", key, "error", err)
		return nil, false
	}
	return records, true
}

// store caches a successful page. Empty pages are cached too.
func (l *ListingClient) store(ctx context.Context, key string, records []json.RawMessage) {
	if records == nil {
		records = []json.RawMessage{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		slog.WarnContext(ctx, "Failed to encode page for cache", "key", key, "error", err)
		return
	}
	if err := l.cache.Set(ctx, key, data, l.cacheTTL); err != nil {
		slog.WarnContext(ctx, "Listing cache write failed", "key", key, "error", err)
	}
}

func (l *ListingClient) headers() []httpclient.RequestOption {
	if l.cfg.APIKey == "" {
		return nil
	}
	opts := []httpclient.RequestOption{httpclient.WithHeader("Api-Key", l.cfg.APIKey)}
	if l.cfg.APIUsername != "" {
		opts = append(opts, httpclient.WithHeader("Api-Username", l.cfg.APIUsername))
	}
	return opts
}

func (l *ListingClient) fetchWithRetry(ctx context.Context, page int, policy RetryPolicy) ([]json.RawMessage, error) {
	pageURL := l.PageURL(page)

	var lastRetryAfter time.Duration
	for attempt := 0; ; attempt++ {
		body, err := l.client.Get(ctx, pageURL, l.headers()...)
		if err == nil {
			return parseTopics(pageURL, body)
		}

		var httpErr *httpclient.HTTPError
		if !errors.As(err, &httpErr) {
			return nil, &TransportError{URL: pageURL, Err: err}
		}
		if httpErr.StatusCode != http.StatusTooManyRequests {
			return nil, httpErr
		}

		if d, ok := ParseRetryAfter(httpErr.RetryAfter); ok {
			lastRetryAfter = d
		}
		if attempt >= policy.MaxRetries {
			return nil, &RateLimitedError{URL: pageURL, Attempts: attempt + 1, LastRetryAfter: lastRetryAfter}
		}

		delay := policy.Delay(attempt, httpErr.RetryAfter)
		slog.WarnContext(ctx, "Listing rate limited, retrying",
			"page", page,
			"attempt", attempt+1,
			"max_retries", policy.MaxRetries,
			"delay", delay)
		l.metrics.RecordRetry(ctx)

		if err := l.sleep(ctx, delay); err != nil {
			return nil, &TransportError{URL: pageURL, Err: err}
		}
	}
}

// parseTopics extracts topic_list.topics. A body without the path is an empty
// page; a body that is not JSON or has a non-array there is a ParseError.
func parseTopics(pageURL string, body []byte) ([]json.RawMessage, error) {
	if !gjson.ValidBytes(body) {
		return nil, &ParseError{URL: pageURL, Reason: "body is not valid JSON"}
	}

	topics := gjson.GetBytes(body, topicsPath)
	if !topics.Exists() || topics.Type == gjson.Null {
		return []json.RawMessage{}, nil
	}
	if !topics.IsArray() {
		return nil, &ParseError{URL: pageURL, Reason: topicsPath + " is not an array"}
	}

	items := topics.Array()
	records := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		records = append(records, json.RawMessage(item.Raw))
	}
	return records, nil
}

func outcome(err error) string {
	var (
		transportErr *TransportError
		rateErr      *RateLimitedError
		parseErr     *ParseError
		httpErr      *httpclient.HTTPError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &rateErr):
		return "rate_limited"
	case errors.As(err, &parseErr):
		return "parse_error"
	case errors.As(err, &httpErr):
		return "http_error"
	case errors.As(err, &transportErr):
		return "transport_error"
	default:
		return "error"
	}
}

func (*ListingClient) logFailure(ctx context.Context, page int, err error) {
	var rateErr *RateLimitedError
	if errors.As(err, &rateErr) {
		slog.ErrorContext(ctx, "Listing still rate limited after retries, treating page as empty",
			"page", page,
			"attempts", rateErr.Attempts,
			"error", err)
		return
	}
	slog.ErrorContext(ctx, "Failed to fetch listing page, treating page as empty",
		"page", page,
		"kind", outcome(err),
		"error", err)
}
