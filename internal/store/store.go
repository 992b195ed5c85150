// Package store defines the persistence contract for the site catalog.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stacklok/site-discovery-server/internal/sites"
)

const (
	// DefaultPageSize is the page size used by the read API.
	DefaultPageSize = 24

	// MaxPageSize caps the limit a caller may request.
	MaxPageSize = 100
)

var (
	// ErrNotFound is returned when no site has the requested ID.
	ErrNotFound = errors.New("site not found")
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go SiteStore

// SiteStore persists sites keyed by their external ID.
type SiteStore interface {
	// Upsert creates or overwrites the site with externalID. Fields are
	// validated first; a *sites.ValidationError means nothing was written.
	Upsert(ctx context.Context, externalID int64, fields sites.Fields) (*sites.Site, error)

	// Query returns one page of matching sites and the total match count.
	Query(ctx context.Context, opts ...QueryOption) (*QueryResult, error)

	// FindByID returns ErrNotFound when absent.
	FindByID(ctx context.Context, id int64) (*sites.Site, error)

	// Count returns the number of stored sites.
	Count(ctx context.Context) (int64, error)

	// CheckReadiness reports whether the backend can serve requests.
	CheckReadiness(ctx context.Context) error
}

// QueryResult is one page of a query.
type QueryResult struct {
	Sites []*sites.Site
	Total int64
}

// QueryOptions holds the filters and window of a Query.
// Sites are ordered by last sync time, newest first, unless FeaturedOnly is
// set, in which case they are ordered by featured time, newest first.
type QueryOptions struct {
	Locale       string
	Category     string
	Search       string
	FeaturedOnly bool
	Offset       int
	Limit        int
}

// QueryOption sets a field of QueryOptions.
type QueryOption func(*QueryOptions) error

// NewQueryOptions applies opts over the defaults.
func NewQueryOptions(opts ...QueryOption) (*QueryOptions, error) {
	o := &QueryOptions{Limit: DefaultPageSize}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.Limit > MaxPageSize {
		o.Limit = MaxPageSize
	}
	return o, nil
}

// WithLocale keeps sites whose locale equals locale exactly.
func WithLocale(locale string) QueryOption {
	return func(o *QueryOptions) error {
		if locale == "" {
			return fmt.Errorf("invalid locale: %s", locale)
		}
		o.Locale = locale
		return nil
	}
}

// WithCategory keeps sites whose categories contain category.
func WithCategory(category string) QueryOption {
	return func(o *QueryOptions) error {
		if category == "" {
			return fmt.Errorf("invalid category: %s", category)
		}
		o.Category = category
		return nil
	}
}

// WithSearch keeps sites whose name contains search, ignoring case.
func WithSearch(search string) QueryOption {
	return func(o *QueryOptions) error {
		search = strings.TrimSpace(search)
		if search == "" {
			return fmt.Errorf("invalid search: %s", search)
		}
		o.Search = search
		return nil
	}
}

// WithFeaturedOnly keeps featured sites, newest featured first.
func WithFeaturedOnly() QueryOption {
	return func(o *QueryOptions) error {
		o.FeaturedOnly = true
		return nil
	}
}

// WithOffset skips the first offset matches.
func WithOffset(offset int) QueryOption {
	return func(o *QueryOptions) error {
		if offset < 0 {
			return fmt.Errorf("invalid offset: %d", offset)
		}
		o.Offset = offset
		return nil
	}
}

// WithLimit sets the page size.
func WithLimit(limit int) QueryOption {
	return func(o *QueryOptions) error {
		if limit <= 0 {
			return fmt.Errorf("invalid limit: %d", limit)
		}
		o.Limit = limit
		return nil
	}
}
