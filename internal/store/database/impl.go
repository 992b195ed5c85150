// Package database provides a database-backed implementation of the SiteStore interface
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/site-discovery-server/internal/db"
	"github.com/stacklok/site-discovery-server/internal/otel"
	"github.com/stacklok/site-discovery-server/internal/sites"
	"github.com/stacklok/site-discovery-server/internal/store"
)

// options holds configuration options for the database store
type options struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	now    func() time.Time
}

// Option is a functional option for configuring the database store
type Option func(*options) error

// WithConnectionPool sets the pgx pool. The caller is responsible for
// closing the pool when it is done.
func WithConnectionPool(pool *pgxpool.Pool) Option {
	return func(o *options) error {
		if pool == nil {
			return fmt.Errorf("pgx pool is required")
		}
		o.pool = pool
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer for the database store.
// If not set, tracing will be disabled (no-op).
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		o.tracer = tracer
		return nil
	}
}

// WithClock replaces the time source used for sync timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return fmt.Errorf("clock is required")
		}
		o.now = now
		return nil
	}
}

// dbStore implements the SiteStore interface using a database backend
type dbStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	now    func() time.Time
}

var _ store.SiteStore = (*dbStore)(nil)

// New creates a new database-backed site store with the given options
func New(opts ...Option) (store.SiteStore, error) {
	o := &options{now: time.Now}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}

	return &dbStore{
		pool:   o.pool,
		tracer: o.tracer,
		now:    o.now,
	}, nil
}

// CheckReadiness checks if the store is ready to serve requests
func (s *dbStore) CheckReadiness(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

const siteColumns = `id, external_id, name, url, description, logo_url, locale,
	categories, tags, featured_at, last_synced_at, created_at, updated_at`

const upsertQuery = `
INSERT INTO discover_sites (
	external_id, name, url, description, logo_url, locale,
	categories, tags, featured_at, last_synced_at, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10, $10)
ON CONFLICT (external_id) DO UPDATE SET
	name = EXCLUDED.name,
	url = EXCLUDED.url,
	description = EXCLUDED.description,
	logo_url = EXCLUDED.logo_url,
	locale = EXCLUDED.locale,
	categories = EXCLUDED.categories,
	tags = EXCLUDED.tags,
	featured_at = EXCLUDED.featured_at,
	last_synced_at = EXCLUDED.last_synced_at,
	updated_at = EXCLUDED.updated_at
RETURNING ` + siteColumns

// Upsert creates or overwrites the site with externalID
func (s *dbStore) Upsert(ctx context.Context, externalID int64, fields sites.Fields) (*sites.Site, error) {
	ctx, span := s.startSpan(ctx, "dbStore.Upsert",
		trace.WithAttributes(otel.AttrExternalID.Int64(externalID)))
	defer span.End()

	if err := fields.Validate(); err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	now := s.now().UTC()
	row := s.pool.QueryRow(ctx, upsertQuery,
		externalID,
		fields.Name,
		fields.URL,
		nilIfEmpty(fields.Description),
		nilIfEmpty(fields.LogoURL),
		fields.Locale,
		nonNil(fields.Categories),
		nonNil(fields.Tags),
		fields.FeaturedAt,
		now,
	)

	site, err := scanSite(row)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to upsert site %d: %w", externalID, err)
	}

	span.SetAttributes(otel.AttrSiteID.Int64(site.ID))
	return site, nil
}

// Query returns one page of matching sites
func (s *dbStore) Query(ctx context.Context, opts ...store.QueryOption) (*store.QueryResult, error) {
	ctx, span := s.startSpan(ctx, "dbStore.Query")
	defer span.End()

	o, err := store.NewQueryOptions(opts...)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(
		otel.AttrPageSize.Int(o.Limit),
		otel.AttrPageOffset.Int(o.Offset),
		otel.AttrFeaturedOnly.Bool(o.FeaturedOnly),
	)
	if o.Locale != "" {
		span.SetAttributes(otel.AttrLocale.String(o.Locale))
	}
	if o.Category != "" {
		span.SetAttributes(otel.AttrCategory.String(o.Category))
	}

	where, args := buildWhere(o)

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM discover_sites"+where, args...).Scan(&total); err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to count sites: %w", err)
	}

	orderBy := " ORDER BY last_synced_at DESC, id DESC"
	if o.FeaturedOnly {
		orderBy = " ORDER BY featured_at DESC, id DESC"
	}

	n := len(args)
	query := "SELECT " + siteColumns + " FROM discover_sites" + where + orderBy +
		" LIMIT $" + strconv.Itoa(n+1) + " OFFSET $" + strconv.Itoa(n+2)
	args = append(args, o.Limit, o.Offset)

	slog.DebugContext(ctx, "Query sites",
		"locale", o.Locale,
		"category", o.Category,
		"search", o.Search,
		"featured_only", o.FeaturedOnly,
		"limit", o.Limit,
		"offset", o.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to query sites: %w", err)
	}
	defer rows.Close()

	result := &store.QueryResult{Sites: make([]*sites.Site, 0, o.Limit), Total: total}
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			otel.RecordError(span, err)
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		result.Sites = append(result.Sites, site)
	}
	if err := rows.Err(); err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to iterate sites: %w", err)
	}

	span.SetAttributes(otel.AttrResultCount.Int(len(result.Sites)))
	return result, nil
}

// buildWhere renders the filter clause and its positional arguments.
func buildWhere(o *store.QueryOptions) (string, []any) {
	var (
		conds []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if o.Locale != "" {
		conds = append(conds, "locale = "+next(o.Locale))
	}
	if o.Category != "" {
		conds = append(conds, next(o.Category)+"::text = ANY(categories)")
	}
	if o.Search != "" {
		conds = append(conds, `name ILIKE '%' || `+next(db.EscapeLike(o.Search))+`::text || '%' ESCAPE '\'`)
	}
	if o.FeaturedOnly {
		conds = append(conds, "featured_at IS NOT NULL")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// FindByID returns the site with id
func (s *dbStore) FindByID(ctx context.Context, id int64) (*sites.Site, error) {
	ctx, span := s.startSpan(ctx, "dbStore.FindByID",
		trace.WithAttributes(otel.AttrSiteID.Int64(id)))
	defer span.End()

	row := s.pool.QueryRow(ctx, "SELECT "+siteColumns+" FROM discover_sites WHERE id = $1", id)
	site, err := scanSite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to get site %d: %w", id, err)
	}
	return site, nil
}

// Count returns the number of stored sites
func (s *dbStore) Count(ctx context.Context) (int64, error) {
	ctx, span := s.startSpan(ctx, "dbStore.Count")
	defer span.End()

	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM discover_sites").Scan(&count); err != nil {
		otel.RecordError(span, err)
		return 0, fmt.Errorf("failed to count sites: %w", err)
	}
	return count, nil
}

func scanSite(row pgx.Row) (*sites.Site, error) {
	var (
		site        sites.Site
		description *string
		logoURL     *string
	)
	err := row.Scan(
		&site.ID,
		&site.ExternalID,
		&site.Name,
		&site.URL,
		&description,
		&logoURL,
		&site.Locale,
		&site.Categories,
		&site.Tags,
		&site.FeaturedAt,
		&site.LastSyncedAt,
		&site.CreatedAt,
		&site.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if description != nil {
		site.Description = *description
	}
	if logoURL != nil {
		site.LogoURL = *logoURL
	}
	return &site, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
