package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/site-discovery-server/internal/config"
	"github.com/stacklok/site-discovery-server/internal/db"
	"github.com/stacklok/site-discovery-server/internal/kv"
	"github.com/stacklok/site-discovery-server/internal/store"
	"github.com/stacklok/site-discovery-server/internal/store/database"
)

// DatabaseFactory creates database-backed storage components.
// All components created by this factory share one PostgreSQL pool.
type DatabaseFactory struct {
	config *config.Config
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

var _ Factory = (*DatabaseFactory)(nil)

// DatabaseFactoryOption is a functional option for configuring the DatabaseFactory
type DatabaseFactoryOption func(*DatabaseFactory)

// WithTracer sets the OpenTelemetry tracer for the database components.
// If not set, tracing will be disabled (no-op).
func WithTracer(tracer trace.Tracer) DatabaseFactoryOption {
	return func(f *DatabaseFactory) {
		f.tracer = tracer
	}
}

// NewDatabaseFactory creates a new database-backed storage factory.
// It establishes a connection pool to the configured PostgreSQL database.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config, opts ...DatabaseFactoryOption) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Database == nil {
		return nil, fmt.Errorf("database configuration is required for database storage")
	}

	slog.Info("Creating database-backed storage factory")

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	factory := &DatabaseFactory{
		config: cfg,
		pool:   pool,
	}

	for _, opt := range opts {
		opt(factory)
	}

	return factory, nil
}

// CreateSiteStore creates a PostgreSQL-backed site store.
func (d *DatabaseFactory) CreateSiteStore(_ context.Context) (store.SiteStore, error) {
	slog.Debug("Creating database-backed site store")

	opts := []database.Option{
		database.WithConnectionPool(d.pool),
	}
	if d.tracer != nil {
		opts = append(opts, database.WithTracer(d.tracer))
		slog.Debug("Site store tracing enabled")
	}

	return database.New(opts...)
}

// CreateKVStore creates a key-value store on the discover_kv table.
func (d *DatabaseFactory) CreateKVStore(_ context.Context) (kv.Store, error) {
	slog.Debug("Creating database-backed key-value store")

	var opts []kv.PostgresOption
	if d.tracer != nil {
		opts = append(opts, kv.WithTracer(d.tracer))
	}
	return kv.NewPostgresStore(d.pool, opts...)
}

// Pool exposes the shared connection pool.
func (d *DatabaseFactory) Pool() *pgxpool.Pool {
	return d.pool
}

// Cleanup closes the connection pool.
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}
