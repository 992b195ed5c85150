package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/site-discovery-server/internal/db"
	"github.com/stacklok/site-discovery-server/internal/otel"
)

// DBTX is the subset of pgxpool.Pool used by the Postgres store.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps keys in the discover_kv table so locks and cached pages
// are shared by every replica pointing at the same database.
type PostgresStore struct {
	db     DBTX
	tracer trace.Tracer
}

var _ Store = (*PostgresStore)(nil)

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithTracer enables spans around every statement.
func WithTracer(tracer trace.Tracer) PostgresOption {
	return func(s *PostgresStore) {
		s.tracer = tracer
	}
}

// NewPostgresStore creates a store on top of the given pool or connection.
func NewPostgresStore(db DBTX, opts ...PostgresOption) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	s := &PostgresStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func expiresAt(ttl time.Duration) pgtype.Timestamptz {
	if ttl <= 0 {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: time.Now().Add(ttl).UTC(), Valid: true}
}

const getQuery = `
SELECT value FROM discover_kv
WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "kv.Get",
		trace.WithAttributes(attribute.String("kv.key", key)))
	defer span.End()

	var value []byte
	err := s.db.QueryRow(ctx, getQuery, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		otel.RecordError(span, err)
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, true, nil
}

const setQuery = `
INSERT INTO discover_kv (key, value, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`

// Set implements Store.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := otel.StartSpan(ctx, s.tracer, "kv.Set",
		trace.WithAttributes(attribute.String("kv.key", key)))
	defer span.End()

	if _, err := s.db.Exec(ctx, setQuery, key, value, expiresAt(ttl)); err != nil {
		otel.RecordError(span, err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// setNXQuery only overwrites a row whose expiry has passed, so exactly one
// concurrent caller gets a row back.
const setNXQuery = `
INSERT INTO discover_kv (key, value, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
WHERE discover_kv.expires_at IS NOT NULL AND discover_kv.expires_at <= now()
RETURNING key`

// SetNX implements Store.
func (s *PostgresStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "kv.SetNX",
		trace.WithAttributes(attribute.String("kv.key", key)))
	defer span.End()

	var got string
	err := s.db.QueryRow(ctx, setNXQuery, key, value, expiresAt(ttl)).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		otel.RecordError(span, err)
		return false, fmt.Errorf("failed to set key %s if absent: %w", key, err)
	}
	return true, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, span := otel.StartSpan(ctx, s.tracer, "kv.Delete",
		trace.WithAttributes(attribute.Int("kv.key_count", len(keys))))
	defer span.End()

	if _, err := s.db.Exec(ctx, `DELETE FROM discover_kv WHERE key = ANY($1)`, keys); err != nil {
		otel.RecordError(span, err)
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// DeletePrefix implements Store.
func (s *PostgresStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "kv.DeletePrefix",
		trace.WithAttributes(attribute.String("kv.prefix", prefix)))
	defer span.End()

	tag, err := s.db.Exec(ctx, `DELETE FROM discover_kv WHERE key LIKE $1 ESCAPE '\'`, db.EscapeLike(prefix)+"%")
	if err != nil {
		otel.RecordError(span, err)
		return 0, fmt.Errorf("failed to delete keys with prefix %s: %w", prefix, err)
	}
	return int(tag.RowsAffected()), nil
}
