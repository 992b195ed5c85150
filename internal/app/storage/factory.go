// Package storage provides factory functions for creating storage-dependent components.
// It implements the Abstract Factory pattern so the site store and the
// key-value store used for caching and locks always share a backend.
package storage

import (
	"context"
	"fmt"

	"github.com/stacklok/site-discovery-server/internal/config"
	"github.com/stacklok/site-discovery-server/internal/kv"
	"github.com/stacklok/site-discovery-server/internal/store"
)

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks -source=factory.go Factory

// Factory creates storage-dependent components as a family.
//
// The factory encapsulates the creation of:
// - SiteStore: persists normalized site records
// - kv.Store: holds the listing cache, sync locks and the bootstrap flag
//
// It also manages the lifecycle of storage resources (e.g., database connections).
type Factory interface {
	// CreateSiteStore creates the site record store.
	CreateSiteStore(ctx context.Context) (store.SiteStore, error)

	// CreateKVStore creates the key-value store. Locks only coordinate
	// processes that share it, so multi-replica deployments need the
	// database factory.
	CreateKVStore(ctx context.Context) (kv.Store, error)

	// Cleanup releases any resources held by this factory.
	// For database factories, this closes the connection pool.
	// For memory factories, this is a no-op.
	Cleanup()
}

// NewStorageFactory creates a storage factory based on the configuration.
// Returns a DatabaseFactory when a database section is present and a
// MemoryFactory otherwise.
func NewStorageFactory(ctx context.Context, cfg *config.Config, opts ...DatabaseFactoryOption) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Database == nil {
		return NewMemoryFactory(), nil
	}
	return NewDatabaseFactory(ctx, cfg, opts...)
}
