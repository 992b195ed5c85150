package storage

import (
	"context"
	"log/slog"

	"github.com/stacklok/site-discovery-server/internal/kv"
	"github.com/stacklok/site-discovery-server/internal/store"
	"github.com/stacklok/site-discovery-server/internal/store/inmemory"
)

// MemoryFactory creates process-local storage components. Data is lost on
// restart and locks do not span replicas.
type MemoryFactory struct {
	sites store.SiteStore
	kv    *kv.MemoryStore
}

var _ Factory = (*MemoryFactory)(nil)

// NewMemoryFactory creates a factory whose stores live for the process.
func NewMemoryFactory() *MemoryFactory {
	slog.Info("Creating in-memory storage factory")
	return &MemoryFactory{
		sites: inmemory.New(),
		kv:    kv.NewMemoryStore(),
	}
}

// CreateSiteStore returns the shared in-memory site store.
func (m *MemoryFactory) CreateSiteStore(_ context.Context) (store.SiteStore, error) {
	return m.sites, nil
}

// CreateKVStore returns the shared in-memory key-value store.
func (m *MemoryFactory) CreateKVStore(_ context.Context) (kv.Store, error) {
	return m.kv, nil
}

// Cleanup is a no-op.
func (*MemoryFactory) Cleanup() {}
