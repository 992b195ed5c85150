package app

import (
	"github.com/stacklok/site-discovery-server/internal/kv"
	"github.com/stacklok/site-discovery-server/internal/sources"
	"github.com/stacklok/site-discovery-server/internal/status"
	"github.com/stacklok/site-discovery-server/internal/store"
	pkgsync "github.com/stacklok/site-discovery-server/internal/sync"
	"github.com/stacklok/site-discovery-server/internal/sync/coordinator"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// SiteStore persists the catalog
	SiteStore store.SiteStore

	// KVStore holds cached listing pages, sync locks and the bootstrap flag
	KVStore kv.Store

	// Fetcher reads listing pages from the forum
	Fetcher sources.Fetcher

	Syncer *pkgsync.Syncer

	// StatusTracker wraps Syncer and records the outcome of each run
	StatusTracker *status.Tracker

	Queue        *pkgsync.Queue
	Trigger      *pkgsync.Trigger
	Bootstrapper *pkgsync.Bootstrapper

	// SyncCoordinator enqueues the periodic sync
	SyncCoordinator coordinator.Coordinator
}
