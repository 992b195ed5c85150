package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stacklok/site-discovery-server/internal/kv"
	"github.com/stacklok/site-discovery-server/internal/store"
)

// Bootstrapper enqueues the first sync into an empty catalog. Several
// processes may start together; the flag key lets only one of them enqueue
// within the check window.
type Bootstrapper struct {
	store   store.SiteStore
	flags   kv.Store
	queue   Enqueuer
	profile Profile
	flagTTL time.Duration
	enabled func() bool
}

// NewBootstrapper creates a Bootstrapper. flagTTL is how long the flag key
// suppresses further checks.
func NewBootstrapper(
	siteStore store.SiteStore,
	flags kv.Store,
	queue Enqueuer,
	profile Profile,
	flagTTL time.Duration,
	enabled func() bool,
) *Bootstrapper {
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &Bootstrapper{
		store:   siteStore,
		flags:   flags,
		queue:   queue,
		profile: profile,
		flagTTL: flagTTL,
		enabled: enabled,
	}
}

// Check enqueues a bootstrap run when the feature is enabled, the catalog is
// empty and no other process claimed the flag. It reports whether it enqueued.
func (b *Bootstrapper) Check(ctx context.Context) (bool, error) {
	if !b.enabled() {
		return false, nil
	}

	count, err := b.store.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count sites: %w", err)
	}
	if count > 0 {
		slog.DebugContext(ctx, "Catalog already populated, skipping bootstrap", "sites", count)
		return false, nil
	}

	claimed, err := b.flags.SetNX(ctx, BootstrapFlagKey, []byte(time.Now().UTC().Format(time.RFC3339)), b.flagTTL)
	if err != nil {
		return false, fmt.Errorf("failed to claim bootstrap flag: %w", err)
	}
	if !claimed {
		slog.DebugContext(ctx, "Bootstrap check already claimed by another process")
		return false, nil
	}

	// A sync may have landed between the first count and the claim.
	count, err = b.store.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count sites: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	if err := b.queue.Enqueue(b.profile); err != nil {
		return false, fmt.Errorf("failed to enqueue bootstrap sync: %w", err)
	}
	slog.InfoContext(ctx, "Catalog is empty, bootstrap sync enqueued")
	return true, nil
}
