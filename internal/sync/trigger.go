package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stacklok/site-discovery-server/internal/sources"
)

// Enqueuer schedules runs. *Queue implements it.
type Enqueuer interface {
	Enqueue(profile Profile) error
}

// Trigger starts runs on demand.
type Trigger struct {
	fetcher  sources.Fetcher
	queue    Enqueuer
	periodic Profile
}

// NewTrigger creates a Trigger that enqueues the periodic profile.
func NewTrigger(fetcher sources.Fetcher, queue Enqueuer, periodic Profile) *Trigger {
	return &Trigger{fetcher: fetcher, queue: queue, periodic: periodic}
}

// TriggerSync drops the page cache so the next crawl sees fresh data, then
// enqueues a periodic run.
func (t *Trigger) TriggerSync(ctx context.Context) error {
	if err := t.fetcher.ClearCache(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to clear listing cache", "error", err)
	}
	if err := t.queue.Enqueue(t.periodic); err != nil {
		return fmt.Errorf("failed to enqueue sync: %w", err)
	}
	slog.InfoContext(ctx, "Manual sync enqueued", "profile", t.periodic.Name)
	return nil
}
