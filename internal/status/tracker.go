package status

import (
	"context"
	"log/slog"
	"time"

	pkgsync "github.com/stacklok/site-discovery-server/internal/sync"
)

// Tracker wraps a sync runner and records the outcome of every run it
// executes. Contended and disabled runs leave the stored status untouched.
type Tracker struct {
	next        pkgsync.Runner
	persistence StatusPersistence
	now         func() time.Time
}

var _ pkgsync.Runner = (*Tracker)(nil)

// NewTracker creates a Tracker around next.
func NewTracker(next pkgsync.Runner, persistence StatusPersistence) *Tracker {
	return &Tracker{next: next, persistence: persistence, now: time.Now}
}

// Run implements pkgsync.Runner.
func (t *Tracker) Run(ctx context.Context, profile pkgsync.Profile) (*pkgsync.Result, error) {
	result, runErr := t.next.Run(ctx, profile)
	if runErr == nil && (result == nil || result.Contended || result.Disabled) {
		return result, nil
	}

	// Record even if the run was cancelled
	saveCtx := context.WithoutCancel(ctx)

	status, err := t.persistence.LoadStatus(saveCtx, profile.Name)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load sync status", "profile", profile.Name, "error", err)
		status = &SyncStatus{}
	}

	now := t.now().UTC()
	status.LastAttempt = &now
	if result != nil {
		status.RunID = result.RunID
	}

	if runErr != nil {
		status.Phase = SyncPhaseFailed
		status.Message = runErr.Error()
		status.AttemptCount++
	} else {
		status.Phase = SyncPhaseComplete
		status.Message = ""
		status.AttemptCount = 0
		status.LastSyncTime = &now
		status.Pages = result.Pages
		status.Synced = result.Synced
		status.Failed = result.Failed
	}

	if err := t.persistence.SaveStatus(saveCtx, profile.Name, status); err != nil {
		slog.WarnContext(ctx, "Failed to save sync status", "profile", profile.Name, "error", err)
	}
	return result, runErr
}

// Statuses returns the stored status of the periodic and bootstrap profiles.
func (t *Tracker) Statuses(ctx context.Context) (map[string]*SyncStatus, error) {
	return t.persistence.LoadAllStatus(ctx, pkgsync.ProfilePeriodic, pkgsync.ProfileBootstrap)
}
