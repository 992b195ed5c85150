package sync

import (
	"time"

	"github.com/stacklok/site-discovery-server/internal/config"
)

// Lock keys in the shared kv.Store.
const (
	PeriodicLockKey  = "discover:sync:in_progress"
	BootstrapLockKey = "discover:initial-sync:in_progress"
	BootstrapFlagKey = "discover:auto-sync-check"
)

// Profile names.
const (
	ProfilePeriodic  = "periodic"
	ProfileBootstrap = "bootstrap"
)

// Profile selects the lock and retry budget of a run.
type Profile struct {
	Name       string
	LockKey    string
	LockTTL    time.Duration
	MaxRetries int
}

// PeriodicProfile returns the profile for scheduled and manual runs.
func PeriodicProfile(cfg *config.SyncConfig) Profile {
	return Profile{
		Name:       ProfilePeriodic,
		LockKey:    PeriodicLockKey,
		LockTTL:    cfg.GetPeriodicLockTTL(),
		MaxRetries: cfg.GetMaxRetries(),
	}
}

// BootstrapProfile returns the profile for the first run into an empty catalog.
func BootstrapProfile(cfg *config.SyncConfig) Profile {
	return Profile{
		Name:       ProfileBootstrap,
		LockKey:    BootstrapLockKey,
		LockTTL:    cfg.GetBootstrapLockTTL(),
		MaxRetries: cfg.GetBootstrapMaxRetries(),
	}
}
