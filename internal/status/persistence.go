// Package status tracks the outcome of sync runs per profile and persists it
// in the shared key-value store, so every instance reports the same status.
package status

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stacklok/site-discovery-server/internal/kv"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

// KeyPrefix namespaces status entries in the key-value store.
const KeyPrefix = "discover:sync:status:"

// StatusPersistence defines the interface for sync status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus stores the status of a profile
	SaveStatus(ctx context.Context, profile string, st *SyncStatus) error

	// LoadStatus loads the status of a profile.
	// Returns an empty SyncStatus if none was saved yet.
	LoadStatus(ctx context.Context, profile string) (*SyncStatus, error)

	// LoadAllStatus loads the status of every given profile
	LoadAllStatus(ctx context.Context, profiles ...string) (map[string]*SyncStatus, error)
}

type kvStatusPersistence struct {
	store kv.Store
}

// NewKVStatusPersistence creates a status persistence on top of store.
// Entries never expire.
func NewKVStatusPersistence(store kv.Store) StatusPersistence {
	return &kvStatusPersistence{store: store}
}

func (p *kvStatusPersistence) SaveStatus(ctx context.Context, profile string, status *SyncStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status for profile '%s': %w", profile, err)
	}
	if err := p.store.Set(ctx, KeyPrefix+profile, data, 0); err != nil {
		return fmt.Errorf("failed to save status for profile '%s': %w", profile, err)
	}
	return nil
}

func (p *kvStatusPersistence) LoadStatus(ctx context.Context, profile string) (*SyncStatus, error) {
	data, ok, err := p.store.Get(ctx, KeyPrefix+profile)
	if err != nil {
		return nil, fmt.Errorf("failed to read status for profile '%s': %w", profile, err)
	}
	if !ok {
		return &SyncStatus{}, nil
	}

	var status SyncStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status for profile '%s': %w", profile, err)
	}
	return &status, nil
}

func (p *kvStatusPersistence) LoadAllStatus(ctx context.Context, profiles ...string) (map[string]*SyncStatus, error) {
	result := make(map[string]*SyncStatus, len(profiles))
	for _, profile := range profiles {
		status, err := p.LoadStatus(ctx, profile)
		if err != nil {
			return nil, err
		}
		result[profile] = status
	}
	return result, nil
}
