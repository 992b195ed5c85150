// Package kv provides the shared key-value service used for the listing page
// cache and for the distributed sync locks. Every operation is atomic with
// respect to other callers of the same backend.
package kv

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=kv.go Store

// Store is a key-value store with per-key expiry.
type Store interface {
	// Get returns the value stored under key. The boolean is false when the
	// key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous value. A ttl <= 0
	// means the key never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value under key only if the key is absent or expired, and
	// reports whether it did. This is the lock primitive.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// DeletePrefix removes every key starting with prefix and returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}
