package kv

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestMemoryStore_GetSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newClock()
	s := NewMemoryStore(WithClock(clock.Now))

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "page:0", []byte("[]"), 5*time.Minute))

	value, ok, err := s.Get(ctx, "page:0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("[]"), value)

	clock.Advance(5 * time.Minute)

	_, ok, err = s.Get(ctx, "page:0")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire at its ttl")
}

func TestMemoryStore_SetWithoutTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newClock()
	s := NewMemoryStore(WithClock(clock.Now))

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	clock.Advance(24 * 365 * time.Hour)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_SetNX(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newClock()
	s := NewMemoryStore(WithClock(clock.Now))

	won, err := s.SetNX(ctx, "lock", []byte("run-1"), 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.SetNX(ctx, "lock", []byte("run-2"), 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, won, "held lock must not be taken")

	clock.Advance(10 * time.Minute)

	won, err = s.SetNX(ctx, "lock", []byte("run-3"), 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, won, "expired lock can be taken")

	value, _, err := s.Get(ctx, "lock")
	require.NoError(t, err)
	assert.Equal(t, []byte("run-3"), value)
}

func TestMemoryStore_SetNX_SingleWinner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	const contenders = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range contenders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.SetNX(ctx, "lock", []byte("x"), time.Minute)
			assert.NoError(t, err)
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestMemoryStore_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, s.Delete(ctx, "a", "missing"))

	_, ok, _ := s.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "b")
	assert.True(t, ok)
}

func TestMemoryStore_DeletePrefix(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "discover:topics:abc:page:0", []byte("[]"), time.Minute))
	require.NoError(t, s.Set(ctx, "discover:topics:abc:page:1", []byte("[]"), time.Minute))
	require.NoError(t, s.Set(ctx, "discover:sync:lock", []byte("x"), time.Minute))

	removed, err := s.DeletePrefix(ctx, "discover:topics:")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, ok, _ := s.Get(ctx, "discover:sync:lock")
	assert.True(t, ok)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "k", []byte("abc"), 0))

	value, _, _ := s.Get(ctx, "k")
	value[0] = 'z'

	again, _, _ := s.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}
