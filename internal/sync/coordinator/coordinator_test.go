package coordinator

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/site-discovery-server/internal/sync"
)

var testProfile = sync.Profile{Name: sync.ProfilePeriodic, LockKey: sync.PeriodicLockKey}

type countingQueue struct {
	mu    stdsync.Mutex
	calls int
	err   error
}

func (q *countingQueue) Enqueue(p sync.Profile) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	return q.err
}

func (q *countingQueue) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

func TestCalculateInterval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		interval time.Duration
	}{
		{name: "daily", interval: 24 * time.Hour},
		{name: "ten minutes", interval: 10 * time.Minute},
		{name: "tiny interval has no jitter", interval: 10 * time.Nanosecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			jitter := tt.interval / jitterDivisor
			for range 100 {
				got := calculateInterval(tt.interval)
				assert.GreaterOrEqual(t, got, tt.interval-jitter)
				assert.LessOrEqual(t, got, tt.interval+jitter)
			}
		})
	}
}

func TestCoordinator_Stop_BeforeStart(t *testing.T) {
	t.Parallel()

	c := New(&countingQueue{}, testProfile, time.Hour)
	require.NoError(t, c.Stop())
}

func TestCoordinator_EnqueuesOnSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "enqueue succeeds"},
		{name: "enqueue failure keeps the schedule", err: errors.New("queue full")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			queue := &countingQueue{err: tt.err}
			c := New(queue, testProfile, 10*time.Millisecond)

			errCh := make(chan error, 1)
			go func() { errCh <- c.Start(context.Background()) }()

			require.Eventually(t, func() bool { return queue.Calls() >= 3 }, 5*time.Second, 5*time.Millisecond)
			require.NoError(t, c.Stop())
			require.NoError(t, <-errCh)
		})
	}
}

func TestCoordinator_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	queue := &countingQueue{}
	c := New(queue, testProfile, time.Hour)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop")
	}
	assert.Zero(t, queue.Calls(), "no run before the first interval elapses")
}
