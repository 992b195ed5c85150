package sync

import (
	"context"
	"log/slog"
	"runtime/debug"
	stdsync "sync"
)

// DefaultQueueSize is the number of runs that may wait behind the active one.
const DefaultQueueSize = 8

// Queue runs enqueued profiles one at a time in the background.
type Queue struct {
	runner Runner
	jobs   chan Profile

	mu     stdsync.Mutex
	closed bool
}

// NewQueue creates a queue with room for size pending runs.
func NewQueue(runner Runner, size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		runner: runner,
		jobs:   make(chan Profile, size),
	}
}

// Enqueue schedules a run without blocking.
func (q *Queue) Enqueue(profile Profile) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- profile:
		slog.Debug("Sync run enqueued", "profile", profile.Name, "pending", len(q.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of runs waiting to start.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// Run executes queued runs until ctx is cancelled. Runs still pending at
// that point are dropped.
func (q *Queue) Run(ctx context.Context) error {
	slog.Info("Sync queue worker started")
	defer func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		slog.Info("Sync queue worker stopped", "dropped", len(q.jobs))
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case profile := <-q.jobs:
			q.runOne(ctx, profile)
		}
	}
}

// runOne executes a single run. A panic is logged and the worker keeps serving.
func (q *Queue) runOne(ctx context.Context, profile Profile) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Sync run panicked", "profile", profile.Name, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if _, err := q.runner.Run(ctx, profile); err != nil && ctx.Err() == nil {
		slog.Error("Sync run failed", "profile", profile.Name, "error", err)
	}
}
