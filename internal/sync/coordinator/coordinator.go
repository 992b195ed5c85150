package coordinator

import (
	"context"
	"log/slog"
	"math/rand/v2"
	stdsync "sync"
	"time"

	"github.com/stacklok/site-discovery-server/internal/sync"
)

// jitterDivisor sets the jitter to ±1/jitterDivisor of the interval.
const jitterDivisor = 20

// Coordinator schedules periodic sync runs
type Coordinator interface {
	// Start runs the schedule until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop cancels the schedule and waits for Start to return.
	Stop() error
}

type defaultCoordinator struct {
	queue    sync.Enqueuer
	profile  sync.Profile
	interval time.Duration

	mu         stdsync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// New creates a coordinator that enqueues profile every interval.
func New(queue sync.Enqueuer, profile sync.Profile, interval time.Duration) Coordinator {
	return &defaultCoordinator{
		queue:    queue,
		profile:  profile,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// calculateInterval returns interval with a random jitter applied so that
// replicas started together do not all contend for the lock at once.
func calculateInterval(interval time.Duration) time.Duration {
	jitter := interval / jitterDivisor
	if jitter <= 0 {
		return interval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for scheduling jitter
	offset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	return interval + offset
}

// Start begins the periodic schedule
func (c *defaultCoordinator) Start(ctx context.Context) error {
	coordCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		close(c.done)
		slog.Info("Sync coordinator shutting down")
	}()

	next := calculateInterval(c.interval)
	slog.Info("Starting sync coordinator",
		"profile", c.profile.Name,
		"base_interval", c.interval,
		"next_run_in", next)

	timer := time.NewTimer(next)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			c.enqueue()
			timer.Reset(calculateInterval(c.interval))
		case <-coordCtx.Done():
			slog.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping sync coordinator")
		cancel()
		<-c.done
	}
	return nil
}

func (c *defaultCoordinator) enqueue() {
	if err := c.queue.Enqueue(c.profile); err != nil {
		slog.Error("Failed to enqueue scheduled sync", "profile", c.profile.Name, "error", err)
		return
	}
	slog.Debug("Scheduled sync enqueued", "profile", c.profile.Name)
}
