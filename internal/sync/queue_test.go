package sync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/site-discovery-server/internal/kv"
	sourcemocks "github.com/stacklok/site-discovery-server/internal/sources/mocks"
	"github.com/stacklok/site-discovery-server/internal/sites"
	"github.com/stacklok/site-discovery-server/internal/store/inmemory"
	storemocks "github.com/stacklok/site-discovery-server/internal/store/mocks"
	"github.com/stacklok/site-discovery-server/internal/sync"
	syncmocks "github.com/stacklok/site-discovery-server/internal/sync/mocks"
)

var bootstrapProfile = sync.Profile{
	Name:       sync.ProfileBootstrap,
	LockKey:    sync.BootstrapLockKey,
	LockTTL:    time.Hour,
	MaxRetries: 5,
}

type enqueueRecorder struct {
	profiles []sync.Profile
	err      error
}

func (e *enqueueRecorder) Enqueue(p sync.Profile) error {
	if e.err != nil {
		return e.err
	}
	e.profiles = append(e.profiles, p)
	return nil
}

func TestQueue_RunsInOrder(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	runner := syncmocks.NewMockRunner(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	gomock.InOrder(
		runner.EXPECT().Run(gomock.Any(), bootstrapProfile).Return(&sync.Result{}, nil),
		runner.EXPECT().Run(gomock.Any(), testProfile).DoAndReturn(
			func(context.Context, sync.Profile) (*sync.Result, error) {
				close(done)
				return nil, errors.New("failed run is logged")
			}),
	)

	q := sync.NewQueue(runner, 4)
	require.NoError(t, q.Enqueue(bootstrapProfile))
	require.NoError(t, q.Enqueue(testProfile))
	assert.Equal(t, 2, q.Pending())

	errCh := make(chan error, 1)
	go func() { errCh <- q.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queued runs did not execute")
	}
	cancel()
	require.NoError(t, <-errCh)

	require.ErrorIs(t, q.Enqueue(testProfile), sync.ErrQueueClosed)
}

func TestQueue_SurvivesPanickingRun(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	runner := syncmocks.NewMockRunner(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	gomock.InOrder(
		runner.EXPECT().Run(gomock.Any(), bootstrapProfile).DoAndReturn(
			func(context.Context, sync.Profile) (*sync.Result, error) {
				panic("bad record")
			}),
		runner.EXPECT().Run(gomock.Any(), testProfile).DoAndReturn(
			func(context.Context, sync.Profile) (*sync.Result, error) {
				close(done)
				return &sync.Result{}, nil
			}),
	)

	q := sync.NewQueue(runner, 4)
	require.NoError(t, q.Enqueue(bootstrapProfile))
	require.NoError(t, q.Enqueue(testProfile))

	errCh := make(chan error, 1)
	go func() { errCh <- q.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker stopped after a panicking run")
	}
	cancel()
	require.NoError(t, <-errCh)
}

func TestQueue_EnqueueDoesNotBlock(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	q := sync.NewQueue(syncmocks.NewMockRunner(ctrl), 1)

	require.NoError(t, q.Enqueue(testProfile))
	require.ErrorIs(t, q.Enqueue(testProfile), sync.ErrQueueFull)
}

func TestTrigger_TriggerSync(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		clearErr   error
		enqueueErr error
		wantErr    bool
	}{
		{name: "clears cache and enqueues"},
		{name: "cache failure still enqueues", clearErr: errors.New("kv down")},
		{name: "enqueue failure is returned", enqueueErr: sync.ErrQueueFull, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			fetcher := sourcemocks.NewMockFetcher(ctrl)
			fetcher.EXPECT().ClearCache(gomock.Any()).Return(tt.clearErr)
			queue := &enqueueRecorder{err: tt.enqueueErr}

			err := sync.NewTrigger(fetcher, queue, testProfile).TriggerSync(context.Background())
			if tt.wantErr {
				require.ErrorIs(t, err, sync.ErrQueueFull)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []sync.Profile{testProfile}, queue.profiles)
		})
	}
}

func TestBootstrapper_Check(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("empty catalog enqueues once", func(t *testing.T) {
		t.Parallel()

		flags := kv.NewMemoryStore()
		queue := &enqueueRecorder{}
		b := sync.NewBootstrapper(inmemory.New(), flags, queue, bootstrapProfile, 5*time.Minute, nil)

		enqueued, err := b.Check(ctx)
		require.NoError(t, err)
		assert.True(t, enqueued)

		// A second process within the window sees the flag.
		enqueued, err = b.Check(ctx)
		require.NoError(t, err)
		assert.False(t, enqueued)
		assert.Equal(t, []sync.Profile{bootstrapProfile}, queue.profiles)

		_, set, err := flags.Get(ctx, sync.BootstrapFlagKey)
		require.NoError(t, err)
		assert.True(t, set)
	})

	t.Run("populated catalog does nothing", func(t *testing.T) {
		t.Parallel()

		siteStore := inmemory.New()
		_, err := siteStore.Upsert(ctx, 1, sites.Fields{Name: "One", URL: "https://one.example"})
		require.NoError(t, err)

		flags := kv.NewMemoryStore()
		queue := &enqueueRecorder{}
		b := sync.NewBootstrapper(siteStore, flags, queue, bootstrapProfile, 5*time.Minute, nil)

		enqueued, err := b.Check(ctx)
		require.NoError(t, err)
		assert.False(t, enqueued)
		assert.Empty(t, queue.profiles)

		_, set, err := flags.Get(ctx, sync.BootstrapFlagKey)
		require.NoError(t, err)
		assert.False(t, set, "flag is only claimed for an empty catalog")
	})

	t.Run("disabled does nothing", func(t *testing.T) {
		t.Parallel()

		queue := &enqueueRecorder{}
		b := sync.NewBootstrapper(inmemory.New(), kv.NewMemoryStore(), queue, bootstrapProfile,
			5*time.Minute, func() bool { return false })

		enqueued, err := b.Check(ctx)
		require.NoError(t, err)
		assert.False(t, enqueued)
		assert.Empty(t, queue.profiles)
	})

	t.Run("flag expires", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		flags := kv.NewMemoryStore(kv.WithClock(func() time.Time { return now }))
		queue := &enqueueRecorder{}
		b := sync.NewBootstrapper(inmemory.New(), flags, queue, bootstrapProfile, 5*time.Minute, nil)

		enqueued, err := b.Check(ctx)
		require.NoError(t, err)
		assert.True(t, enqueued)

		now = now.Add(6 * time.Minute)
		enqueued, err = b.Check(ctx)
		require.NoError(t, err)
		assert.True(t, enqueued)
		assert.Len(t, queue.profiles, 2)
	})

	t.Run("catalog filled after the claim", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		siteStore := storemocks.NewMockSiteStore(ctrl)
		gomock.InOrder(
			siteStore.EXPECT().Count(gomock.Any()).Return(int64(0), nil),
			siteStore.EXPECT().Count(gomock.Any()).Return(int64(1), nil),
		)

		flags := kv.NewMemoryStore()
		queue := &enqueueRecorder{}
		b := sync.NewBootstrapper(siteStore, flags, queue, bootstrapProfile, 5*time.Minute, nil)

		enqueued, err := b.Check(ctx)
		require.NoError(t, err)
		assert.False(t, enqueued)
		assert.Empty(t, queue.profiles)

		_, set, err := flags.Get(ctx, sync.BootstrapFlagKey)
		require.NoError(t, err)
		assert.True(t, set, "flag stays claimed")
	})

	t.Run("enqueue failure", func(t *testing.T) {
		t.Parallel()

		queue := &enqueueRecorder{err: sync.ErrQueueFull}
		b := sync.NewBootstrapper(inmemory.New(), kv.NewMemoryStore(), queue, bootstrapProfile, 5*time.Minute, nil)

		_, err := b.Check(ctx)
		require.ErrorIs(t, err, sync.ErrQueueFull)
	})
}
