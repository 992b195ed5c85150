package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/site-discovery-server/internal/auth"
	"github.com/stacklok/site-discovery-server/internal/sources"
	sourcemocks "github.com/stacklok/site-discovery-server/internal/sources/mocks"
	pkgsync "github.com/stacklok/site-discovery-server/internal/sync"
)

const testAdminSecret = "app-test-secret"

// mockCoordinator implements the coordinator.Coordinator interface for testing
type mockCoordinator struct {
	mu          sync.Mutex
	startCalled bool
	stopCalled  bool
}

func (m *mockCoordinator) Start(ctx context.Context) error {
	m.mu.Lock()
	m.startCalled = true
	m.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (m *mockCoordinator) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalled = true
	return nil
}

func (m *mockCoordinator) wasStartCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalled
}

func (m *mockCoordinator) wasStopCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalled
}

// servePages makes fetcher return pages[n] for page n and an empty page past the end.
func servePages(fetcher *sourcemocks.MockFetcher, pages ...[]json.RawMessage) {
	fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, page int, _ ...sources.FetchOption) []json.RawMessage {
			if page < len(pages) {
				return pages[page]
			}
			return nil
		}).AnyTimes()
	fetcher.EXPECT().ClearCache(gomock.Any()).Return(nil).AnyTimes()
}

func freeAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

// createTestApp builds a DiscoverApp on memory storage with a mocked listing
// and a coordinator that never fires.
func createTestApp(t *testing.T, fetcher sources.Fetcher, addr string) (*DiscoverApp, *mockCoordinator) {
	t.Helper()

	app, err := NewDiscoverApp(context.Background(),
		WithConfig(createValidTestConfig()),
		WithFetcher(fetcher),
		WithAddress(addr),
		WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)
	require.NoError(t, err)

	coord := &mockCoordinator{}
	app.components.SyncCoordinator = coord
	return app, coord
}

func startApp(t *testing.T, app *DiscoverApp) <-chan error {
	t.Helper()
	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start(context.Background())
	}()
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", app.httpServer.Addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return errChan
}

func stopApp(t *testing.T, app *DiscoverApp, errChan <-chan error) {
	t.Helper()
	require.NoError(t, app.Stop(5*time.Second))
	select {
	case startErr := <-errChan:
		require.NoError(t, startErr)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}

func TestDiscoverApp_StartServesAndBootstraps(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	fetcher := sourcemocks.NewMockFetcher(ctrl)
	servePages(fetcher, []json.RawMessage{
		json.RawMessage(`{"id":1,"title":"Gardening","featured_link":"https://garden.example.com","tags":["locale-en"]}`),
		json.RawMessage(`{"id":2,"title":"Cooking","featured_link":"https://cook.example.com"}`),
	})

	app, coord := createTestApp(t, fetcher, freeAddress(t))
	errChan := startApp(t, app)

	resp, err := http.Get("http://" + app.httpServer.Addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// the empty catalog triggers a bootstrap run through the queue
	require.Eventually(t, func() bool {
		n, err := app.components.SiteStore.Count(context.Background())
		return err == nil && n == 2
	}, 5*time.Second, 10*time.Millisecond)

	resp, err = http.Get("http://" + app.httpServer.Addr + "/discover/sites")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Sites []map[string]any `json:"sites"`
		Meta  struct {
			Total int64 `json:"total"`
		} `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Sites, 2)
	assert.Equal(t, int64(2), body.Meta.Total)

	assert.True(t, coord.wasStartCalled(), "sync coordinator should be started")

	stopApp(t, app, errChan)
	assert.True(t, coord.wasStopCalled(), "sync coordinator should be stopped")
}

func TestDiscoverApp_AdminSync(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	fetcher := sourcemocks.NewMockFetcher(ctrl)
	servePages(fetcher)

	app, _ := createTestApp(t, fetcher, freeAddress(t))
	errChan := startApp(t, app)
	defer stopApp(t, app, errChan)

	url := "http://" + app.httpServer.Addr + "/discover/sync"

	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	token, err := auth.IssueAdminToken(testAdminSecret, "", "ops", time.Minute)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["success"])
}

func TestDiscoverApp_RunSync(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		bootstrap   bool
		wantProfile string
	}{
		{name: "periodic", wantProfile: pkgsync.ProfilePeriodic},
		{name: "bootstrap", bootstrap: true, wantProfile: pkgsync.ProfileBootstrap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			fetcher := sourcemocks.NewMockFetcher(ctrl)
			servePages(fetcher,
				[]json.RawMessage{json.RawMessage(`{"id":10,"title":"One","featured_link":"https://one.example"}`)},
				[]json.RawMessage{json.RawMessage(`{"id":11,"title":"Two","featured_link":"https://two.example"}`)},
			)

			app, _ := createTestApp(t, fetcher, "127.0.0.1:0")
			t.Cleanup(app.Close)

			result, err := app.RunSync(context.Background(), tt.bootstrap)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProfile, result.Profile)
			assert.Equal(t, 2, result.Synced)
			assert.Equal(t, 2, result.Pages)
			assert.Zero(t, result.Failed)
		})
	}
}

func TestDiscoverApp_StopBeforeStart(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	app, coord := createTestApp(t, sourcemocks.NewMockFetcher(ctrl), "127.0.0.1:0")

	require.NoError(t, app.Stop(time.Second))
	assert.True(t, coord.wasStopCalled())

	// Close after Stop is a no-op
	app.Close()
}

func TestDiscoverApp_StartError_AddressInUse(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	ctrl := gomock.NewController(t)
	fetcher := sourcemocks.NewMockFetcher(ctrl)
	servePages(fetcher)

	app, _ := createTestApp(t, fetcher, listener.Addr().String())

	err = app.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP server failed")
	require.NoError(t, app.Stop(time.Second))
}

func TestDiscoverApp_GetConfig(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	app, _ := createTestApp(t, sourcemocks.NewMockFetcher(ctrl), "127.0.0.1:0")
	t.Cleanup(app.Close)

	require.NotNil(t, app.GetConfig())
	assert.Equal(t, "https://forum.example.com", app.GetConfig().Source.BaseURL)
}
