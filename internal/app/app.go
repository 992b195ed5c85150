// Package app provides application lifecycle management for the discovery server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/site-discovery-server/internal/app/storage"
	"github.com/stacklok/site-discovery-server/internal/config"
	pkgsync "github.com/stacklok/site-discovery-server/internal/sync"
)

// DiscoverApp encapsulates all components needed to run the discovery server
// It provides lifecycle management and graceful shutdown capabilities
type DiscoverApp struct {
	config         *config.Config
	components     *AppComponents
	httpServer     *http.Server
	storageFactory storage.Factory

	// Lifecycle management
	mu         sync.Mutex
	cancelFunc context.CancelFunc
	workers    *errgroup.Group
}

// Start starts the background workers and the HTTP server.
// This method blocks until the HTTP server stops or encounters an error
func (app *DiscoverApp) Start(ctx context.Context) error {
	appCtx, cancel := context.WithCancel(ctx)
	workers, workerCtx := errgroup.WithContext(appCtx)

	app.mu.Lock()
	app.cancelFunc = cancel
	app.workers = workers
	app.mu.Unlock()

	workers.Go(func() error {
		return app.components.Queue.Run(workerCtx)
	})

	workers.Go(func() error {
		if err := app.components.SyncCoordinator.Start(workerCtx); err != nil {
			slog.Error("Sync coordinator failed", "error", err)
		}
		return nil
	})

	workers.Go(func() error {
		if _, err := app.components.Bootstrapper.Check(workerCtx); err != nil {
			slog.Error("Bootstrap check failed", "error", err)
		}
		return nil
	})

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application with the given timeout.
// It stops the coordinator, shuts down the HTTP server, then cancels the
// queue worker and waits for the active run to release its lock.
func (app *DiscoverApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	if err := app.components.SyncCoordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	serverErr := app.httpServer.Shutdown(shutdownCtx)

	app.mu.Lock()
	cancelFunc, workers := app.cancelFunc, app.workers
	app.mu.Unlock()

	if cancelFunc != nil {
		cancelFunc()
	}
	if workers != nil {
		if err := workers.Wait(); err != nil {
			slog.Error("Background worker failed", "error", err)
		}
	}

	app.Close()

	if serverErr != nil {
		return fmt.Errorf("server forced to shutdown: %w", serverErr)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// RunSync runs one sync in the foreground, bypassing the queue. The listing
// cache is cleared first so the run sees fresh pages.
func (app *DiscoverApp) RunSync(ctx context.Context, bootstrap bool) (*pkgsync.Result, error) {
	profile := pkgsync.PeriodicProfile(app.config.GetSync())
	if bootstrap {
		profile = pkgsync.BootstrapProfile(app.config.GetSync())
	}

	if err := app.components.Fetcher.ClearCache(ctx); err != nil {
		slog.Warn("Failed to clear listing cache", "error", err)
	}

	return app.components.StatusTracker.Run(ctx, profile)
}

// Close releases storage resources. It is safe to call more than once.
func (app *DiscoverApp) Close() {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.storageFactory != nil {
		app.storageFactory.Cleanup()
		app.storageFactory = nil
	}
}

// GetConfig returns the application configuration
func (app *DiscoverApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *DiscoverApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the wired application components
func (app *DiscoverApp) Components() *AppComponents {
	return app.components
}
