// Package api assembles the HTTP surface of the site discovery server.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/site-discovery-server/internal/api/common"
	v1 "github.com/stacklok/site-discovery-server/internal/api/v1"
	"github.com/stacklok/site-discovery-server/internal/store"
)

// ServerOption configures the API server
type ServerOption func(*serverConfig)

type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	admin          func(http.Handler) http.Handler
	metricsHandler http.Handler
	statuses       v1.SyncStatusReader
	enabled        func() bool
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithAdminMiddleware sets the guard for administrative endpoints. Without
// it every administrative request is refused.
func WithAdminMiddleware(mw func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.admin = mw
	}
}

// WithMetricsHandler serves h at /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

// WithSyncStatus serves the stored sync status at /discover/sync/status
func WithSyncStatus(reader v1.SyncStatusReader) ServerOption {
	return func(cfg *serverConfig) {
		cfg.statuses = reader
	}
}

// WithEnabled sets the feature toggle for the discovery endpoints
func WithEnabled(enabled func() bool) ServerOption {
	return func(cfg *serverConfig) {
		cfg.enabled = enabled
	}
}

// NewServer creates the HTTP router
func NewServer(siteStore store.SiteStore, trigger v1.SyncTrigger, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{
		admin:   denyAll,
		enabled: func() bool { return true },
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Mount("/", HealthRouter(siteStore))
	if cfg.metricsHandler != nil {
		r.Handle("/metrics", cfg.metricsHandler)
	}
	var routerOpts []v1.RouterOption
	if cfg.statuses != nil {
		routerOpts = append(routerOpts, v1.WithStatusReader(cfg.statuses))
	}
	r.Mount("/discover", v1.Router(siteStore, trigger, cfg.admin, cfg.enabled, routerOpts...))

	return r
}

func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		common.WriteErrorResponse(w, "administrative access is not configured", http.StatusForbidden)
	})
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
