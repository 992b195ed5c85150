package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/site-discovery-server/internal/api"
	"github.com/stacklok/site-discovery-server/internal/app/storage"
	"github.com/stacklok/site-discovery-server/internal/auth"
	"github.com/stacklok/site-discovery-server/internal/config"
	"github.com/stacklok/site-discovery-server/internal/httpclient"
	"github.com/stacklok/site-discovery-server/internal/kv"
	"github.com/stacklok/site-discovery-server/internal/sources"
	"github.com/stacklok/site-discovery-server/internal/status"
	"github.com/stacklok/site-discovery-server/internal/store/database"
	pkgsync "github.com/stacklok/site-discovery-server/internal/sync"
	"github.com/stacklok/site-discovery-server/internal/sync/coordinator"
	"github.com/stacklok/site-discovery-server/internal/telemetry"
	"github.com/stacklok/site-discovery-server/internal/versions"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
	defaultUserAgent      = "site-discovery-server"
)

// DiscoverAppOptions is a function that configures the discovery app builder
type DiscoverAppOptions func(*discoverAppConfig) error

// discoverAppConfig collects the builder inputs.
// It supports dependency injection for testing while providing sensible defaults for production
type discoverAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	storageFactory storage.Factory
	fetcher        sources.Fetcher
	httpClient     httpclient.Client
	sleep          sources.SleepFunc
	queueSize      int

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	adminMiddleware func(http.Handler) http.Handler

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler
}

func baseConfig(opts ...DiscoverAppOptions) (*discoverAppConfig, error) {
	cfg := &discoverAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
		queueSize:      pkgsync.DefaultQueueSize,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return cfg, nil
}

// NewDiscoverApp wires storage, the listing client, the sync pipeline and the
// HTTP server from the given options.
func NewDiscoverApp(
	ctx context.Context,
	opts ...DiscoverAppOptions,
) (*DiscoverApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	// Single decision point for database vs memory storage
	if cfg.storageFactory == nil {
		var factoryOpts []storage.DatabaseFactoryOption
		if cfg.tracerProvider != nil {
			factoryOpts = append(factoryOpts, storage.WithTracer(cfg.tracerProvider.Tracer(database.StoreTracerName)))
		}
		cfg.storageFactory, err = storage.NewStorageFactory(ctx, cfg.config, factoryOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	// Ensure cleanup happens on error
	var cleanupNeeded = true
	defer func() {
		if cleanupNeeded && cfg.storageFactory != nil {
			cfg.storageFactory.Cleanup()
		}
	}()

	components, err := buildStorageComponents(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build storage components: %w", err)
	}

	if err := buildSyncComponents(cfg, components); err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	if cfg.adminMiddleware == nil {
		cfg.adminMiddleware, err = auth.NewAdminMiddleware(cfg.config.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to build admin middleware: %w", err)
		}
	}

	httpServer, err := buildHTTPServer(cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	// Cleanup is now handled by the app, not in defer
	cleanupNeeded = false

	return &DiscoverApp{
		config:         cfg.config,
		components:     components,
		httpServer:     httpServer,
		storageFactory: cfg.storageFactory,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) DiscoverAppOptions {
	return func(cfg *discoverAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) DiscoverAppOptions {
	return func(cfg *discoverAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, ok := strings.Cut(addr, ":")
		if !ok || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) DiscoverAppOptions {
	return func(cfg *discoverAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) DiscoverAppOptions {
	return func(cfg *discoverAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithFetcher allows injecting a custom listing fetcher (for testing)
func WithFetcher(f sources.Fetcher) DiscoverAppOptions {
	return func(cfg *discoverAppConfig) error {
		cfg.fetcher = f
		return nil
	}
}

// WithHTTPClient sets the client the listing fetcher uses
func WithHTTPClient(c httpclient.Client) DiscoverAppOptions {
	return func(cfg *discoverAppConfig) error {
		cfg.httpClient = c
		return nil
	}
}

// WithSleep replaces the delay function used between pages and retries (for testing)
func WithSleep(sleep sources.SleepFunc) DiscoverAppOptions {
	return func(cfg *discoverAppConfig) error {
		cfg.sleep = sleep
		return nil
	}
}

// WithQueueSize sets how many sync runs may wait behind the active one
func WithQueueSize(size int) DiscoverAppOptions {
	return func(cfg *discoverAppConfig) error {
		if size <= 0 {
			return fmt.Errorf("queue size must be positive, got %d", size)
		}
		cfg.queueSize = size
		return nil
	}
}

// WithAdminMiddleware allows injecting the guard for administrative endpoints
func WithAdminMiddleware(mw func(http.Handler) http.Handler) DiscoverAppOptions {
	return func(cfg *discoverAppConfig) error {
		cfg.adminMiddleware = mw
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for HTTP and sync metrics
func WithMeterProvider(mp metric.MeterProvider) DiscoverAppOptions {
	return func(cfg *discoverAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider
func WithTracerProvider(tp trace.TracerProvider) DiscoverAppOptions {
	return func(cfg *discoverAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler exposes h at /metrics
func WithMetricsHandler(h http.Handler) DiscoverAppOptions {
	return func(cfg *discoverAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// buildStorageComponents creates the site store, the key-value store and the
// listing fetcher on top of it.
func buildStorageComponents(ctx context.Context, b *discoverAppConfig) (*AppComponents, error) {
	slog.Info("Initializing storage components")

	siteStore, err := b.storageFactory.CreateSiteStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create site store: %w", err)
	}

	kvStore, err := b.storageFactory.CreateKVStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create key-value store: %w", err)
	}

	if b.fetcher == nil {
		b.fetcher, err = buildListingClient(b, kvStore)
		if err != nil {
			return nil, err
		}
	}

	return &AppComponents{
		SiteStore: siteStore,
		KVStore:   kvStore,
		Fetcher:   b.fetcher,
	}, nil
}

func buildListingClient(b *discoverAppConfig, cache kv.Store) (*sources.ListingClient, error) {
	src := b.config.Source
	syncCfg := b.config.GetSync()

	apiKey, err := src.GetAPIKey()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source API key: %w", err)
	}

	client := b.httpClient
	if client == nil {
		userAgent := src.UserAgent
		if userAgent == "" {
			userAgent = defaultUserAgent + "/" + versions.GetVersionInfo().Version
		}
		client = httpclient.NewDefaultClient(
			httpclient.WithTimeout(src.GetTimeout()),
			httpclient.WithUserAgent(userAgent),
		)
	}

	opts := []sources.Option{
		sources.WithHTTPClient(client),
		sources.WithCacheTTL(syncCfg.GetCacheTTL()),
		sources.WithRetryPolicy(sources.RetryPolicy{
			MaxRetries: syncCfg.GetMaxRetries(),
			BaseDelay:  syncCfg.GetBaseRetryDelay(),
		}),
		sources.WithEnabled(b.config.IsEnabled),
	}
	if b.sleep != nil {
		opts = append(opts, sources.WithSleep(b.sleep))
	}

	fetchMetrics, err := telemetry.NewFetchMetrics(b.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch metrics: %w", err)
	}
	if fetchMetrics != nil {
		opts = append(opts, sources.WithFetchMetrics(fetchMetrics))
	}

	listing, err := sources.NewListingClient(sources.ListingConfig{
		BaseURL:      src.BaseURL,
		CategorySlug: src.CategorySlug,
		CategoryID:   src.CategoryID,
		APIKey:       apiKey,
		APIUsername:  src.APIUsername,
	}, cache, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing client: %w", err)
	}

	slog.Info("Listing client configured", "base_url", src.BaseURL, "authenticated", apiKey != "")
	return listing, nil
}

// buildSyncComponents builds the syncer, its queue and everything that feeds the queue
func buildSyncComponents(b *discoverAppConfig, c *AppComponents) error {
	slog.Info("Initializing sync components")

	syncCfg := b.config.GetSync()

	syncOpts := []pkgsync.Option{
		pkgsync.WithEnabled(b.config.IsEnabled),
		pkgsync.WithPageDelay(syncCfg.GetPageDelay()),
		pkgsync.WithStateObserver(func(runID string, state pkgsync.State) {
			slog.Debug("Sync state changed", "run_id", runID, "state", state.String())
		}),
	}
	if b.sleep != nil {
		syncOpts = append(syncOpts, pkgsync.WithSleep(b.sleep))
	}
	if b.tracerProvider != nil {
		syncOpts = append(syncOpts, pkgsync.WithTracer(b.tracerProvider.Tracer(pkgsync.SyncerTracerName)))
	}

	syncMetrics, err := telemetry.NewSyncMetrics(b.meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create sync metrics: %w", err)
	}
	if syncMetrics != nil {
		syncOpts = append(syncOpts, pkgsync.WithSyncMetrics(syncMetrics))
		slog.Info("Sync metrics enabled")
	}

	siteMetrics, err := telemetry.NewSiteMetrics(b.meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create site metrics: %w", err)
	}
	if siteMetrics != nil {
		syncOpts = append(syncOpts, pkgsync.WithSiteMetrics(siteMetrics))
	}

	syncer, err := pkgsync.NewSyncer(c.Fetcher, c.SiteStore, c.KVStore, syncOpts...)
	if err != nil {
		return fmt.Errorf("failed to create syncer: %w", err)
	}

	periodic := pkgsync.PeriodicProfile(syncCfg)
	tracker := status.NewTracker(syncer, status.NewKVStatusPersistence(c.KVStore))
	queue := pkgsync.NewQueue(tracker, b.queueSize)

	c.Syncer = syncer
	c.StatusTracker = tracker
	c.Queue = queue
	c.Trigger = pkgsync.NewTrigger(c.Fetcher, queue, periodic)
	c.Bootstrapper = pkgsync.NewBootstrapper(
		c.SiteStore,
		c.KVStore,
		queue,
		pkgsync.BootstrapProfile(syncCfg),
		syncCfg.GetBootstrapCheckTTL(),
		b.config.IsEnabled,
	)
	c.SyncCoordinator = coordinator.New(queue, periodic, syncCfg.GetInterval())

	slog.Info("Sync components initialized successfully",
		"interval", syncCfg.GetInterval().String(),
		"page_delay", syncCfg.GetPageDelay().String())
	return nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(b *discoverAppConfig, c *AppComponents) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	if b.tracerProvider != nil {
		b.middlewares = append([]func(http.Handler) http.Handler{telemetry.TracingMiddleware(b.tracerProvider)}, b.middlewares...)
	}

	// Prepend metrics middleware to capture all requests including those rejected by the admin guard
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		b.middlewares = append([]func(http.Handler) http.Handler{metricsMiddleware}, b.middlewares...)
		slog.Info("HTTP metrics middleware enabled")
	}

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(b.middlewares...),
		api.WithAdminMiddleware(b.adminMiddleware),
		api.WithEnabled(b.config.IsEnabled),
	}
	if c.StatusTracker != nil {
		serverOpts = append(serverOpts, api.WithSyncStatus(c.StatusTracker))
	}
	if b.metricsHandler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.metricsHandler))
	}

	router := api.NewServer(c.SiteStore, c.Trigger, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
