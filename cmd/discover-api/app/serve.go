package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/site-discovery-server/internal/app"
	"github.com/stacklok/site-discovery-server/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the discovery API server",
	Long: `Start the discovery API server.

The server requires a configuration file (--config or DISCOVER_CONFIG) that specifies:
- The forum base URL and the category that lists community sites
- Sync interval, lock lifetimes and retry settings
- Optional PostgreSQL storage, admin token secret and telemetry

Without a database section the catalog is kept in memory.`,
	RunE: runServe,
}

const defaultGracefulTimeout = 30 * time.Second

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		slog.Error("Failed to bind address flag", "error", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	address := viper.GetString("address")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	slog.Info("Loaded configuration",
		"source", cfg.Source.BaseURL,
		"enabled", cfg.IsEnabled(),
		"database", cfg.Database != nil)

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	opts := []app.DiscoverAppOptions{
		app.WithConfig(cfg),
		app.WithAddress(address),
		app.WithMeterProvider(tel.MeterProvider()),
		app.WithTracerProvider(tel.TracerProvider()),
	}
	if h := tel.MetricsHandler(); h != nil {
		opts = append(opts, app.WithMetricsHandler(h))
	}

	discoverApp, err := app.NewDiscoverApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- discoverApp.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if stopErr := discoverApp.Stop(defaultGracefulTimeout); stopErr != nil {
			slog.Error("Failed to stop application", "error", stopErr)
		}
		return err
	case <-ctx.Done():
	}

	if err := discoverApp.Stop(defaultGracefulTimeout); err != nil {
		return err
	}
	return <-errCh
}
