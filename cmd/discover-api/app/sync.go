package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stacklok/site-discovery-server/internal/app"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one site sync in the foreground",
	Long: `Run one site sync against the configured forum category and exit.

The run takes the same lock as the server's scheduled sync, so it is safe to
run while servers are up; if another run holds the lock this command exits
without crawling. Use --bootstrap for the first import into an empty catalog,
which uses the longer bootstrap lock and more rate-limit retries.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	syncCmd.Flags().Bool("bootstrap", false, "Use the bootstrap profile")
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootstrap, err := cmd.Flags().GetBool("bootstrap")
	if err != nil {
		return fmt.Errorf("failed to get bootstrap flag: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	discoverApp, err := app.NewDiscoverApp(ctx, app.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	defer discoverApp.Close()

	result, err := discoverApp.RunSync(ctx, bootstrap)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	output, err := json.MarshalIndent(struct {
		RunID     string `json:"run_id"`
		Profile   string `json:"profile"`
		Pages     int    `json:"pages"`
		Synced    int    `json:"synced"`
		Failed    int    `json:"failed"`
		Contended bool   `json:"contended"`
		Disabled  bool   `json:"disabled"`
		Duration  string `json:"duration"`
	}{
		RunID:     result.RunID,
		Profile:   result.Profile,
		Pages:     result.Pages,
		Synced:    result.Synced,
		Failed:    result.Failed,
		Contended: result.Contended,
		Disabled:  result.Disabled,
		Duration:  result.Duration.String(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format sync result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(output))

	if result.Contended {
		slog.Warn("Another sync holds the lock, nothing was crawled", "profile", result.Profile)
	}
	return nil
}
