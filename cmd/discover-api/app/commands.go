// Package app provides the entry point for the site discovery server CLI.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/site-discovery-server/internal/config"
	"github.com/stacklok/site-discovery-server/internal/versions"
)

var rootCmd = &cobra.Command{
	Use:               "discover-api",
	DisableAutoGenTag: true,
	Short:             "Site discovery server",
	Long: `Site discovery server mirrors a forum category of community sites into a
searchable catalog and serves it over a read-only JSON API.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			slog.Error("Error displaying help", "error", err)
		}
	},
}

var initRoot sync.Once

// NewRootCmd returns the root command for the discovery server.
func NewRootCmd() *cobra.Command {
	initRoot.Do(func() {
		viper.SetEnvPrefix(config.EnvPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		viper.AutomaticEnv()

		rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
		err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
		if err != nil {
			slog.Error("Error binding debug flag", "error", err)
		}

		rootCmd.AddCommand(serveCmd)
		rootCmd.AddCommand(syncCmd)
		rootCmd.AddCommand(migrateCmd)
		rootCmd.AddCommand(tokenCmd)
		rootCmd.AddCommand(versionCmd)
	})
	return rootCmd
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := versions.GetVersionInfo()
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			return fmt.Errorf("failed to get format flag: %w", err)
		}

		if format == "json" {
			output, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to format version info as JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return nil
		}

		slog.Info("discover-api version",
			"version", info.Version,
			"commit", info.Commit,
			"built", info.BuildDate,
			"go", info.GoVersion,
			"platform", info.Platform,
			"release", info.IsRelease())
		return nil
	},
}

func init() {
	versionCmd.Flags().String("format", "", "Output format (json)")
}

// loadConfig reads the --config flag of cmd and loads the file it names.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	if configPath == "" {
		configPath = viper.GetString("config")
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
