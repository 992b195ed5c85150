package app

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stacklok/site-discovery-server/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool",
	Long:  `Database migration tool for managing schema versions. Use with 'up' or 'down' subcommands.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Usage()
	},
}

func init() {
	migrateCmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	migrateCmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate (0 = all)")
	migrateCmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format, required)")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

// migrationTarget loads the config and returns the database connection
// string and a printable description of the target.
func migrationTarget(cmd *cobra.Command) (string, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", "", err
	}
	if cfg.Database == nil {
		return "", "", fmt.Errorf("database configuration is required")
	}

	connString, err := cfg.Database.GetConnectionString()
	if err != nil {
		return "", "", fmt.Errorf("failed to build connection string: %w", err)
	}

	target := fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	return connString, target, nil
}

// numSteps returns the --num-steps flag as an int.
func numSteps(cmd *cobra.Command) (int, error) {
	n, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return 0, fmt.Errorf("failed to get num-steps flag: %w", err)
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("number of steps exceeds maximum allowed value")
	}
	return int(n), nil // #nosec G115 -- bounded above
}

// confirmed reports whether --yes was given or the user answered yes to prompt.
func confirmed(cmd *cobra.Command, prompt string) (bool, error) {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return false, fmt.Errorf("failed to get yes flag: %w", err)
	}
	if yes {
		return true, nil
	}
	return confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt), nil
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s (yes/no): ", prompt)
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "yes" || response == "y"
}

func displayMigrationVersion(connString string) {
	m, err := database.NewFromConnectionString(connString)
	if err != nil {
		slog.Warn("Unable to open migrator to read version", "error", err)
		return
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			slog.Warn("Failed to close migrator", "source_error", srcErr, "database_error", dbErr)
		}
	}()

	version, dirty, err := m.Version()
	switch {
	case err != nil:
		slog.Info("Database schema has no applied migrations")
	case dirty:
		slog.Warn("Database is in a dirty state", "version", version)
	default:
		slog.Info("Current migration version", "version", version)
	}
}
