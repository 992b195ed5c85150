package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stacklok/site-discovery-server/database"
)

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending database migrations",
	Long: `Apply pending database migrations to bring the schema up to date.
This command reads the database connection parameters from the config file
and applies all migrations that haven't been run yet, or --num-steps of them.`,
	RunE: runMigrateUp,
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	connString, target, err := migrationTarget(cmd)
	if err != nil {
		return err
	}

	steps, err := numSteps(cmd)
	if err != nil {
		return err
	}

	ok, err := confirmed(cmd, fmt.Sprintf("About to apply migrations to database %s. Continue?", target))
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("Migration cancelled by user")
		return nil
	}

	slog.Info("Applying database migrations", "target", target, "steps", steps)
	if err := database.MigrateUpSteps(connString, steps); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	displayMigrationVersion(connString)
	return nil
}
