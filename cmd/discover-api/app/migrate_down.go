package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stacklok/site-discovery-server/database"
)

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Migrate the database down",
	Long: `Migrate the database schema down by reverting migrations.
WARNING: This operation can result in data loss. Use with caution.

Examples:
  # Migrate down by 1 step
  discover-api migrate down --config config.yaml --num-steps 1 --yes

  # Migrate down all the way (WARNING: destroys all data)
  discover-api migrate down --config config.yaml --yes`,
	RunE: runMigrateDown,
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	connString, target, err := migrationTarget(cmd)
	if err != nil {
		return err
	}

	steps, err := numSteps(cmd)
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf("WARNING: This will migrate %s down %d step(s) and may result in data loss. Continue?", target, steps)
	if steps == 0 {
		prompt = fmt.Sprintf("WARNING: This will migrate %s down ALL steps and may result in complete data loss. Continue?", target)
	}

	ok, err := confirmed(cmd, prompt)
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("Migration cancelled")
		return fmt.Errorf("migration cancelled by user")
	}

	if steps == 0 {
		slog.Warn("Migrating down all steps - this will remove all schema!")
	}
	if err := database.MigrateDown(connString, steps); err != nil {
		return err
	}

	slog.Info("Migration completed successfully")
	displayMigrationVersion(connString)
	return nil
}
