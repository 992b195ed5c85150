package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stacklok/site-discovery-server/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an admin token for the sync endpoint",
	Long: `Issue a signed admin bearer token using the configured admin secret.

The token is printed to stdout and can be sent as
"Authorization: Bearer <token>" to POST /discover/sync.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	tokenCmd.Flags().String("subject", "operator", "Subject recorded in the token")
	tokenCmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
}

func runToken(cmd *cobra.Command, _ []string) error {
	subject, err := cmd.Flags().GetString("subject")
	if err != nil {
		return fmt.Errorf("failed to get subject flag: %w", err)
	}
	ttl, err := cmd.Flags().GetDuration("ttl")
	if err != nil {
		return fmt.Errorf("failed to get ttl flag: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	secret, err := cfg.Auth.GetAdminSecret()
	if err != nil {
		return fmt.Errorf("failed to resolve admin secret: %w", err)
	}

	issuer := ""
	if cfg.Auth != nil {
		issuer = cfg.Auth.Issuer
	}

	token, err := auth.IssueAdminToken(secret, issuer, subject, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
