package cmd

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/evoface/internal/config"
	"github.com/kozaktomas/evoface/internal/database/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and list the applied ones",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	pool := postgres.GetGlobalPool()
	defer pool.Close()

	applied, err := pool.MigrationsApplied(cmd.Context())
	if err != nil {
		return err
	}
	for _, name := range applied {
		fmt.Printf("  %s\n", name)
	}
	fmt.Printf("%d migrations applied\n", len(applied))
	return nil
}
