package commands

import (
	"context"
	"fmt"
	"time"

	"crepes-svc/database"
	"crepes-svc/output"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	Long: `Create every table and index the service needs. Statements use
IF NOT EXISTS, so running it against an existing database is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd.Context())
	},
}

func runMigrate(ctx context.Context) error {
	cfg := loadConfig()
	logger := cliLogger()
	defer logger.Sync()

	output.Info("Connecting to %s:%s/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)
	db, err := database.InitDB(cfg, logger)
	if err != nil {
		output.Error("Could not connect to the database")
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if err := database.Migrate(ctx, db, logger); err != nil {
		output.Error("Schema migration failed")
		return fmt.Errorf("migrate: %w", err)
	}
	output.Success("Schema is up to date")
	return nil
}
