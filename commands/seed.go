package commands

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"crepes-svc/database"
	"crepes-svc/output"

	"github.com/spf13/cobra"
)

var (
	// Seed flags
	seedMigrate   bool
	adminName     string
	adminEmail    string
	adminPassword string

	// create-admin flags
	newAdminName     string
	newAdminEmail    string
	newAdminPassword string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the starter catalog and payment methods",
	Long: `Load the starter categories, products and payment methods, and create
the initial admin account. Existing rows are left untouched.

Examples:
  crepes seed
  crepes seed --migrate --admin-email owner@crepes.pe --admin-password s3cret-pass`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(cmd.Context())
	},
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin account",
	Long: `Create an admin account with the given credentials. Does nothing when
an account with that email already exists.

Examples:
  crepes create-admin --email owner@crepes.pe --password s3cret-pass --name Owner`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreateAdmin(cmd.Context())
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedMigrate, "migrate", false, "Create the schema before seeding")
	seedCmd.Flags().StringVar(&adminName, "admin-name", "Administrador", "Admin display name")
	seedCmd.Flags().StringVar(&adminEmail, "admin-email", "admin@crepesycoffee.com", "Admin email")
	seedCmd.Flags().StringVar(&adminPassword, "admin-password", "admin123", "Admin password")

	createAdminCmd.Flags().StringVar(&newAdminName, "name", "Administrador", "Admin display name")
	createAdminCmd.Flags().StringVar(&newAdminEmail, "email", "", "Admin email")
	createAdminCmd.Flags().StringVar(&newAdminPassword, "password", "", "Admin password")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")
}

func runSeed(ctx context.Context) error {
	cfg := loadConfig()
	logger := cliLogger()
	defer logger.Sync()

	db, err := database.InitDB(cfg, logger)
	if err != nil {
		output.Error("Could not connect to the database")
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if seedMigrate {
		if err := database.Migrate(ctx, db, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		output.Success("Schema is up to date")
	}

	res, err := database.Seed(ctx, db, logger)
	if err != nil {
		output.Error("Seeding failed")
		return fmt.Errorf("seed: %w", err)
	}

	output.Section("Seed")
	output.KeyValue("categories", res.Categories)
	output.KeyValue("products", res.Products)
	output.KeyValue("payment methods", res.PaymentMethods)

	return ensureAdmin(ctx, db, adminName, adminEmail, adminPassword)
}

func runCreateAdmin(ctx context.Context) error {
	if len(newAdminPassword) < 8 {
		return fmt.Errorf("--password must be at least 8 characters")
	}

	cfg := loadConfig()
	logger := cliLogger()
	defer logger.Sync()

	db, err := database.InitDB(cfg, logger)
	if err != nil {
		output.Error("Could not connect to the database")
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return ensureAdmin(ctx, db, newAdminName, newAdminEmail, newAdminPassword)
}

func ensureAdmin(ctx context.Context, db *sql.DB, name, email, password string) error {
	created, err := database.EnsureAdmin(ctx, db, name, email, password)
	if err != nil {
		output.Error("Could not create admin %s", email)
		return fmt.Errorf("create admin: %w", err)
	}
	if created {
		output.Success("Admin %s created", email)
	} else {
		output.Warning("Admin %s already exists, left unchanged", email)
	}
	return nil
}
