package commands

import (
	"fmt"
	"os"

	"crepes-svc/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "crepes",
	Short: "Crepes & Coffee ordering backend",
	Long: `Backend for the Crepes & Coffee shop: catalog, carts, order placement,
Mercado Pago checkout and the admin API.

Configuration is read from the environment, optionally preloaded from an
env file. Flags on each command override selected values.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Env file to preload when present")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, createAdminCmd)
}

func loadConfig() *config.Config {
	return config.Load(envFile)
}

// cliLogger is quiet unless --verbose; the styled output is the interface
// for one-shot commands.
func cliLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
