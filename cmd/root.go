// Package cmd is the sentify-engine command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	flagConfig  string
	flagEnvFile string
)

var rootCmd = &cobra.Command{
	Use:   "sentify-engine",
	Short: "News sentiment ingestion and notification service",
	Long: `sentify-engine ingests daily company news, classifies article sentiment,
stores a daily rating per company and notifies followers.

Run "serve" for the API and scheduler, or trigger ingestion steps directly.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal outside local development.
		if err := godotenv.Load(flagEnvFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading %s: %w", flagEnvFile, err)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sentify-engine %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "dotenv file loaded before the config")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(backlogCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(migrateCmd)
}

// Execute runs the command line with the build version.
func Execute(v string) {
	version = v
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
