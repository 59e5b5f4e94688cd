package cmd

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/sentify-hq/sentify-engine/pkg/database"
)

var flagSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		return withSQL(cfg.Database.URL(), func(db *sql.DB) error {
			return database.RunMigrations(db, logger)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back applied migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		return withSQL(cfg.Database.URL(), func(db *sql.DB) error {
			return database.RollbackMigrations(db, flagSteps, logger)
		})
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&flagSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}

func withSQL(url string, fn func(*sql.DB) error) error {
	db, err := database.OpenSQL(url)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
