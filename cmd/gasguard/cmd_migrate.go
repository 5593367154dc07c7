package main

import (
	"errors"
	"fmt"

	"gasguard/common/database"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if !cfg.DBEnabled {
		return errors.New("DB_ENABLED=false, nothing to migrate")
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	applied, err := runMigrations(cmd.Context(), db, logger)
	if err != nil {
		return err
	}
	logger.Info("Migrations finished", zap.Int("applied", applied))
	fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
	return nil
}
