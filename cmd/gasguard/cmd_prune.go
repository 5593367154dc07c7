package main

import (
	"encoding/json"
	"errors"

	"gasguard/common/database"
	"gasguard/internal/repository"
	"gasguard/internal/service"

	"github.com/spf13/cobra"
)

var pruneKeep int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete the oldest sensor readings",
	Long:  `Keep only the newest --keep readings and delete the rest (same as GET /api/sensor/cleanup).`,
	RunE:  runPrune,
}

func init() {
	pruneCmd.Flags().IntVar(&pruneKeep, "keep", 100, "number of newest readings to keep")
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, _ []string) error {
	if !cfg.DBEnabled {
		return errors.New("DB_ENABLED=false, in-memory readings cannot be pruned offline")
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

	pruner := service.NewPruner(repository.NewPostgresReadingsRepository(db, logger), nil, logger)
	result, err := pruner.Prune(cmd.Context(), pruneKeep)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
