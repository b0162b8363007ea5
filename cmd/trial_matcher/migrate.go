package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jonathan/trial-matcher/internal/db"
	"github.com/jonathan/trial-matcher/internal/synonyms"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|version]",
	Short:     "Apply or roll back database migrations",
	Long:      `Apply (up), roll back (down) or report (version) the embedded schema migrations. With --seed-vocabulary the built-in patient/medical term mappings replace the stored ones after migrating up.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "version"},
	RunE:      runMigrate,
}

var (
	migrateSeedVocabulary bool
)

func init() {
	migrateCmd.Flags().BoolVar(&migrateSeedVocabulary, "seed-vocabulary", false, "Load the built-in term mappings after migrating up")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}
	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	runner, err := db.NewMigrationRunner(cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer func() { _ = runner.Close() }()

	switch args[0] {
	case "up":
		if err := runner.Up(); err != nil {
			return err
		}
	case "down":
		return runner.Down()
	case "version":
		version, dirty, err := runner.Version()
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		_, _ = fmt.Fprintf(os.Stdout, "version %d (dirty: %t)\n", version, dirty)
		return nil
	}

	if !migrateSeedVocabulary {
		return nil
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	vocabulary, err := synonyms.DefaultSource()
	if err != nil {
		return fmt.Errorf("failed to load default vocabulary: %w", err)
	}
	if err := database.ReplaceTermMappings(ctx, vocabulary.Mappings()); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "Seeded %d term mappings\n", vocabulary.Len())
	return nil
}
