package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jonathan/trial-matcher/internal/types"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load trials and patient profiles into the database",
	Long: `Load a JSON array of trial records and/or a JSON array of patient profiles into the
database. Existing trials keep their extracted criteria until their text changes and they
are matched again; existing patients are replaced.`,
	RunE: runImport,
}

var (
	importTrialsFile   string
	importPatientsFile string
)

func init() {
	importCmd.Flags().StringVar(&importTrialsFile, "trials", "", "Path to JSON array of trial records")
	importCmd.Flags().StringVar(&importPatientsFile, "patients", "", "Path to JSON array of patient profiles")

	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	if importTrialsFile == "" && importPatientsFile == "" {
		return fmt.Errorf("must provide --trials and/or --patients")
	}

	var trials []types.Trial
	if importTrialsFile != "" {
		if err := readJSONFile(importTrialsFile, &trials); err != nil {
			return err
		}
		for i, t := range trials {
			if t.ID == "" {
				return fmt.Errorf("trial %d in %s has no trial_id", i, importTrialsFile)
			}
		}
	}
	var patients []types.PatientProfile
	if importPatientsFile != "" {
		if err := readJSONFile(importPatientsFile, &patients); err != nil {
			return err
		}
		for i := range patients {
			if err := patients[i].Validate(); err != nil {
				return fmt.Errorf("patient %d in %s is invalid: %w", i, importPatientsFile, err)
			}
		}
	}

	ctx := context.Background()
	a, err := newApp(ctx, cmd, appOptions{needDB: true})
	if err != nil {
		return err
	}
	defer a.Close()

	for i := range trials {
		if err := a.db.UpsertTrial(ctx, &trials[i]); err != nil {
			return err
		}
	}
	for i := range patients {
		id, err := a.db.UpsertPatientProfile(ctx, &patients[i])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "Stored patient %s\n", id)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Imported %d trials and %d patients\n", len(trials), len(patients))
	return nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
