package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jonathan/trial-matcher/internal/matching"
	"github.com/jonathan/trial-matcher/internal/types"
	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match a patient profile against one or more trials",
	Long: `Evaluate a patient profile file against trials stored in the database. Criteria are
extracted on first use, each result is explained and stored, and the results are written
as JSON. Pass --trial-id more than once to match several trials concurrently.`,
	RunE: runMatch,
}

var (
	matchPatientFile string
	matchTrialIDs    []string
	matchOutFile     string
	matchSavePatient bool
)

func init() {
	matchCmd.Flags().StringVarP(&matchPatientFile, "patient", "p", "", "Path to patient profile JSON file")
	matchCmd.Flags().StringSliceVar(&matchTrialIDs, "trial-id", nil, "Trial to match against (repeatable)")
	matchCmd.Flags().StringVarP(&matchOutFile, "out", "o", "", "Path to output JSON file (defaults to stdout)")
	matchCmd.Flags().BoolVar(&matchSavePatient, "save-patient", false, "Store the profile so later rescreens include it")

	_ = matchCmd.MarkFlagRequired("patient")
	_ = matchCmd.MarkFlagRequired("trial-id")

	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, _ []string) error {
	patient, err := readPatientProfile(matchPatientFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cmd, appOptions{needDB: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if matchSavePatient {
		if _, err := a.db.UpsertPatientProfile(ctx, patient); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stderr, "Stored patient profile %s\n", patient.ID)
	}

	items := a.service.MatchMany(ctx, patient, matchTrialIDs)
	results, failures := collectBatch(items)
	for _, r := range results {
		if verbose {
			a.printer.PrintMatchResult(r)
		}
	}
	if len(matchTrialIDs) > 1 && verbose {
		a.printer.PrintBatchSummary("MATCH SUMMARY", results, failures)
	}

	if len(results) == 0 {
		return fmt.Errorf("no trial could be matched: %w", firstError(items))
	}
	if len(results) == 1 && len(matchTrialIDs) == 1 {
		return writeJSON(matchOutFile, results[0])
	}
	return writeJSON(matchOutFile, results)
}

// collectBatch returns the usable results of a batch and reports failures on stderr.
// A result that could not be stored is still usable.
func collectBatch(items []matching.BatchItem) ([]*types.MatchResult, int) {
	var results []*types.MatchResult
	failures := 0
	for _, it := range items {
		var persistErr *matching.PersistError
		switch {
		case it.Err == nil:
			results = append(results, it.Result)
		case it.Result != nil && errors.As(it.Err, &persistErr):
			_, _ = fmt.Fprintf(os.Stderr, "Warning: result for patient %s / trial %s was not stored: %v\n", it.PatientID, it.TrialID, it.Err)
			results = append(results, it.Result)
		default:
			_, _ = fmt.Fprintf(os.Stderr, "Error: patient %s / trial %s: %v\n", it.PatientID, it.TrialID, it.Err)
			failures++
		}
	}
	return results, failures
}

func firstError(items []matching.BatchItem) error {
	for _, it := range items {
		if it.Err != nil {
			return it.Err
		}
	}
	return errors.New("empty batch")
}
