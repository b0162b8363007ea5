package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var rescreenCmd = &cobra.Command{
	Use:   "rescreen",
	Short: "Re-match stored patients against trials",
	Long: `Re-match stored patient profiles against a trial, extracting the trial's criteria at most
once. Without --patient-id every stored patient is rescreened. With --status every trial
with that recruitment status is rescreened in turn.`,
	RunE: runRescreen,
}

var (
	rescreenTrialID    string
	rescreenStatus     string
	rescreenPatientIDs []string
	rescreenOutFile    string
)

func init() {
	rescreenCmd.Flags().StringVar(&rescreenTrialID, "trial-id", "", "Trial to rescreen")
	rescreenCmd.Flags().StringVar(&rescreenStatus, "status", "", "Rescreen every trial with this recruitment status (e.g. RECRUITING)")
	rescreenCmd.Flags().StringSliceVar(&rescreenPatientIDs, "patient-id", nil, "Patient to rescreen (repeatable, defaults to all stored patients)")
	rescreenCmd.Flags().StringVarP(&rescreenOutFile, "out", "o", "", "Path to output JSON file (defaults to stdout)")

	rootCmd.AddCommand(rescreenCmd)
}

func runRescreen(cmd *cobra.Command, _ []string) error {
	if rescreenTrialID == "" && rescreenStatus == "" {
		return fmt.Errorf("must provide either --trial-id or --status")
	}
	if rescreenTrialID != "" && rescreenStatus != "" {
		return fmt.Errorf("--trial-id and --status are mutually exclusive; provide only one")
	}
	patientIDs, err := parsePatientIDs(rescreenPatientIDs)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cmd, appOptions{needDB: true})
	if err != nil {
		return err
	}
	defer a.Close()

	trialIDs := []string{rescreenTrialID}
	if rescreenStatus != "" {
		trialIDs, err = a.db.ListTrialIDsByStatus(ctx, rescreenStatus)
		if err != nil {
			return err
		}
		if len(trialIDs) == 0 {
			return fmt.Errorf("no trials with status %q", rescreenStatus)
		}
	}

	summary := make(map[string]any, len(trialIDs))
	for _, trialID := range trialIDs {
		items, err := a.service.Rescreen(ctx, trialID, patientIDs)
		if err != nil {
			return fmt.Errorf("failed to rescreen trial %s: %w", trialID, err)
		}
		results, failures := collectBatch(items)
		if verbose {
			a.printer.PrintBatchSummary("RESCREEN "+trialID, results, failures)
		}
		summary[trialID] = results
	}
	return writeJSON(rescreenOutFile, summary)
}

func parsePatientIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid patient-id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
