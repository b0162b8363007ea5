package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jonathan/trial-matcher/internal/explain"
	"github.com/jonathan/trial-matcher/internal/schemas"
	"github.com/jonathan/trial-matcher/internal/types"
	"github.com/spf13/cobra"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a patient against criteria files without a database",
	Long: `Evaluate a patient profile file against an eligibility criteria JSON file (as written by
"extract --in") and print the match result. Nothing is stored. The explanation is generated
when an API key is configured and falls back to a template otherwise.`,
	RunE: runEvaluate,
}

var (
	evaluateCriteriaFile string
	evaluatePatientFile  string
	evaluateTrialTitle   string
	evaluateOutFile      string
)

func init() {
	evaluateCmd.Flags().StringVarP(&evaluateCriteriaFile, "criteria", "c", "", "Path to eligibility criteria JSON file")
	evaluateCmd.Flags().StringVarP(&evaluatePatientFile, "patient", "p", "", "Path to patient profile JSON file")
	evaluateCmd.Flags().StringVar(&evaluateTrialTitle, "title", "", "Trial title used in the explanation")
	evaluateCmd.Flags().StringVarP(&evaluateOutFile, "out", "o", "", "Path to output JSON file (defaults to stdout)")

	_ = evaluateCmd.MarkFlagRequired("criteria")
	_ = evaluateCmd.MarkFlagRequired("patient")

	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	spec, err := readCriteriaFile(evaluateCriteriaFile)
	if err != nil {
		return err
	}
	patient, err := readPatientProfile(evaluatePatientFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	result := a.evaluate(ctx, spec, patient, evaluateTrialTitle)
	if verbose {
		a.printer.PrintMatchResult(result)
	}
	return writeJSON(evaluateOutFile, result)
}

// evaluate scores and explains a match without touching any store
func (a *app) evaluate(ctx context.Context, spec *types.EligibilitySpec, patient *types.PatientProfile, title string) *types.MatchResult {
	policy := a.cfg.ScoringPolicy()
	inclusion, exclusion := a.evaluator.EvaluateSpec(ctx, spec, patient)
	outcome := policy.AggregateSpec(spec, inclusion, exclusion)

	exp := a.explainer.Explain(ctx, explain.Input{
		TrialTitle:        title,
		Status:            outcome.Status,
		Criteria:          outcome.Criteria,
		MissingInfo:       outcome.MissingInfo,
		NeedsManualReview: outcome.NeedsManualReview,
	})

	return &types.MatchResult{
		PatientID:          patient.ID,
		MatchScore:         outcome.Score,
		Status:             outcome.Status,
		MatchedCriteria:    outcome.Criteria,
		MissingInfo:        outcome.MissingInfo,
		ExplanationSummary: exp.Summary,
		NextSteps:          exp.NextSteps,
		NeedsManualReview:  outcome.NeedsManualReview,
		ComputedAt:         time.Now().UTC(),
	}
}

// readCriteriaFile loads a criteria document, checking it against the criteria schema first
func readCriteriaFile(path string) (*types.EligibilitySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read criteria file: %w", err)
	}
	if err := schemas.ValidateEligibilitySpec(data); err != nil {
		return nil, fmt.Errorf("criteria file does not validate against schema: %w", err)
	}
	var spec types.EligibilitySpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse criteria file: %w", err)
	}
	return &spec, nil
}
