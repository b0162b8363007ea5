package main

import (
	"context"
	"fmt"

	"github.com/jonathan/trial-matcher/internal/types"
	"github.com/spf13/cobra"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List stored match results for a trial",
	RunE:  runResults,
}

var (
	resultsTrialID string
	resultsStatus  string
	resultsOutFile string
)

func init() {
	resultsCmd.Flags().StringVar(&resultsTrialID, "trial-id", "", "Trial to list results for")
	resultsCmd.Flags().StringVar(&resultsStatus, "status", "", "Only results with this status (likely_eligible, possibly_eligible, need_more_info, likely_ineligible)")
	resultsCmd.Flags().StringVarP(&resultsOutFile, "out", "o", "", "Path to output JSON file (defaults to stdout)")

	_ = resultsCmd.MarkFlagRequired("trial-id")

	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, _ []string) error {
	status, err := parseStatus(resultsStatus)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cmd, appOptions{needDB: true})
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.db.ListMatchResultsForTrial(ctx, resultsTrialID, status)
	if err != nil {
		return err
	}
	if verbose {
		ptrs := make([]*types.MatchResult, len(results))
		for i := range results {
			ptrs[i] = &results[i]
		}
		a.printer.PrintBatchSummary("RESULTS "+resultsTrialID, ptrs, 0)
	}
	return writeJSON(resultsOutFile, results)
}

func parseStatus(s string) (types.MatchStatus, error) {
	switch status := types.MatchStatus(s); status {
	case "", types.StatusLikelyEligible, types.StatusPossiblyEligible, types.StatusNeedMoreInfo, types.StatusLikelyIneligible:
		return status, nil
	default:
		return "", fmt.Errorf("invalid status %q", s)
	}
}
