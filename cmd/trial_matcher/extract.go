package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jonathan/trial-matcher/internal/types"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract structured eligibility criteria from trial text",
	Long: `Extract typed inclusion and exclusion criteria from free-text eligibility criteria.

With --trial-id the trial is loaded from the database and the criteria are stored on it;
stored criteria are reused unless the text changed or --force is set. With --in the text
is read from a file and the criteria are written to --out (or stdout).`,
	RunE: runExtract,
}

var (
	extractTrialID string
	extractInFile  string
	extractOutFile string
	extractForce   bool
)

func init() {
	extractCmd.Flags().StringVar(&extractTrialID, "trial-id", "", "Trial to extract criteria for (loaded from the database)")
	extractCmd.Flags().StringVarP(&extractInFile, "in", "i", "", "Path to eligibility criteria text file")
	extractCmd.Flags().StringVarP(&extractOutFile, "out", "o", "", "Path to output JSON file (defaults to stdout)")
	extractCmd.Flags().BoolVar(&extractForce, "force", false, "Re-extract even when stored criteria are current")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, _ []string) error {
	if extractTrialID != "" && extractInFile != "" {
		return fmt.Errorf("cannot use --trial-id with --in")
	}
	if extractTrialID == "" && extractInFile == "" {
		return fmt.Errorf("must provide either --trial-id or --in")
	}

	ctx := context.Background()
	a, err := newApp(ctx, cmd, appOptions{needDB: extractTrialID != "", needLLM: true})
	if err != nil {
		return err
	}
	defer a.Close()

	var spec *types.EligibilitySpec
	if extractInFile != "" {
		text, err := os.ReadFile(extractInFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		spec = a.extractor.Extract(ctx, string(text))
	} else {
		spec, err = a.service.Extract(ctx, extractTrialID, extractForce)
		if err != nil {
			return err
		}
	}

	if verbose {
		a.printer.PrintEligibilitySpec(spec)
	}
	if spec.NeedsManualReview {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: criteria need manual review: %s\n", spec.ReviewReason)
	}
	return writeJSON(extractOutFile, spec)
}
