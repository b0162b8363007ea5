// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/trial-matcher/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintEligibilitySpec outputs the extracted criteria grouped by list.
func (p *Printer) PrintEligibilitySpec(spec *types.EligibilitySpec) {
	if spec == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(spec.Summary())
	sb.WriteString("\n")
	if spec.NeedsManualReview && spec.ReviewReason != "" {
		sb.WriteString(fmt.Sprintf("Reason: %s\n", spec.ReviewReason))
	}

	writeCriteria(&sb, "Inclusion", spec.Inclusion)
	writeCriteria(&sb, "Exclusion", spec.Exclusion)

	p.printBox("ELIGIBILITY CRITERIA", strings.TrimSuffix(sb.String(), "\n"))
}

func writeCriteria(sb *strings.Builder, label string, criteria []types.Criterion) {
	if len(criteria) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("\n%s:\n", label))
	count := min(len(criteria), maxItemsToShow)
	for i := 0; i < count; i++ {
		c := criteria[i]
		sb.WriteString(fmt.Sprintf("  • [%s] %s\n", c.Kind, c.RawText))
	}
	if len(criteria) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(criteria)-maxItemsToShow))
	}
}

// PrintMatchResult outputs the status, score and per-criterion outcomes of a match.
func (p *Printer) PrintMatchResult(result *types.MatchResult) {
	if result == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Trial:   %s\n", result.TrialID))
	sb.WriteString(fmt.Sprintf("Status:  %s\n", result.Status))
	sb.WriteString(fmt.Sprintf("Score:   %.2f\n", result.MatchScore))
	if result.NeedsManualReview {
		sb.WriteString("Manual review required\n")
	}

	if len(result.MatchedCriteria) > 0 {
		sb.WriteString("\nCriteria:\n")
		for _, c := range result.MatchedCriteria {
			sb.WriteString(fmt.Sprintf("  %s %s\n", outcomeMark(c), c.CriterionText))
		}
	}

	if len(result.MissingInfo) > 0 {
		sb.WriteString("\nMissing information:\n")
		for _, m := range result.MissingInfo {
			sb.WriteString(fmt.Sprintf("  • %s\n", m))
		}
	}

	if result.ExplanationSummary != "" {
		sb.WriteString("\n")
		sb.WriteString(result.ExplanationSummary)
		sb.WriteString("\n")
	}

	p.printBox("MATCH RESULT", strings.TrimSuffix(sb.String(), "\n"))
}

// outcomeMark is ✓ for a satisfied criterion, ✗ for a failed one and ? when data is missing
func outcomeMark(c types.MatchedCriterion) string {
	switch {
	case c.Missing:
		return "?"
	case c.Matches:
		return "✓"
	default:
		return "✗"
	}
}

// PrintBatchSummary outputs the status counts of a batch of matches.
func (p *Printer) PrintBatchSummary(title string, results []*types.MatchResult, failures int) {
	if len(results) == 0 && failures == 0 {
		return
	}

	counts := make(map[types.MatchStatus]int)
	for _, r := range results {
		counts[r.Status]++
	}

	var sb strings.Builder
	for _, status := range []types.MatchStatus{
		types.StatusLikelyEligible,
		types.StatusPossiblyEligible,
		types.StatusNeedMoreInfo,
		types.StatusLikelyIneligible,
	} {
		sb.WriteString(fmt.Sprintf("%-20s %d\n", status, counts[status]))
	}
	if failures > 0 {
		sb.WriteString(fmt.Sprintf("%-20s %d\n", "failed", failures))
	}

	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}
