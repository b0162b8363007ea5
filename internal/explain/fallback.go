package explain

import (
	"fmt"
	"strings"

	"github.com/jonathan/trial-matcher/internal/types"
)

// Fallback builds an explanation without the text-understanding service
func Fallback(in Input) Explanation {
	title := in.TrialTitle
	if title == "" {
		title = in.TrialID
	}
	if title == "" {
		title = "this trial"
	}

	matched, failed := partition(in.Criteria)

	var sb strings.Builder
	sb.WriteString(statusSentence(in.Status, title))
	if len(in.Criteria) > 0 {
		fmt.Fprintf(&sb, " You appear to meet %d of %d criteria.", len(matched), len(in.Criteria))
	}
	if len(failed) > 0 && failed[0].Explanation != "" {
		fmt.Fprintf(&sb, " Main concern: %s.", strings.TrimSuffix(failed[0].Explanation, "."))
	}
	if in.NeedsManualReview {
		sb.WriteString(" The eligibility criteria for this trial still need to be reviewed by the study team.")
	}

	return Explanation{
		Summary:   sb.String(),
		NextSteps: fallbackSteps(in),
	}
}

func statusSentence(status types.MatchStatus, title string) string {
	switch status {
	case types.StatusLikelyEligible:
		return fmt.Sprintf("You appear to meet the eligibility criteria for %s.", title)
	case types.StatusPossiblyEligible:
		return fmt.Sprintf("You may be eligible for %s, but some criteria could not be confirmed.", title)
	case types.StatusNeedMoreInfo:
		return fmt.Sprintf("We need more information to tell whether you are eligible for %s.", title)
	default:
		return fmt.Sprintf("You do not appear to meet the eligibility criteria for %s.", title)
	}
}

func fallbackSteps(in Input) []string {
	var steps []string
	switch in.Status {
	case types.StatusLikelyEligible:
		steps = []string{
			"Contact the study team to confirm your eligibility",
			"Bring your recent medical records to the screening visit",
		}
	case types.StatusPossiblyEligible:
		steps = []string{
			"Review the unconfirmed criteria with your doctor",
			"Contact the study team to ask about the criteria you may not meet",
		}
	case types.StatusNeedMoreInfo:
		steps = []string{"Update your profile and request a new match"}
	default:
		steps = []string{"Ask your doctor about other trials for your condition"}
	}

	if len(in.MissingInfo) > 0 {
		provide := "Provide: " + strings.Join(in.MissingInfo, "; ")
		steps = append([]string{provide}, steps...)
	}
	if len(steps) > maxNextSteps {
		steps = steps[:maxNextSteps]
	}
	return steps
}
