package scoring

import (
	"github.com/jonathan/trial-matcher/internal/types"
)

// ManualReviewMissingInfo is reported when a trial's criteria could not be parsed
const ManualReviewMissingInfo = "The trial's eligibility criteria could not be read automatically and need manual review"

// Outcome is the aggregate of all criterion evaluations for one patient and trial
type Outcome struct {
	Score             float64
	Status            types.MatchStatus
	Criteria          []types.MatchedCriterion
	MissingInfo       []string
	NeedsManualReview bool
}

// Aggregate combines inclusion and exclusion results. The inputs are not
// modified. The result depends only on the inputs and the policy.
//
// Exclusion results are inverted: a patient passes an exclusion criterion by
// not having the excluded attribute. Two kinds of exclusion result are left as
// evaluated instead:
//
//   - kind other never matches, so an unrecognized exclusion adds nothing to
//     the score rather than its confidence.
//   - a missing-data exclusion stays Matches=false with confidence 0. Absent
//     data is not taken as proof the excluded attribute is absent, so it adds
//     nothing to the score, and only inclusion gaps are reported in MissingInfo.
func (p Policy) Aggregate(inclusion, exclusion []types.MatchedCriterion) Outcome {
	criteria := make([]types.MatchedCriterion, 0, len(inclusion)+len(exclusion))
	missing := []string{}

	for _, mc := range inclusion {
		mc.Exclusion = false
		criteria = append(criteria, mc)
		if mc.Missing {
			missing = append(missing, mc.Explanation)
		}
	}
	for _, mc := range exclusion {
		mc.Exclusion = true
		if !mc.Missing && mc.Kind != types.KindOther {
			mc.Matches = !mc.Matches
		}
		criteria = append(criteria, mc)
	}

	score := Score(criteria)
	return Outcome{
		Score:       score,
		Status:      p.Classify(score, len(missing)),
		Criteria:    criteria,
		MissingInfo: missing,
	}
}

// AggregateSpec aggregates results for spec. A spec flagged for manual review
// with no criteria classifies as need_more_info with score 0.
func (p Policy) AggregateSpec(spec *types.EligibilitySpec, inclusion, exclusion []types.MatchedCriterion) Outcome {
	if spec == nil || (spec.NeedsManualReview && spec.IsEmpty()) {
		return Outcome{
			Score:             0,
			Status:            types.StatusNeedMoreInfo,
			Criteria:          []types.MatchedCriterion{},
			MissingInfo:       []string{ManualReviewMissingInfo},
			NeedsManualReview: true,
		}
	}

	out := p.Aggregate(inclusion, exclusion)
	out.NeedsManualReview = spec.NeedsManualReview
	return out
}

// Classify maps a score and missing-info count to a status. The checks run in
// a fixed order and the first that holds wins: missing information blocks
// likely_eligible regardless of score.
func (p Policy) Classify(score float64, missingCount int) types.MatchStatus {
	switch {
	case score >= p.LikelyEligibleScore && missingCount == 0:
		return types.StatusLikelyEligible
	case score >= p.PossiblyEligibleScore:
		return types.StatusPossiblyEligible
	case missingCount > p.NeedMoreInfoMissingCount:
		return types.StatusNeedMoreInfo
	default:
		return types.StatusLikelyIneligible
	}
}

// Score is the sum of confidences of matching criteria over the criteria
// count, or 0 with no criteria. Always within [0,1].
func Score(criteria []types.MatchedCriterion) float64 {
	if len(criteria) == 0 {
		return 0
	}
	var sum float64
	for _, mc := range criteria {
		if mc.Matches {
			sum += clamp(mc.Confidence)
		}
	}
	return clamp(sum / float64(len(criteria)))
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
