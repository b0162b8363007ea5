// Package scoring aggregates per-criterion evaluations into a match score and
// eligibility status. Every threshold it and the evaluators use lives in Policy.
package scoring

import "fmt"

// Policy holds the confidence values and classification thresholds.
// The zero value is not usable; start from DefaultPolicy.
type Policy struct {
	// LikelyEligibleScore is the minimum score for likely_eligible, which also
	// requires no missing inclusion information.
	LikelyEligibleScore float64 `json:"likely_eligible_score"`
	// PossiblyEligibleScore is the minimum score for possibly_eligible
	PossiblyEligibleScore float64 `json:"possibly_eligible_score"`
	// NeedMoreInfoMissingCount is exceeded (strictly) to classify need_more_info
	NeedMoreInfoMissingCount int `json:"need_more_info_missing_count"`
	// ConfidentThreshold separates confident evaluations from guesses
	ConfidentThreshold float64 `json:"confident_threshold"`

	// UnrecognizedConfidence is assigned to criteria of kind other
	UnrecognizedConfidence float64 `json:"unrecognized_confidence"`
	// SynonymConfidence is assigned to conditions matched through term mappings
	SynonymConfidence float64 `json:"synonym_confidence"`
	// UnconfirmedConditionConfidence is assigned when no match could be confirmed
	UnconfirmedConditionConfidence float64 `json:"unconfirmed_condition_confidence"`
	// DoseComparisonConfidence is assigned when a medication dose or duration was compared
	DoseComparisonConfidence float64 `json:"dose_comparison_confidence"`
}

// DefaultPolicy returns the standard thresholds
func DefaultPolicy() Policy {
	return Policy{
		LikelyEligibleScore:            0.8,
		PossiblyEligibleScore:          0.6,
		NeedMoreInfoMissingCount:       3,
		ConfidentThreshold:             0.5,
		UnrecognizedConfidence:         0.3,
		SynonymConfidence:              0.85,
		UnconfirmedConditionConfidence: 0.7,
		DoseComparisonConfidence:       0.9,
	}
}

// Validate checks that the thresholds are internally consistent
func (p Policy) Validate() error {
	unit := []struct {
		name  string
		value float64
	}{
		{"likely_eligible_score", p.LikelyEligibleScore},
		{"possibly_eligible_score", p.PossiblyEligibleScore},
		{"confident_threshold", p.ConfidentThreshold},
		{"unrecognized_confidence", p.UnrecognizedConfidence},
		{"synonym_confidence", p.SynonymConfidence},
		{"unconfirmed_condition_confidence", p.UnconfirmedConditionConfidence},
		{"dose_comparison_confidence", p.DoseComparisonConfidence},
	}
	for _, f := range unit {
		if f.value < 0 || f.value > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", f.name, f.value)
		}
	}

	if p.PossiblyEligibleScore > p.LikelyEligibleScore {
		return fmt.Errorf("possibly_eligible_score (%v) must not exceed likely_eligible_score (%v)",
			p.PossiblyEligibleScore, p.LikelyEligibleScore)
	}
	if p.NeedMoreInfoMissingCount < 0 {
		return fmt.Errorf("need_more_info_missing_count must be non-negative, got %d", p.NeedMoreInfoMissingCount)
	}
	if p.UnrecognizedConfidence >= p.ConfidentThreshold {
		return fmt.Errorf("unrecognized_confidence (%v) must stay below confident_threshold (%v)",
			p.UnrecognizedConfidence, p.ConfidentThreshold)
	}
	return nil
}
