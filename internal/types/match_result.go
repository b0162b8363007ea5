package types

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus is the discrete eligibility outcome for a patient/trial pair
type MatchStatus string

// Match statuses
const (
	StatusLikelyEligible   MatchStatus = "likely_eligible"
	StatusPossiblyEligible MatchStatus = "possibly_eligible"
	StatusNeedMoreInfo     MatchStatus = "need_more_info"
	StatusLikelyIneligible MatchStatus = "likely_ineligible"
)

// MatchedCriterion is the outcome of evaluating one criterion against one patient.
// Missing implies !Matches and a low Confidence.
type MatchedCriterion struct {
	CriterionText string        `json:"criterion_text"`
	Kind          CriterionKind `json:"kind"`
	Exclusion     bool          `json:"exclusion,omitempty"`
	PatientValue  string        `json:"patient_value"`
	RequiredValue string        `json:"required_value"`
	Matches       bool          `json:"matches"`
	Confidence    float64       `json:"confidence"`
	Missing       bool          `json:"missing"`
	Explanation   string        `json:"explanation"`
}

// MatchResult is the aggregate outcome for one (patient, trial) pair
type MatchResult struct {
	PatientID          uuid.UUID          `json:"patient_id"`
	TrialID            string             `json:"trial_id"`
	MatchScore         float64            `json:"match_score"`
	Status             MatchStatus        `json:"status"`
	MatchedCriteria    []MatchedCriterion `json:"matched_criteria"`
	MissingInfo        []string           `json:"missing_info"`
	ExplanationSummary string             `json:"explanation_summary"`
	NextSteps          []string           `json:"next_steps"`
	NeedsManualReview  bool               `json:"needs_manual_review,omitempty"`
	ComputedAt         time.Time          `json:"computed_at"`
}

// Trial is the subset of a clinical trial record the matcher reads and writes
type Trial struct {
	ID                 string           `json:"trial_id"`
	Title              string           `json:"title"`
	Status             string           `json:"status,omitempty"`
	Phase              string           `json:"phase,omitempty"`
	Sponsor            string           `json:"sponsor,omitempty"`
	Conditions         []string         `json:"conditions,omitempty"`
	Interventions      []string         `json:"interventions,omitempty"`
	RawEligibilityText string           `json:"eligibility_text"`
	ParsedCriteria     *EligibilitySpec `json:"eligibility_criteria,omitempty"`
	CriteriaHash       string           `json:"criteria_hash,omitempty"`
	CriteriaSummary    string           `json:"criteria_summary,omitempty"`
	CriteriaParsedAt   *time.Time       `json:"criteria_parsed_at,omitempty"`
}
