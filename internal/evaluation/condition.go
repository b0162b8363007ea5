package evaluation

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/trial-matcher/internal/scoring"
	"github.com/jonathan/trial-matcher/internal/synonyms"
	"github.com/sirupsen/logrus"
)

// ConditionMatch is the outcome of matching reported conditions to one required condition
type ConditionMatch struct {
	Matches     bool
	Confidence  float64
	Explanation string
	// MatchedCondition is the patient condition that satisfied the match, if any
	MatchedCondition string
}

// ConditionMatcher resolves patient-reported conditions against a required
// medical condition: direct containment first, then term mappings, then an
// unconfirmed result.
type ConditionMatcher struct {
	source synonyms.Source
	policy scoring.Policy
	logger *logrus.Logger
}

// NewConditionMatcher creates a matcher. A nil source disables the synonym tier.
func NewConditionMatcher(source synonyms.Source, policy scoring.Policy, logger *logrus.Logger) *ConditionMatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ConditionMatcher{source: source, policy: policy, logger: logger}
}

// Match reports whether any of patientConditions satisfies required
func (m *ConditionMatcher) Match(ctx context.Context, patientConditions []string, required string) ConditionMatch {
	req := synonyms.Normalize(required)

	for _, cond := range patientConditions {
		if req != "" && strings.Contains(synonyms.Normalize(cond), req) {
			return ConditionMatch{
				Matches:          true,
				Confidence:       1.0,
				Explanation:      fmt.Sprintf("Reported condition %q matches %s", cond, required),
				MatchedCondition: cond,
			}
		}
	}

	if cond, term, ok := m.matchSynonym(ctx, patientConditions, req); ok {
		return ConditionMatch{
			Matches:          true,
			Confidence:       m.policy.SynonymConfidence,
			Explanation:      fmt.Sprintf("Reported condition %q is commonly used for %s (via %q)", cond, required, term),
			MatchedCondition: cond,
		}
	}

	return ConditionMatch{
		Matches:     false,
		Confidence:  m.policy.UnconfirmedConditionConfidence,
		Explanation: fmt.Sprintf("Could not confirm %s from reported conditions", required),
	}
}

func (m *ConditionMatcher) matchSynonym(ctx context.Context, patientConditions []string, required string) (string, string, bool) {
	if m.source == nil || required == "" || len(patientConditions) == 0 {
		return "", "", false
	}

	mappings, err := m.source.Lookup(ctx, required)
	if err != nil {
		m.logger.WithError(err).WithField("condition", required).Warn("Term mapping lookup failed, continuing without synonyms")
		return "", "", false
	}

	for _, mapping := range mappings {
		if !synonyms.HasMedicalTerm(mapping, required) {
			continue
		}
		for _, pt := range mapping.PatientTerms {
			term := synonyms.Normalize(pt)
			if term == "" {
				continue
			}
			for _, cond := range patientConditions {
				if strings.Contains(synonyms.Normalize(cond), term) {
					return cond, pt, true
				}
			}
		}
	}
	return "", "", false
}
