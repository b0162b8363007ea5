// Package evaluation evaluates a patient profile against individual eligibility
// criteria. Each evaluation reports whether the criterion is met and how
// certain that answer is. Missing patient data is reported, never failed.
package evaluation

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/trial-matcher/internal/scoring"
	"github.com/jonathan/trial-matcher/internal/synonyms"
	"github.com/jonathan/trial-matcher/internal/types"
	"github.com/sirupsen/logrus"
)

// Evaluator dispatches criteria to the evaluator for their kind
type Evaluator struct {
	policy     scoring.Policy
	conditions *ConditionMatcher
}

// NewEvaluator creates an evaluator. source may be nil.
func NewEvaluator(policy scoring.Policy, source synonyms.Source, logger *logrus.Logger) *Evaluator {
	return &Evaluator{
		policy:     policy,
		conditions: NewConditionMatcher(source, policy, logger),
	}
}

// Evaluate evaluates one criterion. A criterion whose params disagree with its
// kind is evaluated as other.
func (e *Evaluator) Evaluate(ctx context.Context, c types.Criterion, patient *types.PatientProfile) types.MatchedCriterion {
	if patient == nil {
		patient = &types.PatientProfile{}
	}
	if c.Params == nil || c.Params.Kind() != c.Kind {
		return e.EvaluateOther(c)
	}

	switch p := c.Params.(type) {
	case types.AgeParams:
		return EvaluateAge(c, p, patient)
	case types.ConditionParams:
		return e.EvaluateCondition(ctx, c, p, patient)
	case types.MedicationParams:
		return e.EvaluateMedication(c, p, patient)
	case types.LabValueParams:
		return EvaluateLabValue(c, p, patient)
	case types.OtherParams:
		return e.EvaluateOther(c)
	}
	return e.EvaluateOther(c)
}

// EvaluateSpec evaluates every criterion of spec in order
func (e *Evaluator) EvaluateSpec(ctx context.Context, spec *types.EligibilitySpec, patient *types.PatientProfile) (inclusion, exclusion []types.MatchedCriterion) {
	inclusion = []types.MatchedCriterion{}
	exclusion = []types.MatchedCriterion{}
	if spec == nil {
		return inclusion, exclusion
	}
	for _, c := range spec.Inclusion {
		inclusion = append(inclusion, e.Evaluate(ctx, c, patient))
	}
	for _, c := range spec.Exclusion {
		exclusion = append(exclusion, e.Evaluate(ctx, c, patient))
	}
	return inclusion, exclusion
}

func newResult(c types.Criterion) types.MatchedCriterion {
	return types.MatchedCriterion{
		CriterionText: c.RawText,
		Kind:          c.Kind,
	}
}

func missingResult(mc types.MatchedCriterion, what string, c types.Criterion) types.MatchedCriterion {
	mc.Matches = false
	mc.Missing = true
	mc.Confidence = 0
	mc.PatientValue = "not provided"
	mc.Explanation = fmt.Sprintf("%s is needed to check: %s", what, describe(c))
	return mc
}

// describe prefers the patient-facing wording of a criterion
func describe(c types.Criterion) string {
	if c.PatientFriendlyText != "" {
		return c.PatientFriendlyText
	}
	return c.RawText
}

// EvaluateAge checks the patient age against inclusive bounds
func EvaluateAge(c types.Criterion, p types.AgeParams, patient *types.PatientProfile) types.MatchedCriterion {
	mc := newResult(c)
	mc.RequiredValue = formatRange(p.MinAge, p.MaxAge, "years")

	if patient.Age == nil {
		return missingResult(mc, "Your age", c)
	}

	age := *patient.Age
	mc.PatientValue = formatNumber(age)
	mc.Confidence = 1.0
	mc.Matches = inRange(age, p.MinAge, p.MaxAge)
	if mc.Matches {
		mc.Explanation = fmt.Sprintf("Age %s is within the required range (%s)", mc.PatientValue, mc.RequiredValue)
	} else {
		mc.Explanation = fmt.Sprintf("Age %s is outside the required range (%s)", mc.PatientValue, mc.RequiredValue)
	}
	return mc
}

// EvaluateCondition delegates to the condition matcher
func (e *Evaluator) EvaluateCondition(ctx context.Context, c types.Criterion, p types.ConditionParams, patient *types.PatientProfile) types.MatchedCriterion {
	mc := newResult(c)
	mc.RequiredValue = p.ConditionName

	match := e.conditions.Match(ctx, patient.Conditions, p.ConditionName)
	mc.Matches = match.Matches
	mc.Confidence = match.Confidence
	mc.Explanation = match.Explanation
	if match.MatchedCondition != "" {
		mc.PatientValue = match.MatchedCondition
	} else if len(patient.Conditions) == 0 {
		mc.PatientValue = "no conditions reported"
	} else {
		mc.PatientValue = strings.Join(patient.Conditions, ", ")
	}
	return mc
}

// EvaluateMedication checks that the patient takes a drug, optionally at a
// minimum dose and for a minimum duration. A nil medication list is missing
// data; an empty one is a certain absence.
func (e *Evaluator) EvaluateMedication(c types.Criterion, p types.MedicationParams, patient *types.PatientProfile) types.MatchedCriterion {
	mc := newResult(c)
	mc.RequiredValue = p.DrugName
	if p.MinDose != nil {
		mc.RequiredValue += " >= " + *p.MinDose
	}
	if p.MinDurationWeeks != nil {
		mc.RequiredValue += fmt.Sprintf(" for %s+ weeks", formatNumber(*p.MinDurationWeeks))
	}

	if patient.Medications == nil {
		return missingResult(mc, "Your current medication list", c)
	}

	med, found := findMedication(patient.Medications, p.DrugName)
	if !found {
		mc.PatientValue = "not taking"
		mc.Confidence = 1.0
		mc.Explanation = fmt.Sprintf("Not currently taking %s", p.DrugName)
		return mc
	}

	mc.PatientValue = med.Name
	if med.Dose != nil {
		mc.PatientValue += " " + *med.Dose
	}

	if p.MinDose == nil && p.MinDurationWeeks == nil {
		mc.Matches = true
		mc.Confidence = 1.0
		mc.Explanation = fmt.Sprintf("Currently taking %s", med.Name)
		return mc
	}

	mc.Confidence = e.policy.DoseComparisonConfidence
	mc.Matches = true
	var notes []string

	if p.MinDose != nil {
		if required, ok := ParseLeadingNumber(*p.MinDose); ok {
			actual, reported := 0.0, false
			if med.Dose != nil {
				actual, reported = ParseLeadingNumber(*med.Dose)
			}
			switch {
			case !reported:
				mc.Matches = false
				notes = append(notes, "dose not reported")
			case actual < required:
				mc.Matches = false
				notes = append(notes, fmt.Sprintf("dose below required %s", *p.MinDose))
			default:
				notes = append(notes, fmt.Sprintf("dose meets required %s", *p.MinDose))
			}
		} else {
			notes = append(notes, fmt.Sprintf("required dose %q could not be compared", *p.MinDose))
		}
	}

	if p.MinDurationWeeks != nil {
		switch {
		case med.DurationWeeks == nil:
			notes = append(notes, "duration unknown")
		case *med.DurationWeeks < *p.MinDurationWeeks:
			mc.Matches = false
			notes = append(notes, fmt.Sprintf("taken for %s weeks, %s required",
				formatNumber(*med.DurationWeeks), formatNumber(*p.MinDurationWeeks)))
		default:
			notes = append(notes, fmt.Sprintf("taken for %s weeks", formatNumber(*med.DurationWeeks)))
		}
	}

	mc.Explanation = fmt.Sprintf("Taking %s but %s", med.Name, strings.Join(notes, "; "))
	if mc.Matches {
		mc.Explanation = fmt.Sprintf("Taking %s, %s", med.Name, strings.Join(notes, "; "))
	}
	return mc
}

func findMedication(meds []types.Medication, drug string) (types.Medication, bool) {
	want := synonyms.Normalize(drug)
	if want == "" {
		return types.Medication{}, false
	}
	for _, m := range meds {
		if strings.Contains(synonyms.Normalize(m.Name), want) {
			return m, true
		}
	}
	return types.Medication{}, false
}

// EvaluateLabValue checks a reported lab value against inclusive bounds.
// Units are not converted; a mismatch is noted in the explanation.
func EvaluateLabValue(c types.Criterion, p types.LabValueParams, patient *types.PatientProfile) types.MatchedCriterion {
	mc := newResult(c)
	mc.RequiredValue = p.TestName + " " + formatRange(p.MinValue, p.MaxValue, p.Unit)

	lab, found := findLab(patient.LabResults, p.TestName)
	if !found {
		return missingResult(mc, fmt.Sprintf("A recent %s result", p.TestName), c)
	}

	mc.PatientValue = strings.TrimSpace(formatNumber(lab.Value) + " " + lab.Unit)
	mc.Confidence = 1.0
	mc.Matches = inRange(lab.Value, p.MinValue, p.MaxValue)

	verdict := "within"
	if !mc.Matches {
		verdict = "outside"
	}
	mc.Explanation = fmt.Sprintf("%s of %s is %s the required range (%s)",
		lab.TestName, mc.PatientValue, verdict, formatRange(p.MinValue, p.MaxValue, p.Unit))
	if p.Unit != "" && lab.Unit != "" && !strings.EqualFold(strings.TrimSpace(p.Unit), strings.TrimSpace(lab.Unit)) {
		mc.Explanation += fmt.Sprintf("; note: reported in %s, criterion uses %s", lab.Unit, p.Unit)
	}
	return mc
}

func findLab(labs []types.LabResult, testName string) (types.LabResult, bool) {
	want := synonyms.Normalize(testName)
	if want == "" {
		return types.LabResult{}, false
	}
	for _, l := range labs {
		if strings.Contains(synonyms.Normalize(l.TestName), want) {
			return l, true
		}
	}
	return types.LabResult{}, false
}

// EvaluateOther never matches and carries the policy's low confidence
func (e *Evaluator) EvaluateOther(c types.Criterion) types.MatchedCriterion {
	mc := newResult(c)
	mc.Kind = types.KindOther
	mc.Confidence = e.policy.UnrecognizedConfidence
	mc.PatientValue = "unknown"
	mc.RequiredValue = c.RawText
	mc.Explanation = fmt.Sprintf("Needs review by the study team: %s", describe(c))
	return mc
}
