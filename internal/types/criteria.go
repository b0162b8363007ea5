// Package types provides type definitions for structured data used throughout the trial matcher.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CriterionKind identifies the variant of a Criterion
type CriterionKind string

// Criterion kinds. Adding a kind requires a params type and an evaluator.
const (
	KindAge        CriterionKind = "age"
	KindCondition  CriterionKind = "condition"
	KindMedication CriterionKind = "medication"
	KindLabValue   CriterionKind = "lab_value"
	KindOther      CriterionKind = "other"
)

// IsKnown reports whether k is one of the closed set of kinds
func (k CriterionKind) IsKnown() bool {
	switch k {
	case KindAge, KindCondition, KindMedication, KindLabValue, KindOther:
		return true
	}
	return false
}

var validate = validator.New()

// CriterionParams is the kind-specific payload of a Criterion.
// The set of implementations is closed to this package.
type CriterionParams interface {
	Kind() CriterionKind
	check() error
}

// AgeParams bounds the patient age in years; a nil bound is unbounded
type AgeParams struct {
	MinAge *float64 `json:"min_age,omitempty" validate:"omitempty,gte=0"`
	MaxAge *float64 `json:"max_age,omitempty" validate:"omitempty,gte=0"`
}

// Kind returns KindAge
func (AgeParams) Kind() CriterionKind { return KindAge }

func (p AgeParams) check() error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	return checkBounds("age", p.MinAge, p.MaxAge)
}

// ConditionParams names a required (or, in exclusion lists, excluded) condition
type ConditionParams struct {
	ConditionName string `json:"condition_name" validate:"required"`
}

// Kind returns KindCondition
func (ConditionParams) Kind() CriterionKind { return KindCondition }

func (p ConditionParams) check() error { return validate.Struct(p) }

// MedicationParams describes a required medication
type MedicationParams struct {
	DrugName         string   `json:"drug_name" validate:"required"`
	MinDose          *string  `json:"min_dose,omitempty"`
	MinDurationWeeks *float64 `json:"min_duration_weeks,omitempty" validate:"omitempty,gte=0"`
}

// Kind returns KindMedication
func (MedicationParams) Kind() CriterionKind { return KindMedication }

func (p MedicationParams) check() error { return validate.Struct(p) }

// LabValueParams bounds a lab test value; a nil bound is unbounded
type LabValueParams struct {
	TestName string   `json:"test_name" validate:"required"`
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`
	Unit     string   `json:"unit,omitempty"`
}

// Kind returns KindLabValue
func (LabValueParams) Kind() CriterionKind { return KindLabValue }

func (p LabValueParams) check() error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	return checkBounds("lab value", p.MinValue, p.MaxValue)
}

// OtherParams carries no payload; used for unrecognized or invalid criteria
type OtherParams struct{}

// Kind returns KindOther
func (OtherParams) Kind() CriterionKind { return KindOther }

func (OtherParams) check() error { return nil }

func checkBounds(label string, lo, hi *float64) error {
	if lo != nil && hi != nil && *lo > *hi {
		return fmt.Errorf("%s lower bound %v exceeds upper bound %v", label, *lo, *hi)
	}
	return nil
}

// Criterion is one eligibility rule extracted from trial text
type Criterion struct {
	Kind                CriterionKind
	RawText             string
	PatientFriendlyText string
	Params              CriterionParams
	// InvalidReason is set when the declared payload was rejected and the
	// criterion was downgraded to KindOther.
	InvalidReason string
}

// NewCriterion builds a criterion from typed params. Invalid params yield a
// KindOther criterion carrying the rejection reason.
func NewCriterion(rawText, patientFriendly string, params CriterionParams) Criterion {
	c := Criterion{
		RawText:             rawText,
		PatientFriendlyText: patientFriendly,
	}
	if params == nil {
		params = OtherParams{}
	}
	if err := params.check(); err != nil {
		c.Kind = KindOther
		c.Params = OtherParams{}
		c.InvalidReason = fmt.Sprintf("invalid %s parameters: %v", params.Kind(), err)
		return c
	}
	c.Kind = params.Kind()
	c.Params = params
	return c
}

// criterionWire is the JSON shape shared with the extraction collaborator
type criterionWire struct {
	Type            string          `json:"type"`
	Text            string          `json:"text"`
	Parameters      json.RawMessage `json:"parameters,omitempty"`
	PatientFriendly string          `json:"patient_friendly"`
	InvalidReason   string          `json:"invalid_reason,omitempty"`
}

// MarshalJSON encodes the criterion in its wire shape
func (c Criterion) MarshalJSON() ([]byte, error) {
	params := c.Params
	if params == nil {
		params = OtherParams{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	kind := c.Kind
	if kind == "" {
		kind = params.Kind()
	}
	return json.Marshal(criterionWire{
		Type:            string(kind),
		Text:            c.RawText,
		Parameters:      raw,
		PatientFriendly: c.PatientFriendlyText,
		InvalidReason:   c.InvalidReason,
	})
}

// UnmarshalJSON decodes the wire shape. Payload problems never fail the
// decode; they downgrade the criterion to KindOther.
func (c *Criterion) UnmarshalJSON(data []byte) error {
	var w criterionWire
	if err := json.Unmarshal(data, &w); err != nil {
		// a JSON object with badly typed fields is still a criterion
		var fields map[string]json.RawMessage
		if json.Unmarshal(data, &fields) != nil {
			return err
		}
		var text string
		_ = json.Unmarshal(fields["text"], &text)
		*c = Criterion{
			Kind:          KindOther,
			RawText:       text,
			Params:        OtherParams{},
			InvalidReason: fmt.Sprintf("malformed criterion: %v", err),
		}
		return nil
	}

	kind := CriterionKind(strings.ToLower(strings.TrimSpace(w.Type)))
	params, err := decodeParams(kind, w.Parameters)
	if err != nil {
		*c = Criterion{
			Kind:                KindOther,
			RawText:             w.Text,
			PatientFriendlyText: w.PatientFriendly,
			Params:              OtherParams{},
			InvalidReason:       err.Error(),
		}
		return nil
	}

	*c = NewCriterion(w.Text, w.PatientFriendly, params)
	if c.InvalidReason == "" {
		c.InvalidReason = w.InvalidReason
	}
	return nil
}

// wire payloads accept numbers encoded as JSON strings
type wireAge struct {
	MinAge looseNumber `json:"min_age"`
	MaxAge looseNumber `json:"max_age"`
}

type wireCondition struct {
	ConditionName string `json:"condition_name"`
}

type wireMedication struct {
	DrugName         string      `json:"drug_name"`
	MinDose          looseString `json:"min_dose"`
	MinDurationWeeks looseNumber `json:"min_duration_weeks"`
}

type wireLabValue struct {
	TestName string      `json:"test_name"`
	MinValue looseNumber `json:"min_value"`
	MaxValue looseNumber `json:"max_value"`
	Unit     string      `json:"unit"`
}

func decodeParams(kind CriterionKind, raw json.RawMessage) (CriterionParams, error) {
	if !kind.IsKnown() {
		return nil, fmt.Errorf("unrecognized criterion type %q", kind)
	}
	if kind == KindOther {
		return OtherParams{}, nil
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("missing parameters for %s criterion", kind)
	}

	switch kind {
	case KindAge:
		var w wireAge
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("age parameters: %w", err)
		}
		return AgeParams{MinAge: w.MinAge.ptr, MaxAge: w.MaxAge.ptr}, nil
	case KindCondition:
		var w wireCondition
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("condition parameters: %w", err)
		}
		return ConditionParams{ConditionName: strings.TrimSpace(w.ConditionName)}, nil
	case KindMedication:
		var w wireMedication
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("medication parameters: %w", err)
		}
		return MedicationParams{
			DrugName:         strings.TrimSpace(w.DrugName),
			MinDose:          w.MinDose.ptr,
			MinDurationWeeks: w.MinDurationWeeks.ptr,
		}, nil
	case KindLabValue:
		var w wireLabValue
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("lab_value parameters: %w", err)
		}
		return LabValueParams{
			TestName: strings.TrimSpace(w.TestName),
			MinValue: w.MinValue.ptr,
			MaxValue: w.MaxValue.ptr,
			Unit:     strings.TrimSpace(w.Unit),
		}, nil
	}
	return nil, fmt.Errorf("unrecognized criterion type %q", kind)
}

// looseNumber decodes a JSON number, numeric string, or null
type looseNumber struct {
	ptr *float64
}

func (n *looseNumber) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		n.ptr = nil
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", string(data))
	}
	n.ptr = &v
	return nil
}

// looseString decodes a JSON string, number, or null into a string
type looseString struct {
	ptr *string
}

func (s *looseString) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "null" {
		s.ptr = nil
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		// numbers pass through verbatim
		if _, perr := strconv.ParseFloat(text, 64); perr != nil {
			return fmt.Errorf("not a string: %s", text)
		}
		str = text
	}
	str = strings.TrimSpace(str)
	if str == "" {
		s.ptr = nil
		return nil
	}
	s.ptr = &str
	return nil
}

// EligibilitySpec is the full inclusion/exclusion criterion set for a trial.
// Inclusion and Exclusion are never nil.
type EligibilitySpec struct {
	Inclusion         []Criterion `json:"inclusion"`
	Exclusion         []Criterion `json:"exclusion"`
	NeedsManualReview bool        `json:"needs_manual_review,omitempty"`
	ReviewReason      string      `json:"review_reason,omitempty"`
}

// NewEligibilitySpec builds a spec, normalizing nil lists to empty
func NewEligibilitySpec(inclusion, exclusion []Criterion) *EligibilitySpec {
	spec := &EligibilitySpec{Inclusion: inclusion, Exclusion: exclusion}
	spec.normalize()
	return spec
}

// ManualReviewSpec returns the empty sentinel spec used when extraction fails
func ManualReviewSpec(reason string) *EligibilitySpec {
	spec := NewEligibilitySpec(nil, nil)
	spec.NeedsManualReview = true
	spec.ReviewReason = reason
	return spec
}

// IsEmpty reports whether the spec has no criteria at all
func (s *EligibilitySpec) IsEmpty() bool {
	return len(s.Inclusion) == 0 && len(s.Exclusion) == 0
}

// CriteriaCount returns the total number of criteria
func (s *EligibilitySpec) CriteriaCount() int {
	return len(s.Inclusion) + len(s.Exclusion)
}

// Summary returns a short plain-text description of the spec
func (s *EligibilitySpec) Summary() string {
	if s.NeedsManualReview {
		return "Eligibility criteria require manual review"
	}
	return fmt.Sprintf("%d inclusion / %d exclusion criteria", len(s.Inclusion), len(s.Exclusion))
}

// UnmarshalJSON decodes a spec and guarantees non-nil lists
func (s *EligibilitySpec) UnmarshalJSON(data []byte) error {
	type alias EligibilitySpec
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = EligibilitySpec(a)
	s.normalize()
	return nil
}

// MarshalJSON encodes a spec with empty lists rendered as []
func (s EligibilitySpec) MarshalJSON() ([]byte, error) {
	type alias EligibilitySpec
	s.normalize()
	return json.Marshal(alias(s))
}

func (s *EligibilitySpec) normalize() {
	if s.Inclusion == nil {
		s.Inclusion = []Criterion{}
	}
	if s.Exclusion == nil {
		s.Exclusion = []Criterion{}
	}
}
