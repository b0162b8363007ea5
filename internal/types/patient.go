package types

import (
	"github.com/google/uuid"
)

// PatientProfile is the caller-owned patient data evaluated against a trial.
// Absent optional fields mean "insufficient data", never "fails criterion".
type PatientProfile struct {
	ID         uuid.UUID `json:"id"`
	Age        *float64  `json:"age,omitempty" validate:"omitempty,gte=0,lte=150"`
	Gender     *string   `json:"gender,omitempty"`
	Conditions []string  `json:"conditions"`
	// Medications is nil when no medication list was supplied; an empty
	// non-nil slice means the patient takes no medications.
	Medications []Medication `json:"medications" validate:"dive"`
	LabResults  []LabResult  `json:"lab_results" validate:"dive"`
	Location    *Location    `json:"location,omitempty"`
}

// Medication is one medication a patient reports taking
type Medication struct {
	Name          string   `json:"name" validate:"required"`
	Dose          *string  `json:"dose,omitempty"`
	DurationWeeks *float64 `json:"duration_weeks,omitempty" validate:"omitempty,gte=0"`
}

// LabResult is one reported lab measurement
type LabResult struct {
	TestName string  `json:"test_name" validate:"required"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit"`
}

// Location is where the patient lives
type Location struct {
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
}

// Validate checks structural constraints on the profile
func (p *PatientProfile) Validate() error {
	return validate.Struct(p)
}

// TermMapping pairs patient vocabulary with medical vocabulary
type TermMapping struct {
	PatientTerms []string `json:"patient_terms"`
	MedicalTerms []string `json:"medical_terms"`
}
