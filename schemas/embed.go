// Package schemas holds the JSON Schema documents for the matcher's data
// artifacts. The files are embedded so they are available without a checkout.
package schemas

import (
	"embed"
	"fmt"
)

// Schema file names
const (
	EligibilitySpecFile = "eligibility_spec.schema.json"
	PatientProfileFile  = "patient_profile.schema.json"
)

//go:embed *.schema.json
var files embed.FS

// Read returns the raw contents of an embedded schema
func Read(name string) ([]byte, error) {
	data, err := files.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("schema %s not embedded: %w", name, err)
	}
	return data, nil
}
