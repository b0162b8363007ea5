package matching

import (
	"errors"
	"fmt"
)

var errNoPatientStore = errors.New("no patient store configured")

// PersistError is returned alongside a complete result when storing it failed.
// The match itself succeeded; only the write should be retried.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist match result: %v", e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Retryable reports that the write can be retried with the same result
func (e *PersistError) Retryable() bool {
	return true
}

// InvalidProfileError is returned when a patient profile fails validation
type InvalidProfileError struct {
	Err error
}

func (e *InvalidProfileError) Error() string {
	return fmt.Sprintf("invalid patient profile: %v", e.Err)
}

func (e *InvalidProfileError) Unwrap() error {
	return e.Err
}

// PatientNotFoundError is returned when a batch names a patient with no stored profile
type PatientNotFoundError struct {
	PatientID string
}

func (e *PatientNotFoundError) Error() string {
	return fmt.Sprintf("patient %s not found", e.PatientID)
}
