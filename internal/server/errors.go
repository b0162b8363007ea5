// Package server provides the HTTP REST API for the trial matcher.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/trial-matcher/internal/extraction"
	"github.com/jonathan/trial-matcher/internal/matching"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validationErr *ErrValidation
		profileErr    *matching.InvalidProfileError
		trialErr      *extraction.TrialNotFoundError
		patientErr    *matching.PatientNotFoundError
		persistErr    *matching.PersistError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validationErr), errors.As(err, &profileErr):
		return http.StatusBadRequest
	case errors.As(err, &trialErr), errors.As(err, &patientErr):
		return http.StatusNotFound
	case errors.As(err, &persistErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
