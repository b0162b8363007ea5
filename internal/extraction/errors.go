package extraction

import "fmt"

// APICallError represents a failed call to the text-understanding service
type APICallError struct {
	Message string
	Cause   error
}

func (e *APICallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction call failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("extraction call failed: %s", e.Message)
}

func (e *APICallError) Unwrap() error {
	return e.Cause
}

// ParseError represents output that could not be decoded even after salvage
type ParseError struct {
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// ValidationError represents a decoded document with the wrong top-level shape
type ValidationError struct {
	Message string
	Field   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// TrialNotFoundError is returned when a trial id has no record
type TrialNotFoundError struct {
	TrialID string
}

func (e *TrialNotFoundError) Error() string {
	return fmt.Sprintf("trial %s not found", e.TrialID)
}
