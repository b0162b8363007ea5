package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jonathan/trial-matcher/internal/matching"
	"github.com/jonathan/trial-matcher/internal/types"
	"github.com/sirupsen/logrus"
)

// notStoredWarning is sent when a match succeeded but could not be stored
const notStoredWarning = `199 - "match result was not stored"`

// ExtractResponse is the body of POST /trials/{trial_id}/extract
type ExtractResponse struct {
	TrialID  string                 `json:"trial_id"`
	Criteria *types.EligibilitySpec `json:"eligibility_criteria"`
}

// handleMatch evaluates the posted profile against a trial
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	patientID, err := parsePatientID(r)
	if err != nil {
		s.errorFrom(w, r, err)
		return
	}
	trialID := r.PathValue("trial_id")

	var profile types.PatientProfile
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&profile); err != nil {
		s.errorFrom(w, r, &ErrValidation{Field: "body", Message: "invalid patient profile JSON"})
		return
	}
	// the path is authoritative for the patient id
	profile.ID = patientID

	result, err := s.matcher.Match(r.Context(), &profile, trialID)
	if err != nil {
		var persistErr *matching.PersistError
		if result != nil && errors.As(err, &persistErr) {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"patient_id": patientID,
				"trial_id":   trialID,
			}).Warn("Returning match result that was not stored")
			w.Header().Set("Warning", notStoredWarning)
			s.jsonResponse(w, http.StatusOK, result)
			return
		}
		s.errorFrom(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// handleGetMatch returns the stored result for a pair
func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	patientID, err := parsePatientID(r)
	if err != nil {
		s.errorFrom(w, r, err)
		return
	}
	trialID := r.PathValue("trial_id")

	result, err := s.matcher.GetResult(r.Context(), patientID, trialID)
	if err != nil {
		s.errorFrom(w, r, err)
		return
	}
	if result == nil {
		s.errorResponse(w, http.StatusNotFound, "no match result for this patient and trial")
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// handleExtract returns a trial's criteria, extracting them if needed
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	trialID := r.PathValue("trial_id")

	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			s.errorFrom(w, r, &ErrValidation{Field: "force", Message: "must be a boolean"})
			return
		}
		force = parsed
	}

	spec, err := s.matcher.Extract(r.Context(), trialID, force)
	if err != nil {
		s.errorFrom(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, ExtractResponse{TrialID: trialID, Criteria: spec})
}

// errorFrom writes err with the status HTTPStatus assigns to it
func (s *Server) errorFrom(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	}
	s.errorResponse(w, status, err.Error())
}

func parsePatientID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("patient_id"))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: "patient_id", Message: "must be a UUID"}
	}
	return id, nil
}
