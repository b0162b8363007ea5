// Package matching is the caller-facing matching service: it loads a trial,
// makes sure its criteria are extracted, evaluates a patient, explains the
// outcome and stores the result.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/trial-matcher/internal/evaluation"
	"github.com/jonathan/trial-matcher/internal/explain"
	"github.com/jonathan/trial-matcher/internal/extraction"
	"github.com/jonathan/trial-matcher/internal/metrics"
	"github.com/jonathan/trial-matcher/internal/scoring"
	"github.com/jonathan/trial-matcher/internal/types"
	"github.com/sirupsen/logrus"
)

// DefaultMaxConcurrency bounds parallel matches in a batch
const DefaultMaxConcurrency = 4

// DefaultStoreTimeout bounds one store call
const DefaultStoreTimeout = 10 * time.Second

// ResultStore persists match results
type ResultStore interface {
	UpsertMatchResult(ctx context.Context, r *types.MatchResult) error
	// GetMatchResult returns nil, nil when no result is stored
	GetMatchResult(ctx context.Context, patientID uuid.UUID, trialID string) (*types.MatchResult, error)
}

// PatientStore loads stored patient profiles for batch rescreening
type PatientStore interface {
	// GetPatientProfile returns nil, nil when the patient does not exist
	GetPatientProfile(ctx context.Context, id uuid.UUID) (*types.PatientProfile, error)
	ListPatientIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Config tunes the service
type Config struct {
	MaxConcurrency int
	StoreTimeout   time.Duration
}

// Deps are the collaborators a Service needs. Results and Patients may be nil;
// results are then not stored and Rescreen requires explicit profiles.
type Deps struct {
	Trials    extraction.TrialStore
	Results   ResultStore
	Patients  PatientStore
	Extractor *extraction.Extractor
	Evaluator *evaluation.Evaluator
	Explainer *explain.Generator
	Policy    scoring.Policy
	Metrics   *metrics.Metrics
	Logger    *logrus.Logger
}

// Service matches patients to trials. Safe for concurrent use.
type Service struct {
	deps Deps
	cfg  Config
	now  func() time.Time
}

// NewService creates a Service
func NewService(deps Deps, cfg Config) (*Service, error) {
	if deps.Trials == nil {
		return nil, fmt.Errorf("trial store is required")
	}
	if deps.Extractor == nil || deps.Evaluator == nil {
		return nil, fmt.Errorf("extractor and evaluator are required")
	}
	if err := deps.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Explainer == nil {
		deps.Explainer = explain.NewGenerator(nil, explain.Config{}, deps.Logger, deps.Metrics)
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	return &Service{deps: deps, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Match evaluates patient against a trial and stores the result. The returned
// error is a *extraction.TrialNotFoundError, an *InvalidProfileError or a
// lookup failure, in which case the result is nil; or a *PersistError, in
// which case the result is complete and only storing it failed.
func (s *Service) Match(ctx context.Context, patient *types.PatientProfile, trialID string) (*types.MatchResult, error) {
	if err := checkProfile(patient); err != nil {
		return nil, err
	}

	trial, err := s.loadTrial(ctx, trialID)
	if err != nil {
		return nil, err
	}
	spec := s.deps.Extractor.SpecForTrial(ctx, trial, false)
	return s.matchLoaded(ctx, patient, trial, spec)
}

// Evaluate scores a spec against a patient without any I/O beyond the synonym
// source. spec may be nil.
func (s *Service) Evaluate(ctx context.Context, spec *types.EligibilitySpec, patient *types.PatientProfile) scoring.Outcome {
	inclusion, exclusion := s.deps.Evaluator.EvaluateSpec(ctx, spec, patient)
	return s.deps.Policy.AggregateSpec(spec, inclusion, exclusion)
}

// GetResult returns the stored result for a pair, or nil, nil when none exists
func (s *Service) GetResult(ctx context.Context, patientID uuid.UUID, trialID string) (*types.MatchResult, error) {
	if s.deps.Results == nil {
		return nil, fmt.Errorf("no result store configured")
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	r, err := s.deps.Results.GetMatchResult(storeCtx, patientID, trialID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match result: %w", err)
	}
	return r, nil
}

// Extract returns the trial's criteria, extracting them when the stored copy
// is missing or stale, or when force is set
func (s *Service) Extract(ctx context.Context, trialID string, force bool) (*types.EligibilitySpec, error) {
	return s.deps.Extractor.ExtractForTrial(ctx, trialID, force)
}

// Reextract forces the trial's criteria to be extracted again
func (s *Service) Reextract(ctx context.Context, trialID string) (*types.EligibilitySpec, error) {
	return s.Extract(ctx, trialID, true)
}

func checkProfile(patient *types.PatientProfile) error {
	if patient == nil {
		return &InvalidProfileError{Err: errors.New("patient profile is required")}
	}
	if err := patient.Validate(); err != nil {
		return &InvalidProfileError{Err: err}
	}
	return nil
}

func (s *Service) loadTrial(ctx context.Context, trialID string) (*types.Trial, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	trial, err := s.deps.Trials.GetTrial(storeCtx, trialID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trial %s: %w", trialID, err)
	}
	if trial == nil {
		return nil, &extraction.TrialNotFoundError{TrialID: trialID}
	}
	return trial, nil
}

// matchLoaded does not modify trial or spec, so both may be shared across goroutines
func (s *Service) matchLoaded(ctx context.Context, patient *types.PatientProfile, trial *types.Trial, spec *types.EligibilitySpec) (*types.MatchResult, error) {
	start := time.Now()

	outcome := s.Evaluate(ctx, spec, patient)
	exp := s.deps.Explainer.Explain(ctx, explain.Input{
		TrialID:           trial.ID,
		TrialTitle:        trial.Title,
		Status:            outcome.Status,
		Criteria:          outcome.Criteria,
		MissingInfo:       outcome.MissingInfo,
		NeedsManualReview: outcome.NeedsManualReview,
	})

	result := &types.MatchResult{
		PatientID:          patient.ID,
		TrialID:            trial.ID,
		MatchScore:         outcome.Score,
		Status:             outcome.Status,
		MatchedCriteria:    outcome.Criteria,
		MissingInfo:        outcome.MissingInfo,
		ExplanationSummary: exp.Summary,
		NextSteps:          exp.NextSteps,
		NeedsManualReview:  outcome.NeedsManualReview,
		ComputedAt:         s.now(),
	}

	s.deps.Metrics.IncrementMatch(string(result.Status))
	s.deps.Metrics.ObserveMatchLatency(time.Since(start))
	s.deps.Logger.WithFields(logrus.Fields{
		"patient_id": patient.ID,
		"trial_id":   trial.ID,
		"status":     result.Status,
		"score":      result.MatchScore,
		"missing":    len(result.MissingInfo),
	}).Info("Computed match")

	if s.deps.Results == nil {
		return result, nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.deps.Results.UpsertMatchResult(storeCtx, result); err != nil {
		s.deps.Metrics.IncrementPersistFailure("match_result")
		s.deps.Logger.WithError(err).WithFields(logrus.Fields{
			"patient_id": patient.ID,
			"trial_id":   trial.ID,
		}).Error("Failed to persist match result")
		return result, &PersistError{Err: err}
	}
	return result, nil
}
