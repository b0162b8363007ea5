package matching

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/trial-matcher/internal/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// BatchItem is the outcome for one pair in a batch. Result may be set together
// with a *PersistError in Err.
type BatchItem struct {
	PatientID uuid.UUID
	TrialID   string
	Result    *types.MatchResult
	Err       error
}

// MatchMany matches one patient against several trials. Items come back in the
// order of trialIDs; a failure on one trial never stops the others.
func (s *Service) MatchMany(ctx context.Context, patient *types.PatientProfile, trialIDs []string) []BatchItem {
	items := make([]BatchItem, len(trialIDs))
	var patientID uuid.UUID
	if patient != nil {
		patientID = patient.ID
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrency)
	for i, id := range trialIDs {
		items[i] = BatchItem{PatientID: patientID, TrialID: id}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				items[i].Err = err
				return nil
			}
			items[i].Result, items[i].Err = s.Match(ctx, patient, id)
			return nil
		})
	}
	_ = g.Wait()

	s.logBatch("Matched patient against trials", items)
	return items
}

// Rescreen matches every given patient against one trial, or every stored
// patient when patientIDs is empty. Criteria are extracted at most once.
// It fails only when the trial or the patient list cannot be loaded.
func (s *Service) Rescreen(ctx context.Context, trialID string, patientIDs []uuid.UUID) ([]BatchItem, error) {
	if s.deps.Patients == nil {
		return nil, errNoPatientStore
	}

	trial, err := s.loadTrial(ctx, trialID)
	if err != nil {
		return nil, err
	}
	spec := s.deps.Extractor.SpecForTrial(ctx, trial, false)

	if len(patientIDs) == 0 {
		storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
		patientIDs, err = s.deps.Patients.ListPatientIDs(storeCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to list patients: %w", err)
		}
	}

	items := make([]BatchItem, len(patientIDs))
	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrency)
	for i, pid := range patientIDs {
		items[i] = BatchItem{PatientID: pid, TrialID: trialID}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				items[i].Err = err
				return nil
			}
			patient, err := s.loadPatient(ctx, pid)
			if err != nil {
				items[i].Err = err
				return nil
			}
			items[i].Result, items[i].Err = s.matchLoaded(ctx, patient, trial, spec)
			return nil
		})
	}
	_ = g.Wait()

	s.logBatch("Rescreened patients for trial", items)
	return items, nil
}

func (s *Service) loadPatient(ctx context.Context, id uuid.UUID) (*types.PatientProfile, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	patient, err := s.deps.Patients.GetPatientProfile(storeCtx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load patient %s: %w", id, err)
	}
	if patient == nil {
		return nil, &PatientNotFoundError{PatientID: id.String()}
	}
	if err := checkProfile(patient); err != nil {
		return nil, err
	}
	return patient, nil
}

func (s *Service) logBatch(msg string, items []BatchItem) {
	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
		}
	}
	s.deps.Logger.WithFields(logrus.Fields{
		"total":  len(items),
		"failed": failed,
	}).Info(msg)
}
