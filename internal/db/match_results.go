package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/trial-matcher/internal/types"
)

// -----------------------------------------------------------------------------
// Match Result Methods
// -----------------------------------------------------------------------------

// UpsertMatchResult stores a result, fully replacing any earlier result for the
// same (patient, trial) pair.
func (db *DB) UpsertMatchResult(ctx context.Context, r *types.MatchResult) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal match result: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO match_results (patient_id, trial_id, match_score, status, needs_manual_review, result, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (patient_id, trial_id) DO UPDATE SET
		     match_score = EXCLUDED.match_score,
		     status = EXCLUDED.status,
		     needs_manual_review = EXCLUDED.needs_manual_review,
		     result = EXCLUDED.result,
		     computed_at = EXCLUDED.computed_at`,
		r.PatientID, r.TrialID, r.MatchScore, string(r.Status), r.NeedsManualReview, raw, r.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert match result: %w", err)
	}
	return nil
}

// GetMatchResult retrieves the stored result for a pair. Returns nil, nil when absent.
func (db *DB) GetMatchResult(ctx context.Context, patientID uuid.UUID, trialID string) (*types.MatchResult, error) {
	var raw []byte
	err := db.pool.QueryRow(ctx,
		`SELECT result FROM match_results WHERE patient_id = $1 AND trial_id = $2`,
		patientID, trialID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get match result: %w", err)
	}

	var r types.MatchResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match result: %w", err)
	}
	return &r, nil
}

// ListMatchResultsForTrial returns stored results for a trial, best score first
func (db *DB) ListMatchResultsForTrial(ctx context.Context, trialID string, status types.MatchStatus) ([]types.MatchResult, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT result FROM match_results
		 WHERE trial_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY match_score DESC, patient_id`,
		trialID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list match results: %w", err)
	}
	raws, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("failed to scan match results: %w", err)
	}

	results := make([]types.MatchResult, 0, len(raws))
	for _, raw := range raws {
		var r types.MatchResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal match result: %w", err)
		}
		results = append(results, r)
	}
	return results, nil
}
