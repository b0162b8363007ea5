package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/trial-matcher/internal/types"
)

// -----------------------------------------------------------------------------
// Trial Methods
// -----------------------------------------------------------------------------

const trialColumns = `trial_id, title, status, phase, sponsor, conditions, interventions,
	eligibility_text, eligibility_criteria, criteria_hash, criteria_summary, criteria_parsed_at`

// GetTrial retrieves a trial by id. Returns nil, nil when it does not exist.
func (db *DB) GetTrial(ctx context.Context, trialID string) (*types.Trial, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+trialColumns+` FROM clinical_trials WHERE trial_id = $1`,
		trialID,
	)
	t, err := scanTrial(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get trial: %w", err)
	}
	return t, nil
}

func scanTrial(row pgx.Row) (*types.Trial, error) {
	var (
		t                      types.Trial
		status, phase, sponsor *string
		criteria               []byte
		hash, summary          *string
		parsedAt               *time.Time
	)
	if err := row.Scan(
		&t.ID, &t.Title, &status, &phase, &sponsor, &t.Conditions, &t.Interventions,
		&t.RawEligibilityText, &criteria, &hash, &summary, &parsedAt,
	); err != nil {
		return nil, err
	}

	t.Status = derefString(status)
	t.Phase = derefString(phase)
	t.Sponsor = derefString(sponsor)
	t.CriteriaHash = derefString(hash)
	t.CriteriaSummary = derefString(summary)
	t.CriteriaParsedAt = parsedAt

	if len(criteria) > 0 {
		var spec types.EligibilitySpec
		if err := json.Unmarshal(criteria, &spec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal eligibility criteria: %w", err)
		}
		t.ParsedCriteria = &spec
	}
	return &t, nil
}

// SaveParsedCriteria replaces the stored criteria, hash and summary for a trial.
// An empty hash is stored as NULL so the criteria are never considered fresh.
func (db *DB) SaveParsedCriteria(ctx context.Context, trialID string, spec *types.EligibilitySpec, hash, summary string) error {
	criteria, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to marshal eligibility criteria: %w", err)
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE clinical_trials
		 SET eligibility_criteria = $2, criteria_hash = $3, criteria_summary = $4,
		     criteria_parsed_at = NOW(), updated_at = NOW()
		 WHERE trial_id = $1`,
		trialID, criteria, nullIfEmpty(hash), nullIfEmpty(summary),
	)
	if err != nil {
		return fmt.Errorf("failed to save parsed criteria: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to save parsed criteria: trial %s not found", trialID)
	}
	return nil
}

// UpsertTrial inserts or replaces a trial's registry fields. Stored criteria are
// kept; they are re-extracted on demand when the eligibility text changes.
func (db *DB) UpsertTrial(ctx context.Context, t *types.Trial) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO clinical_trials (trial_id, title, status, phase, sponsor, conditions, interventions, eligibility_text)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (trial_id) DO UPDATE SET
		     title = EXCLUDED.title,
		     status = EXCLUDED.status,
		     phase = EXCLUDED.phase,
		     sponsor = EXCLUDED.sponsor,
		     conditions = EXCLUDED.conditions,
		     interventions = EXCLUDED.interventions,
		     eligibility_text = EXCLUDED.eligibility_text,
		     updated_at = NOW()`,
		t.ID, t.Title, nullIfEmpty(t.Status), nullIfEmpty(t.Phase), nullIfEmpty(t.Sponsor),
		nonNilStrings(t.Conditions), nonNilStrings(t.Interventions), t.RawEligibilityText,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert trial: %w", err)
	}
	return nil
}

// ListTrialIDsByStatus returns trial ids with the given recruitment status,
// ordered by id. An empty status lists every trial.
func (db *DB) ListTrialIDsByStatus(ctx context.Context, status string) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT trial_id FROM clinical_trials
		 WHERE $1 = '' OR status = $1
		 ORDER BY trial_id`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan trial ids: %w", err)
	}
	return ids, nil
}
