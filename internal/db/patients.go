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
// Patient Profile Methods
// -----------------------------------------------------------------------------

// GetPatientProfile retrieves a stored profile. Returns nil, nil when absent.
func (db *DB) GetPatientProfile(ctx context.Context, id uuid.UUID) (*types.PatientProfile, error) {
	var raw []byte
	err := db.pool.QueryRow(ctx,
		`SELECT profile FROM patient_profiles WHERE id = $1`,
		id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get patient profile: %w", err)
	}

	var p types.PatientProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patient profile: %w", err)
	}
	p.ID = id
	return &p, nil
}

// UpsertPatientProfile stores a profile, assigning an id when it has none.
func (db *DB) UpsertPatientProfile(ctx context.Context, p *types.PatientProfile) (uuid.UUID, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal patient profile: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO patient_profiles (id, profile)
		 VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET profile = EXCLUDED.profile, updated_at = NOW()`,
		p.ID, raw,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert patient profile: %w", err)
	}
	return p.ID, nil
}

// ListPatientIDs returns every stored patient id in creation order
func (db *DB) ListPatientIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := db.pool.Query(ctx, `SELECT id FROM patient_profiles ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan patient ids: %w", err)
	}
	return ids, nil
}
