package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/trial-matcher/internal/types"
)

// -----------------------------------------------------------------------------
// Medical Term Mapping Methods
// -----------------------------------------------------------------------------

// Lookup returns every mapping whose medical terms include medicalTerm,
// compared case-insensitively. It satisfies synonyms.Source.
func (db *DB) Lookup(ctx context.Context, medicalTerm string) ([]types.TermMapping, error) {
	term := strings.ToLower(strings.TrimSpace(medicalTerm))
	if term == "" {
		return nil, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT patient_terms, medical_terms FROM medical_term_mappings
		 WHERE EXISTS (SELECT 1 FROM unnest(medical_terms) AS m WHERE lower(trim(m)) = $1)
		 ORDER BY id`,
		term,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to look up term mappings: %w", err)
	}
	mappings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.TermMapping, error) {
		var m types.TermMapping
		err := row.Scan(&m.PatientTerms, &m.MedicalTerms)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan term mappings: %w", err)
	}
	return mappings, nil
}

// ReplaceTermMappings swaps the whole vocabulary for mappings in one transaction
func (db *DB) ReplaceTermMappings(ctx context.Context, mappings []types.TermMapping) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM medical_term_mappings`); err != nil {
		return fmt.Errorf("failed to clear term mappings: %w", err)
	}

	batch := &pgx.Batch{}
	for _, m := range mappings {
		batch.Queue(
			`INSERT INTO medical_term_mappings (patient_terms, medical_terms) VALUES ($1, $2)`,
			nonNilStrings(m.PatientTerms), nonNilStrings(m.MedicalTerms),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert term mappings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit term mappings: %w", err)
	}
	return nil
}
