package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/jonathan/trial-matcher/internal/matching"
	"github.com/jonathan/trial-matcher/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const patientJSON = `{
	"age": 45,
	"gender": "female",
	"conditions": ["type 2 diabetes"],
	"medications": [{"name": "metformin", "dose": "500 mg", "duration_weeks": 12}],
	"lab_results": [{"test_name": "HbA1c", "value": 7.5, "unit": "%"}]
}`

const criteriaJSON = `{
	"inclusion": [
		{"type": "age", "text": "Age 18-65", "parameters": {"min_age": 18, "max_age": 65}},
		{"type": "condition", "text": "Type 2 diabetes", "parameters": {"condition_name": "type 2 diabetes"}}
	],
	"exclusion": [
		{"type": "condition", "text": "Pregnancy", "parameters": {"condition_name": "pregnancy"}}
	]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// offlineEnv clears every source of an API key or database URL
func offlineEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("DATABASE_URL", "")
	configPath, apiKey, databaseURL, verbose = "", "", "", false
}

func TestReadPatientProfile(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		p, err := readPatientProfile(writeFile(t, "patient.json", patientJSON))
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, p.ID, "missing id is assigned")
		require.NotNil(t, p.Age)
		assert.Equal(t, 45.0, *p.Age)
		assert.Len(t, p.Medications, 1)
	})

	t.Run("keeps id", func(t *testing.T) {
		id := uuid.New()
		p, err := readPatientProfile(writeFile(t, "patient.json", `{"id": "`+id.String()+`", "conditions": []}`))
		require.NoError(t, err)
		assert.Equal(t, id, p.ID)
	})

	t.Run("fails schema", func(t *testing.T) {
		_, err := readPatientProfile(writeFile(t, "patient.json", `{"age": -3}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not validate")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readPatientProfile(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})
}

func TestReadCriteriaFile(t *testing.T) {
	spec, err := readCriteriaFile(writeFile(t, "criteria.json", criteriaJSON))
	require.NoError(t, err)
	assert.Len(t, spec.Inclusion, 2)
	assert.Len(t, spec.Exclusion, 1)

	_, err = readCriteriaFile(writeFile(t, "criteria.json", `{"criteria": []}`))
	assert.Error(t, err)
}

func TestEvaluate_Offline(t *testing.T) {
	offlineEnv(t)

	a, err := newApp(context.Background(), nil, appOptions{})
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.client)
	assert.Nil(t, a.service)

	spec, err := readCriteriaFile(writeFile(t, "criteria.json", criteriaJSON))
	require.NoError(t, err)
	patient, err := readPatientProfile(writeFile(t, "patient.json", patientJSON))
	require.NoError(t, err)

	result := a.evaluate(context.Background(), spec, patient, "Diabetes Study")
	assert.Equal(t, types.StatusLikelyEligible, result.Status)
	assert.InDelta(t, 0.9, result.MatchScore, 1e-9)
	assert.Len(t, result.MatchedCriteria, 3)
	assert.Contains(t, result.ExplanationSummary, "Diabetes Study")
	assert.NotEmpty(t, result.NextSteps)
}

func TestNewApp_Requirements(t *testing.T) {
	offlineEnv(t)

	_, err := newApp(context.Background(), nil, appOptions{needLLM: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")

	_, err = newApp(context.Background(), nil, appOptions{needDB: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	offlineEnv(t)
	configPath = writeFile(t, "config.json", `{"log_level": "warn", "max_concurrency": 8, "policy": {"likely_eligible_score": 0.85}}`)
	defer func() { configPath = "" }()
	t.Setenv("DATABASE_URL", "postgres://localhost/matcher")

	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 8, cfg.MaxConcurrency)
	assert.Equal(t, "postgres://localhost/matcher", cfg.DatabaseURL)
	assert.Equal(t, 0.85, cfg.ScoringPolicy().LikelyEligibleScore)
	assert.Equal(t, 60, cfg.ExtractionTimeoutSeconds, "unset fields take defaults")
}

func TestFlagValidation(t *testing.T) {
	offlineEnv(t)

	t.Run("extract needs exactly one source", func(t *testing.T) {
		extractTrialID, extractInFile = "", ""
		assert.ErrorContains(t, runExtract(extractCmd, nil), "must provide either")

		extractTrialID, extractInFile = "NCT001", "criteria.txt"
		defer func() { extractTrialID, extractInFile = "", "" }()
		assert.ErrorContains(t, runExtract(extractCmd, nil), "cannot use --trial-id with --in")
	})

	t.Run("rescreen needs exactly one selector", func(t *testing.T) {
		rescreenTrialID, rescreenStatus = "", ""
		assert.ErrorContains(t, runRescreen(rescreenCmd, nil), "must provide either")

		rescreenTrialID, rescreenStatus = "NCT001", "RECRUITING"
		defer func() { rescreenTrialID, rescreenStatus = "", "" }()
		assert.ErrorContains(t, runRescreen(rescreenCmd, nil), "mutually exclusive")
	})

	t.Run("import needs a file", func(t *testing.T) {
		importTrialsFile, importPatientsFile = "", ""
		assert.ErrorContains(t, runImport(importCmd, nil), "must provide")
	})

	t.Run("migrate needs a database", func(t *testing.T) {
		assert.ErrorContains(t, runMigrate(migrateCmd, []string{"up"}), "DATABASE_URL")
	})
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    types.MatchStatus
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "likely_eligible", want: types.StatusLikelyEligible},
		{in: "need_more_info", want: types.StatusNeedMoreInfo},
		{in: "eligible", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseStatus(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePatientIDs(t *testing.T) {
	id := uuid.New()
	ids, err := parsePatientIDs([]string{id.String()})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, ids)

	ids, err = parsePatientIDs(nil)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = parsePatientIDs([]string{"patient-1"})
	assert.Error(t, err)
}

func TestCollectBatch(t *testing.T) {
	stored := &types.MatchResult{TrialID: "NCT001", Status: types.StatusLikelyEligible}
	unstored := &types.MatchResult{TrialID: "NCT002", Status: types.StatusNeedMoreInfo}

	results, failures := collectBatch([]matching.BatchItem{
		{TrialID: "NCT001", Result: stored},
		{TrialID: "NCT002", Result: unstored, Err: &matching.PersistError{Err: errors.New("timeout")}},
		{TrialID: "NCT003", Err: errors.New("trial NCT003 not found")},
	})
	assert.Equal(t, []*types.MatchResult{stored, unstored}, results)
	assert.Equal(t, 1, failures)
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, writeJSON(path, map[string]int{"count": 2}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 2, got["count"])
}

func TestValidateFile(t *testing.T) {
	patient := writeFile(t, "patient.json", patientJSON)
	invalid := writeFile(t, "patient.json", `{"age": 200}`)

	tests := []struct {
		name    string
		schema  string
		path    string
		wantErr string
	}{
		{name: "built-in patient", schema: "patient", path: patient},
		{name: "built-in criteria", schema: "criteria", path: writeFile(t, "criteria.json", criteriaJSON)},
		{name: "schema path", schema: filepath.Join("schemas", "patient_profile.schema.json"), path: patient},
		{name: "invalid document", schema: "patient", path: invalid, wantErr: "validation failed"},
		{name: "unknown schema", schema: "nope.schema.json", path: patient, wantErr: "schema file not found"},
		{name: "missing document", schema: "patient", path: filepath.Join(t.TempDir(), "nope.json"), wantErr: "failed to read"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFile(tt.schema, tt.path)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}
