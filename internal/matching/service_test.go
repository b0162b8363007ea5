package matching

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/trial-matcher/internal/evaluation"
	"github.com/jonathan/trial-matcher/internal/explain"
	"github.com/jonathan/trial-matcher/internal/extraction"
	"github.com/jonathan/trial-matcher/internal/llm"
	"github.com/jonathan/trial-matcher/internal/metrics"
	"github.com/jonathan/trial-matcher/internal/scoring"
	"github.com/jonathan/trial-matcher/internal/synonyms"
	"github.com/jonathan/trial-matcher/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLLMClient is a mock implementation of llm.Client for testing
type MockLLMClient struct {
	GenerateJSONFunc func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)

	mu    sync.Mutex
	calls int
}

func (m *MockLLMClient) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return m.GenerateJSON(ctx, prompt, tier)
}

func (m *MockLLMClient) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.GenerateJSONFunc(ctx, prompt, tier)
}

func (m *MockLLMClient) GetModel(_ llm.ModelTier) string { return "mock-model" }

func (m *MockLLMClient) Close() error { return nil }

func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakeTrials struct {
	mu     sync.Mutex
	trials map[string]*types.Trial
	getErr error
}

func (f *fakeTrials) GetTrial(_ context.Context, id string) (*types.Trial, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	t, ok := f.trials[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTrials) SaveParsedCriteria(_ context.Context, id string, spec *types.EligibilitySpec, hash, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.trials[id]
	t.ParsedCriteria = spec
	t.CriteriaHash = hash
	t.CriteriaSummary = summary
	return nil
}

type fakeResults struct {
	mu      sync.Mutex
	results map[string]*types.MatchResult
	err     error
}

func resultKey(pid uuid.UUID, trialID string) string { return pid.String() + "/" + trialID }

func (f *fakeResults) UpsertMatchResult(_ context.Context, r *types.MatchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := *r
	f.results[resultKey(r.PatientID, r.TrialID)] = &cp
	return nil
}

func (f *fakeResults) GetMatchResult(_ context.Context, pid uuid.UUID, trialID string) (*types.MatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[resultKey(pid, trialID)], nil
}

type fakePatients struct {
	profiles map[uuid.UUID]*types.PatientProfile
	order    []uuid.UUID
}

func (f *fakePatients) GetPatientProfile(_ context.Context, id uuid.UUID) (*types.PatientProfile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePatients) ListPatientIDs(_ context.Context) ([]uuid.UUID, error) {
	return f.order, nil
}

const criteriaOutput = `{
	"inclusion": [
		{"type": "age", "text": "Age 18-65", "parameters": {"min_age": 18, "max_age": 65}},
		{"type": "condition", "text": "Type 2 diabetes", "parameters": {"condition_name": "type 2 diabetes"}}
	],
	"exclusion": [
		{"type": "condition", "text": "Pregnancy", "parameters": {"condition_name": "pregnancy"}}
	]
}`

type fixture struct {
	service  *Service
	client   *MockLLMClient
	trials   *fakeTrials
	results  *fakeResults
	patients *fakePatients
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	m := metrics.New(prometheus.NewRegistry())
	policy := scoring.DefaultPolicy()

	client := &MockLLMClient{GenerateJSONFunc: func(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
		if tier == llm.TierLite {
			return `{"summary": "You look like a good fit.", "next_steps": ["Call the study team"]}`, nil
		}
		return criteriaOutput, nil
	}}
	trials := &fakeTrials{trials: map[string]*types.Trial{
		"NCT001": {ID: "NCT001", Title: "Diabetes Study", RawEligibilityText: "Adults 18-65 with type 2 diabetes. Not pregnant."},
		"NCT002": {ID: "NCT002", Title: "Empty Study", RawEligibilityText: ""},
	}}
	results := &fakeResults{results: map[string]*types.MatchResult{}}
	patients := &fakePatients{profiles: map[uuid.UUID]*types.PatientProfile{}}

	svc, err := NewService(Deps{
		Trials:    trials,
		Results:   results,
		Patients:  patients,
		Extractor: extraction.New(client, trials, extraction.Config{}, logger, m),
		Evaluator: evaluation.NewEvaluator(policy, synonyms.NewStaticSource(nil), logger),
		Explainer: explain.NewGenerator(client, explain.Config{}, logger, m),
		Policy:    policy,
		Metrics:   m,
		Logger:    logger,
	}, Config{MaxConcurrency: 2})
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	return &fixture{service: svc, client: client, trials: trials, results: results, patients: patients, metrics: m}
}

func agePtr(v float64) *float64 { return &v }

func eligiblePatient() *types.PatientProfile {
	return &types.PatientProfile{
		ID:         uuid.New(),
		Age:        agePtr(45),
		Conditions: []string{"Type 2 Diabetes"},
	}
}

func TestMatch_EndToEnd(t *testing.T) {
	f := newFixture(t)
	patient := eligiblePatient()

	result, err := f.service.Match(context.Background(), patient, "NCT001")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, patient.ID, result.PatientID)
	assert.Equal(t, "NCT001", result.TrialID)
	assert.Equal(t, types.StatusLikelyEligible, result.Status)
	assert.InDelta(t, 0.9, result.MatchScore, 1e-9)
	assert.Len(t, result.MatchedCriteria, 3)
	assert.Empty(t, result.MissingInfo)
	assert.Equal(t, "You look like a good fit.", result.ExplanationSummary)
	assert.Equal(t, []string{"Call the study team"}, result.NextSteps)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), result.ComputedAt)

	stored := f.results.results[resultKey(patient.ID, "NCT001")]
	require.NotNil(t, stored)
	assert.Equal(t, result.Status, stored.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MatchOutcome.WithLabelValues(string(types.StatusLikelyEligible))))

	// criteria were persisted, so a second match does not extract again
	_, err = f.service.Match(context.Background(), patient, "NCT001")
	require.NoError(t, err)
	assert.Equal(t, 3, f.client.Calls(), "one extraction and two explanations")
}

func TestMatch_RematchReplacesResult(t *testing.T) {
	f := newFixture(t)
	patient := eligiblePatient()

	_, err := f.service.Match(context.Background(), patient, "NCT001")
	require.NoError(t, err)

	patient.Age = agePtr(70)
	result, err := f.service.Match(context.Background(), patient, "NCT001")
	require.NoError(t, err)
	assert.NotEqual(t, types.StatusLikelyEligible, result.Status)

	assert.Len(t, f.results.results, 1)
	got, err := f.service.GetResult(context.Background(), patient.ID, "NCT001")
	require.NoError(t, err)
	assert.Equal(t, result.Status, got.Status)
}

func TestMatch_NoCriteriaTextNeedsManualReview(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Match(context.Background(), eligiblePatient(), "NCT002")
	require.NoError(t, err)
	assert.Equal(t, types.StatusNeedMoreInfo, result.Status)
	assert.Equal(t, 0.0, result.MatchScore)
	assert.True(t, result.NeedsManualReview)
	assert.Equal(t, []string{scoring.ManualReviewMissingInfo}, result.MissingInfo)
}

func TestExtract_ForceReextracts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	spec, err := f.service.Extract(ctx, "NCT001", false)
	require.NoError(t, err)
	assert.Len(t, spec.Inclusion, 2)

	_, err = f.service.Extract(ctx, "NCT001", false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.client.Calls(), "stored criteria are reused")

	_, err = f.service.Reextract(ctx, "NCT001")
	require.NoError(t, err)
	assert.Equal(t, 2, f.client.Calls())

	_, err = f.service.Extract(ctx, "NCT404", false)
	var notFound *extraction.TrialNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestMatch_Errors(t *testing.T) {
	t.Run("trial not found", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.service.Match(context.Background(), eligiblePatient(), "NCT404")
		assert.Nil(t, result)
		var notFound *extraction.TrialNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "NCT404", notFound.TrialID)
	})

	t.Run("trial lookup fails", func(t *testing.T) {
		f := newFixture(t)
		f.trials.getErr = errors.New("connection refused")
		result, err := f.service.Match(context.Background(), eligiblePatient(), "NCT001")
		assert.Nil(t, result)
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("invalid profile", func(t *testing.T) {
		f := newFixture(t)
		p := eligiblePatient()
		p.Age = agePtr(-3)
		_, err := f.service.Match(context.Background(), p, "NCT001")
		var invalid *InvalidProfileError
		assert.ErrorAs(t, err, &invalid)

		_, err = f.service.Match(context.Background(), nil, "NCT001")
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("persist failure still returns result", func(t *testing.T) {
		f := newFixture(t)
		f.results.err = errors.New("disk full")
		result, err := f.service.Match(context.Background(), eligiblePatient(), "NCT001")
		require.NotNil(t, result)
		assert.Equal(t, types.StatusLikelyEligible, result.Status)

		var persistErr *PersistError
		require.ErrorAs(t, err, &persistErr)
		assert.True(t, persistErr.Retryable())
		assert.ErrorContains(t, err, "disk full")
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PersistFailures.WithLabelValues("match_result")))
	})
}

func TestEvaluate_Pure(t *testing.T) {
	f := newFixture(t)
	spec, err := extraction.DecodeEligibilitySpec(criteriaOutput)
	require.NoError(t, err)

	patient := &types.PatientProfile{Conditions: []string{"type 2 diabetes"}}
	first := f.service.Evaluate(context.Background(), spec, patient)
	second := f.service.Evaluate(context.Background(), spec, patient)
	assert.Equal(t, first, second)
	assert.Len(t, first.MissingInfo, 1, "age is missing")

	none := f.service.Evaluate(context.Background(), nil, patient)
	assert.Equal(t, types.StatusNeedMoreInfo, none.Status)
	assert.Equal(t, 0, f.client.Calls())
}

func TestMatchMany(t *testing.T) {
	f := newFixture(t)
	patient := eligiblePatient()

	items := f.service.MatchMany(context.Background(), patient, []string{"NCT001", "NCT404", "NCT002"})
	require.Len(t, items, 3)

	assert.Equal(t, "NCT001", items[0].TrialID)
	require.NoError(t, items[0].Err)
	assert.Equal(t, types.StatusLikelyEligible, items[0].Result.Status)

	assert.Equal(t, "NCT404", items[1].TrialID)
	assert.Nil(t, items[1].Result)
	var notFound *extraction.TrialNotFoundError
	assert.ErrorAs(t, items[1].Err, &notFound)

	assert.Equal(t, "NCT002", items[2].TrialID)
	require.NoError(t, items[2].Err)
	assert.Equal(t, types.StatusNeedMoreInfo, items[2].Result.Status)

	for _, it := range items {
		assert.Equal(t, patient.ID, it.PatientID)
	}
}

func TestMatchMany_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := f.service.MatchMany(ctx, eligiblePatient(), []string{"NCT001", "NCT002"})
	require.Len(t, items, 2)
	for _, it := range items {
		assert.ErrorIs(t, it.Err, context.Canceled)
	}
}

func TestRescreen(t *testing.T) {
	f := newFixture(t)
	young := eligiblePatient()
	old := eligiblePatient()
	old.Age = agePtr(80)
	ghost := uuid.New()
	f.patients.profiles[young.ID] = young
	f.patients.profiles[old.ID] = old
	f.patients.order = []uuid.UUID{young.ID, ghost, old.ID}

	items, err := f.service.Rescreen(context.Background(), "NCT001", nil)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, young.ID, items[0].PatientID)
	require.NoError(t, items[0].Err)
	assert.Equal(t, types.StatusLikelyEligible, items[0].Result.Status)

	var notFound *PatientNotFoundError
	assert.ErrorAs(t, items[1].Err, &notFound)

	require.NoError(t, items[2].Err)
	assert.NotEqual(t, types.StatusLikelyEligible, items[2].Result.Status)

	// one extraction for the whole batch plus one explanation per evaluated patient
	assert.Equal(t, 3, f.client.Calls())

	_, err = f.service.Rescreen(context.Background(), "NCT404", nil)
	var trialMissing *extraction.TrialNotFoundError
	assert.ErrorAs(t, err, &trialMissing)
}

func TestNewService_Validation(t *testing.T) {
	logger, _ := test.NewNullLogger()
	policy := scoring.DefaultPolicy()
	evaluator := evaluation.NewEvaluator(policy, synonyms.NewStaticSource(nil), logger)
	extractor := extraction.New(nil, nil, extraction.Config{}, logger, nil)

	_, err := NewService(Deps{Extractor: extractor, Evaluator: evaluator, Policy: policy}, Config{})
	assert.Error(t, err, "trial store is required")

	bad := policy
	bad.PossiblyEligibleScore = 0.95
	_, err = NewService(Deps{Trials: &fakeTrials{}, Extractor: extractor, Evaluator: evaluator, Policy: bad}, Config{})
	assert.Error(t, err)

	svc, err := NewService(Deps{Trials: &fakeTrials{}, Extractor: extractor, Evaluator: evaluator, Policy: policy}, Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxConcurrency, svc.cfg.MaxConcurrency)

	_, err = svc.GetResult(context.Background(), uuid.New(), "NCT001")
	assert.Error(t, err)
	_, err = svc.Rescreen(context.Background(), "NCT001", nil)
	assert.Error(t, err)
}
