// Package metrics provides Prometheus instrumentation for extraction, matching
// and persistence. All methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Extraction outcomes
const (
	ExtractionCacheHit     = "cache_hit"
	ExtractionExtracted    = "extracted"
	ExtractionManualReview = "manual_review"
)

// Synonym lookup outcomes
const (
	SynonymCacheHit  = "hit"
	SynonymCacheMiss = "miss"
	SynonymError     = "error"
)

// Metrics provides observability for the trial matcher.
type Metrics struct {
	// Extraction outcomes: cache_hit, extracted, manual_review
	ExtractionOutcome *prometheus.CounterVec

	// Collaborator latency for criteria extraction
	ExtractionLatency prometheus.Histogram

	// Match results by status
	MatchOutcome *prometheus.CounterVec

	// Full match latency including extraction and persistence
	MatchLatency prometheus.Histogram

	// Failed store writes by store
	PersistFailures *prometheus.CounterVec

	// Explanations served from the template fallback
	ExplanationFallbacks prometheus.Counter

	// Synonym lookups by cache outcome: hit, miss, error
	SynonymLookups *prometheus.CounterVec
}

// New creates a Metrics instance registered with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ExtractionOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trial_matcher_extractions_total",
			Help: "Criteria extraction requests by outcome",
		}, []string{"outcome"}),

		ExtractionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trial_matcher_extraction_duration_seconds",
			Help:    "Duration of criteria extraction calls to the text-understanding service",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
		}),

		MatchOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trial_matcher_matches_total",
			Help: "Match results by eligibility status",
		}, []string{"status"}),

		MatchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trial_matcher_match_duration_seconds",
			Help:    "Duration of a full patient/trial match",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		PersistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trial_matcher_persist_failures_total",
			Help: "Failed store writes by store",
		}, []string{"store"}), // store: "criteria", "match_result"

		ExplanationFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "trial_matcher_explanation_fallbacks_total",
			Help: "Explanations built from templates because generation failed",
		}),

		SynonymLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trial_matcher_synonym_lookups_total",
			Help: "Term mapping lookups by cache outcome",
		}, []string{"outcome"}),
	}
}

// IncrementExtraction records an extraction outcome.
func (m *Metrics) IncrementExtraction(outcome string) {
	if m != nil {
		m.ExtractionOutcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveExtractionLatency records the duration of one extraction call.
func (m *Metrics) ObserveExtractionLatency(d time.Duration) {
	if m != nil {
		m.ExtractionLatency.Observe(d.Seconds())
	}
}

// IncrementMatch records a match status.
func (m *Metrics) IncrementMatch(status string) {
	if m != nil {
		m.MatchOutcome.WithLabelValues(status).Inc()
	}
}

// ObserveMatchLatency records the duration of one match.
func (m *Metrics) ObserveMatchLatency(d time.Duration) {
	if m != nil {
		m.MatchLatency.Observe(d.Seconds())
	}
}

// IncrementPersistFailure records a failed write to store.
func (m *Metrics) IncrementPersistFailure(store string) {
	if m != nil {
		m.PersistFailures.WithLabelValues(store).Inc()
	}
}

// IncrementExplanationFallback records a templated explanation.
func (m *Metrics) IncrementExplanationFallback() {
	if m != nil {
		m.ExplanationFallbacks.Inc()
	}
}

// IncrementSynonymLookup records a term mapping lookup outcome.
func (m *Metrics) IncrementSynonymLookup(outcome string) {
	if m != nil {
		m.SynonymLookups.WithLabelValues(outcome).Inc()
	}
}
