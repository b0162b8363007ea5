package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementExtraction(ExtractionCacheHit)
	m.IncrementExtraction(ExtractionCacheHit)
	m.IncrementExtraction(ExtractionManualReview)
	m.IncrementMatch("possibly_eligible")
	m.IncrementPersistFailure("match_result")
	m.IncrementExplanationFallback()
	m.IncrementSynonymLookup(SynonymCacheMiss)
	m.ObserveExtractionLatency(2 * time.Second)
	m.ObserveMatchLatency(150 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ExtractionOutcome.WithLabelValues(ExtractionCacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionOutcome.WithLabelValues(ExtractionManualReview)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MatchOutcome.WithLabelValues("possibly_eligible")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures.WithLabelValues("match_result")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExplanationFallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SynonymLookups.WithLabelValues(SynonymCacheMiss)))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 7)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementExtraction(ExtractionExtracted)
		m.ObserveExtractionLatency(time.Second)
		m.IncrementMatch("likely_eligible")
		m.ObserveMatchLatency(time.Second)
		m.IncrementPersistFailure("criteria")
		m.IncrementExplanationFallback()
		m.IncrementSynonymLookup(SynonymError)
	})
}
