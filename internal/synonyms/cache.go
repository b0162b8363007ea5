package synonyms

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jonathan/trial-matcher/internal/metrics"
	"github.com/jonathan/trial-matcher/internal/types"
	"github.com/sirupsen/logrus"
)

// CacheConfig sizes the lookup cache
type CacheConfig struct {
	Size int           `json:"size"`
	TTL  time.Duration `json:"ttl"`
}

// CachedSource memoizes successful lookups of another Source. Errors are not
// cached. Safe for concurrent use.
type CachedSource struct {
	inner   Source
	cache   *expirable.LRU[string, []types.TermMapping]
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

// NewCachedSource wraps inner with an LRU cache. m may be nil.
func NewCachedSource(inner Source, cfg CacheConfig, logger *logrus.Logger, m *metrics.Metrics) *CachedSource {
	if cfg.Size <= 0 {
		cfg.Size = 1000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CachedSource{
		inner:   inner,
		cache:   expirable.NewLRU[string, []types.TermMapping](cfg.Size, nil, cfg.TTL),
		logger:  logger,
		metrics: m,
	}
}

// Lookup implements Source
func (c *CachedSource) Lookup(ctx context.Context, medicalTerm string) ([]types.TermMapping, error) {
	key := Normalize(medicalTerm)
	if mappings, ok := c.cache.Get(key); ok {
		c.metrics.IncrementSynonymLookup(metrics.SynonymCacheHit)
		return mappings, nil
	}
	c.metrics.IncrementSynonymLookup(metrics.SynonymCacheMiss)

	mappings, err := c.inner.Lookup(ctx, key)
	if err != nil {
		c.metrics.IncrementSynonymLookup(metrics.SynonymError)
		return nil, err
	}

	c.cache.Add(key, mappings)
	c.logger.WithFields(logrus.Fields{
		"medical_term": key,
		"mappings":     len(mappings),
	}).Debug("Cached term mappings")
	return mappings, nil
}
