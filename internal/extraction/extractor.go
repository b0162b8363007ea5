// Package extraction converts free-text trial eligibility criteria into a typed
// EligibilitySpec using the text-understanding service, and caches the result
// on the trial record keyed by a hash of the source text.
package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/trial-matcher/internal/llm"
	"github.com/jonathan/trial-matcher/internal/metrics"
	"github.com/jonathan/trial-matcher/internal/prompts"
	"github.com/jonathan/trial-matcher/internal/types"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds one call to the text-understanding service
const DefaultTimeout = 60 * time.Second

// TrialStore loads trials and records their parsed criteria
type TrialStore interface {
	// GetTrial returns nil, nil when the trial does not exist
	GetTrial(ctx context.Context, trialID string) (*types.Trial, error)
	// SaveParsedCriteria fully replaces the stored criteria for a trial
	SaveParsedCriteria(ctx context.Context, trialID string, spec *types.EligibilitySpec, hash, summary string) error
}

// Config tunes extraction
type Config struct {
	Timeout      time.Duration
	StoreTimeout time.Duration
	Tier         llm.ModelTier
}

// Extractor builds EligibilitySpecs from raw text. Safe for concurrent use.
type Extractor struct {
	client  llm.Client
	store   TrialStore
	cfg     Config
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

// New creates an Extractor. client may be nil, in which case every extraction
// yields a manual-review spec. store may be nil when only Extract is used.
func New(client llm.Client, store TrialStore, cfg Config, logger *logrus.Logger, m *metrics.Metrics) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}
	if cfg.Tier == "" {
		cfg.Tier = llm.TierStandard
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Extractor{client: client, store: store, cfg: cfg, logger: logger, metrics: m}
}

// HashCriteriaText returns the cache key for raw eligibility text
func HashCriteriaText(rawText string) string {
	sum := sha256.Sum256([]byte(rawText))
	return hex.EncodeToString(sum[:])
}

// IsFresh reports whether the trial's stored criteria were parsed from its
// current raw text
func IsFresh(trial *types.Trial) bool {
	return trial != nil &&
		trial.ParsedCriteria != nil &&
		trial.CriteriaHash != "" &&
		trial.CriteriaHash == HashCriteriaText(trial.RawEligibilityText)
}

// Extract converts rawText into a spec. It never fails: collaborator errors and
// undecodable output yield a manual-review spec carrying the reason.
func (e *Extractor) Extract(ctx context.Context, rawText string) *types.EligibilitySpec {
	spec, err := e.extract(ctx, rawText)
	if err != nil {
		e.logger.WithError(err).WithField("text_length", len(rawText)).Warn("Criteria extraction failed, flagging for manual review")
		e.metrics.IncrementExtraction(metrics.ExtractionManualReview)
		return types.ManualReviewSpec(err.Error())
	}
	e.metrics.IncrementExtraction(metrics.ExtractionExtracted)
	return spec
}

func (e *Extractor) extract(ctx context.Context, rawText string) (*types.EligibilitySpec, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, &ValidationError{Field: "eligibility_text", Message: "no eligibility text to extract from"}
	}
	if e.client == nil {
		return nil, &APICallError{Message: "no text-understanding client configured"}
	}

	prompt, err := prompts.Render(prompts.ExtractionFile, prompts.ExtractCriteriaKey, map[string]string{
		"EligibilityText": rawText,
	})
	if err != nil {
		return nil, &APICallError{Message: "failed to build prompt", Cause: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	output, err := e.client.GenerateJSON(callCtx, prompt, e.cfg.Tier)
	e.metrics.ObserveExtractionLatency(time.Since(start))
	if err != nil {
		return nil, &APICallError{Message: "failed to generate criteria", Cause: err}
	}

	spec, err := DecodeEligibilitySpec(output)
	if err != nil {
		return nil, err
	}

	if n := downgradedCount(spec); n > 0 {
		e.logger.WithFields(logrus.Fields{
			"downgraded": n,
			"criteria":   spec.CriteriaCount(),
		}).Info("Some criteria could not be typed and were kept as other")
	}
	return spec, nil
}

// SpecForTrial returns the trial's criteria, extracting and persisting them when
// the stored copy is absent, stale or force is set, and updates trial in place.
// It never fails; a store write error is logged and the spec is still returned.
func (e *Extractor) SpecForTrial(ctx context.Context, trial *types.Trial, force bool) *types.EligibilitySpec {
	if !force && IsFresh(trial) {
		e.metrics.IncrementExtraction(metrics.ExtractionCacheHit)
		return trial.ParsedCriteria
	}

	spec := e.Extract(ctx, trial.RawEligibilityText)

	// a failed refresh of unchanged text keeps the stored criteria
	if spec.NeedsManualReview && IsFresh(trial) {
		e.logger.WithFields(logrus.Fields{
			"trial_id": trial.ID,
			"reason":   spec.ReviewReason,
		}).Warn("Re-extraction failed, keeping stored criteria")
		return trial.ParsedCriteria
	}

	// a manual-review result is stored without a hash so the next request retries
	hash := ""
	if !spec.NeedsManualReview {
		hash = HashCriteriaText(trial.RawEligibilityText)
	}

	if e.store != nil {
		storeCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
		err := e.store.SaveParsedCriteria(storeCtx, trial.ID, spec, hash, spec.Summary())
		cancel()
		if err != nil {
			e.metrics.IncrementPersistFailure("criteria")
			e.logger.WithError(err).WithField("trial_id", trial.ID).Error("Failed to persist parsed criteria")
		}
	}

	now := time.Now().UTC()
	trial.ParsedCriteria = spec
	trial.CriteriaHash = hash
	trial.CriteriaSummary = spec.Summary()
	trial.CriteriaParsedAt = &now

	e.logger.WithFields(logrus.Fields{
		"trial_id":      trial.ID,
		"inclusion":     len(spec.Inclusion),
		"exclusion":     len(spec.Exclusion),
		"manual_review": spec.NeedsManualReview,
		"forced":        force,
	}).Info("Extracted eligibility criteria")
	return spec
}

// ExtractForTrial loads a trial and returns its criteria via SpecForTrial.
// Only a failed or empty trial lookup is an error.
func (e *Extractor) ExtractForTrial(ctx context.Context, trialID string, force bool) (*types.EligibilitySpec, error) {
	if e.store == nil {
		return nil, fmt.Errorf("no trial store configured")
	}
	storeCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	trial, err := e.store.GetTrial(storeCtx, trialID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to load trial %s: %w", trialID, err)
	}
	if trial == nil {
		return nil, &TrialNotFoundError{TrialID: trialID}
	}
	return e.SpecForTrial(ctx, trial, force), nil
}
