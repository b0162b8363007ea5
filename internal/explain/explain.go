// Package explain writes the patient-facing summary and next steps for a match result.
package explain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/trial-matcher/internal/llm"
	"github.com/jonathan/trial-matcher/internal/metrics"
	"github.com/jonathan/trial-matcher/internal/prompts"
	"github.com/jonathan/trial-matcher/internal/types"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds one explanation call
const DefaultTimeout = 20 * time.Second

// maxNextSteps caps how many steps are returned to the patient
const maxNextSteps = 4

// Config tunes explanation generation
type Config struct {
	Timeout time.Duration
	Tier    llm.ModelTier
}

// Input holds the facts an explanation is written from
type Input struct {
	TrialID           string
	TrialTitle        string
	Status            types.MatchStatus
	Criteria          []types.MatchedCriterion
	MissingInfo       []string
	NeedsManualReview bool
}

// Explanation is the patient-facing text for a match
type Explanation struct {
	Summary   string
	NextSteps []string
	// Generated is false when the templated fallback was used
	Generated bool
}

// Generator produces explanations. A nil client always uses the template.
type Generator struct {
	client  llm.Client
	cfg     Config
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

// NewGenerator creates a Generator
func NewGenerator(client llm.Client, cfg Config, logger *logrus.Logger, m *metrics.Metrics) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Tier == "" {
		cfg.Tier = llm.TierLite
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Generator{client: client, cfg: cfg, logger: logger, metrics: m}
}

// Explain returns an explanation for in. It never fails; any problem with the
// text-understanding service falls back to a template built from the
// per-criterion explanations.
func (g *Generator) Explain(ctx context.Context, in Input) Explanation {
	if g.client == nil {
		return Fallback(in)
	}

	exp, err := g.generate(ctx, in)
	if err != nil {
		g.metrics.IncrementExplanationFallback()
		g.logger.WithError(err).WithField("trial_id", in.TrialID).Warn("Explanation generation failed, using template")
		return Fallback(in)
	}
	return exp
}

type response struct {
	Summary   string   `json:"summary"`
	NextSteps []string `json:"next_steps"`
}

func (g *Generator) generate(ctx context.Context, in Input) (Explanation, error) {
	matched, failed := partition(in.Criteria)
	prompt, err := prompts.Render(prompts.ExplanationFile, prompts.ExplainMatchKey, map[string]string{
		"TrialTitle": in.TrialTitle,
		"TrialID":    in.TrialID,
		"Status":     string(in.Status),
		"Matched":    bulletList(describe(matched)),
		"Failed":     bulletList(describe(failed)),
		"Missing":    bulletList(in.MissingInfo),
	})
	if err != nil {
		return Explanation{}, fmt.Errorf("failed to build prompt: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	text, err := g.client.GenerateJSON(callCtx, prompt, g.cfg.Tier)
	if err != nil {
		return Explanation{}, fmt.Errorf("failed to generate explanation: %w", err)
	}

	resp, err := decode(text)
	if err != nil {
		return Explanation{}, err
	}

	steps := cleanSteps(resp.NextSteps)
	if len(steps) == 0 {
		steps = fallbackSteps(in)
	}
	return Explanation{
		Summary:   strings.TrimSpace(resp.Summary),
		NextSteps: steps,
		Generated: true,
	}, nil
}

func decode(text string) (response, error) {
	var resp response
	var lastErr error
	for _, candidate := range []string{llm.CleanJSONBlock(text), llm.ExtractJSONObject(text)} {
		if candidate == "" {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), &resp); err != nil {
			lastErr = err
			continue
		}
		if strings.TrimSpace(resp.Summary) == "" {
			return response{}, fmt.Errorf("explanation response has no summary")
		}
		return resp, nil
	}
	if lastErr == nil {
		return response{}, fmt.Errorf("explanation response is empty")
	}
	return response{}, fmt.Errorf("failed to parse explanation response: %w", lastErr)
}

func cleanSteps(steps []string) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == maxNextSteps {
			break
		}
	}
	return out
}

// partition splits results into matched and failed. Missing results are
// reported through MissingInfo instead.
func partition(criteria []types.MatchedCriterion) (matched, failed []types.MatchedCriterion) {
	for _, c := range criteria {
		switch {
		case c.Matches:
			matched = append(matched, c)
		case !c.Missing:
			failed = append(failed, c)
		}
	}
	return matched, failed
}

func describe(criteria []types.MatchedCriterion) []string {
	lines := make([]string, 0, len(criteria))
	for _, c := range criteria {
		label := c.CriterionText
		if c.Exclusion {
			label = "Exclusion: " + label
		}
		if c.Explanation != "" {
			label += " (" + c.Explanation + ")"
		}
		lines = append(lines, label)
	}
	return lines
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "- none"
	}
	var sb strings.Builder
	for i, item := range items {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- ")
		sb.WriteString(item)
	}
	return sb.String()
}
