package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jonathan/trial-matcher/internal/config"
	"github.com/jonathan/trial-matcher/internal/db"
	"github.com/jonathan/trial-matcher/internal/evaluation"
	"github.com/jonathan/trial-matcher/internal/explain"
	"github.com/jonathan/trial-matcher/internal/extraction"
	"github.com/jonathan/trial-matcher/internal/llm"
	"github.com/jonathan/trial-matcher/internal/matching"
	"github.com/jonathan/trial-matcher/internal/metrics"
	"github.com/jonathan/trial-matcher/internal/observability"
	"github.com/jonathan/trial-matcher/internal/schemas"
	"github.com/jonathan/trial-matcher/internal/synonyms"
	"github.com/jonathan/trial-matcher/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// appOptions says which collaborators a subcommand cannot run without
type appOptions struct {
	needDB  bool
	needLLM bool
}

// app holds the wired collaborators for one command invocation
type app struct {
	cfg      config.Config
	logger   *logrus.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	printer  *observability.Printer

	client    llm.Client // nil when no API key is configured
	db        *db.DB     // nil unless connected
	extractor *extraction.Extractor
	evaluator *evaluation.Evaluator
	explainer *explain.Generator
	service   *matching.Service // nil without a database
}

// loadConfig resolves the configuration: config file, then environment, then flags
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return cfg, err
		}
		cfg = *loaded
	}

	cfg.ApplyEnv(os.Getenv)

	// Only override if the flag was explicitly set
	if flagChanged(cmd, "api-key") {
		cfg.APIKey = apiKey
	}
	if flagChanged(cmd, "db-url") {
		cfg.DatabaseURL = databaseURL
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	return cfg.MergeWithDefaults(config.Defaults()), nil
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil {
		return false
	}
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

// newApp wires the collaborators a command needs
func newApp(ctx context.Context, cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics.New(registry),
		printer:  observability.NewPrinter(os.Stderr),
	}

	if err := a.connectLLM(ctx, opts.needLLM); err != nil {
		return nil, err
	}
	if opts.needDB {
		if err := a.connectDB(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) connectLLM(ctx context.Context, required bool) error {
	if a.cfg.APIKey == "" {
		if required {
			return fmt.Errorf("API key is required (set GEMINI_API_KEY environment variable or use --api-key flag)")
		}
		a.logger.Debug("No API key configured; criteria extraction yields manual review and explanations use templates")
		return nil
	}

	inner, err := llm.NewClient(ctx, llm.DefaultConfig(), a.cfg.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	a.client = llm.NewResilientClient(inner, llm.ResilienceConfig{
		RequestsPerSecond: a.cfg.LLMRequestsPerSecond,
		Burst:             a.cfg.LLMBurst,
		FailureThreshold:  uint32(a.cfg.BreakerFailureThreshold),
		OpenTimeout:       a.cfg.BreakerOpenTimeout(),
		Interval:          llm.DefaultResilienceConfig().Interval,
	}, a.logger)
	return nil
}

func (a *app) connectDB(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}
	database, err := db.Connect(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = database
	return nil
}

func (a *app) wire() error {
	policy := a.cfg.ScoringPolicy()

	var source synonyms.Source
	if a.db != nil {
		source = synonyms.NewCachedSource(a.db, synonyms.CacheConfig{
			Size: a.cfg.SynonymCacheSize,
			TTL:  a.cfg.SynonymCacheTTL(),
		}, a.logger, a.metrics)
	} else {
		static, err := synonyms.DefaultSource()
		if err != nil {
			return fmt.Errorf("failed to load default vocabulary: %w", err)
		}
		source = static
	}

	extractionCfg := extraction.Config{
		Timeout:      a.cfg.ExtractionTimeout(),
		StoreTimeout: a.cfg.StoreTimeout(),
	}
	if a.db != nil {
		a.extractor = extraction.New(a.client, a.db, extractionCfg, a.logger, a.metrics)
	} else {
		a.extractor = extraction.New(a.client, nil, extractionCfg, a.logger, a.metrics)
	}
	a.evaluator = evaluation.NewEvaluator(policy, source, a.logger)
	a.explainer = explain.NewGenerator(a.client, explain.Config{Timeout: a.cfg.ExplainTimeout()}, a.logger, a.metrics)

	if a.db == nil {
		return nil
	}
	svc, err := matching.NewService(matching.Deps{
		Trials:    a.db,
		Results:   a.db,
		Patients:  a.db,
		Extractor: a.extractor,
		Evaluator: a.evaluator,
		Explainer: a.explainer,
		Policy:    policy,
		Metrics:   a.metrics,
		Logger:    a.logger,
	}, matching.Config{
		MaxConcurrency: a.cfg.MaxConcurrency,
		StoreTimeout:   a.cfg.StoreTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to create matching service: %w", err)
	}
	a.service = svc
	return nil
}

// Close releases the LLM client and database pool
func (a *app) Close() {
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close LLM client")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// readPatientProfile loads a profile file, checking it against the patient schema first
func readPatientProfile(path string) (*types.PatientProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read patient file: %w", err)
	}
	if err := schemas.ValidatePatientProfile(data); err != nil {
		var validationErr *schemas.ValidationError
		if errors.As(err, &validationErr) {
			return nil, fmt.Errorf("patient file does not validate against schema: %w", err)
		}
		return nil, fmt.Errorf("failed to validate patient file: %w", err)
	}

	var profile types.PatientProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse patient file: %w", err)
	}
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	return &profile, nil
}

// writeJSON writes v indented to path, or to stdout when path is empty
func writeJSON(path string, v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if path == "" {
		_, err = fmt.Fprintln(os.Stdout, string(jsonBytes))
		return err
	}
	if err := os.WriteFile(path, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
