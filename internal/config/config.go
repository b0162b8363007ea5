// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathan/trial-matcher/internal/scoring"
)

// Config represents the configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via
// CLI flags or the environment.
type Config struct {
	// Connections
	APIKey      string `json:"api_key,omitempty"`      // Gemini API key
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	ListenAddr  string `json:"listen_addr,omitempty"`  // HTTP listen address for serve

	// Logging
	LogLevel  string `json:"log_level,omitempty"`  // logrus level name
	LogFormat string `json:"log_format,omitempty"` // "text" or "json"

	// Concurrency and timeouts
	MaxConcurrency           int `json:"max_concurrency,omitempty"`            // Parallel matches in a batch
	ExtractionTimeoutSeconds int `json:"extraction_timeout_seconds,omitempty"` // Criteria extraction call
	ExplainTimeoutSeconds    int `json:"explain_timeout_seconds,omitempty"`    // Explanation call
	StoreTimeoutSeconds      int `json:"store_timeout_seconds,omitempty"`      // One store call

	// Text-understanding service limits
	LLMRequestsPerSecond    float64 `json:"llm_requests_per_second,omitempty"`
	LLMBurst                int     `json:"llm_burst,omitempty"`
	BreakerFailureThreshold int     `json:"breaker_failure_threshold,omitempty"` // Consecutive failures before the breaker opens
	BreakerOpenSeconds      int     `json:"breaker_open_seconds,omitempty"`

	// Synonym cache
	SynonymCacheSize       int `json:"synonym_cache_size,omitempty"`
	SynonymCacheTTLSeconds int `json:"synonym_cache_ttl_seconds,omitempty"`

	// HTTP rate limit per client IP
	RateLimitPerMinute int `json:"rate_limit_per_minute,omitempty"`

	// Policy overrides the default scoring thresholds when set
	Policy *scoring.Policy `json:"policy,omitempty"`
}

// Defaults returns the built-in configuration
func Defaults() Config {
	policy := scoring.DefaultPolicy()
	return Config{
		ListenAddr:               ":8080",
		LogLevel:                 "info",
		LogFormat:                "text",
		MaxConcurrency:           4,
		ExtractionTimeoutSeconds: 60,
		ExplainTimeoutSeconds:    20,
		StoreTimeoutSeconds:      10,
		LLMRequestsPerSecond:     2,
		LLMBurst:                 4,
		BreakerFailureThreshold:  5,
		BreakerOpenSeconds:       30,
		SynonymCacheSize:         1000,
		SynonymCacheTTLSeconds:   900,
		RateLimitPerMinute:       60,
		Policy:                   &policy,
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// a partial policy object overrides individual defaults
	if cfg.Policy != nil {
		var raw struct {
			Policy json.RawMessage `json:"policy"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
		policy := scoring.DefaultPolicy()
		if err := json.Unmarshal(raw.Policy, &policy); err != nil {
			return nil, fmt.Errorf("failed to parse policy: %w", err)
		}
		cfg.Policy = &policy
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those depend on the
// command being run.
func (c *Config) Validate() error {
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("config error: 'log_format' must be \"text\" or \"json\"")
	}

	// Validate numeric ranges
	nonNegative := map[string]int{
		"max_concurrency":            c.MaxConcurrency,
		"extraction_timeout_seconds": c.ExtractionTimeoutSeconds,
		"explain_timeout_seconds":    c.ExplainTimeoutSeconds,
		"store_timeout_seconds":      c.StoreTimeoutSeconds,
		"llm_burst":                  c.LLMBurst,
		"breaker_failure_threshold":  c.BreakerFailureThreshold,
		"breaker_open_seconds":       c.BreakerOpenSeconds,
		"synonym_cache_size":         c.SynonymCacheSize,
		"synonym_cache_ttl_seconds":  c.SynonymCacheTTLSeconds,
		"rate_limit_per_minute":      c.RateLimitPerMinute,
	}
	for _, name := range sortedKeys(nonNegative) {
		if nonNegative[name] < 0 {
			return fmt.Errorf("config error: '%s' must be non-negative", name)
		}
	}
	if c.LLMRequestsPerSecond < 0 {
		return fmt.Errorf("config error: 'llm_requests_per_second' must be non-negative")
	}

	if c.Policy != nil {
		if err := c.Policy.Validate(); err != nil {
			return fmt.Errorf("config error: policy: %w", err)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.ListenAddr == "" {
		result.ListenAddr = defaults.ListenAddr
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}
	if result.LogFormat == "" {
		result.LogFormat = defaults.LogFormat
	}

	// Int fields: use default if zero
	mergeInt(&result.MaxConcurrency, defaults.MaxConcurrency)
	mergeInt(&result.ExtractionTimeoutSeconds, defaults.ExtractionTimeoutSeconds)
	mergeInt(&result.ExplainTimeoutSeconds, defaults.ExplainTimeoutSeconds)
	mergeInt(&result.StoreTimeoutSeconds, defaults.StoreTimeoutSeconds)
	mergeInt(&result.LLMBurst, defaults.LLMBurst)
	mergeInt(&result.BreakerFailureThreshold, defaults.BreakerFailureThreshold)
	mergeInt(&result.BreakerOpenSeconds, defaults.BreakerOpenSeconds)
	mergeInt(&result.SynonymCacheSize, defaults.SynonymCacheSize)
	mergeInt(&result.SynonymCacheTTLSeconds, defaults.SynonymCacheTTLSeconds)
	mergeInt(&result.RateLimitPerMinute, defaults.RateLimitPerMinute)

	// Float fields
	if result.LLMRequestsPerSecond == 0 {
		result.LLMRequestsPerSecond = defaults.LLMRequestsPerSecond
	}

	if result.Policy == nil && defaults.Policy != nil {
		p := *defaults.Policy
		result.Policy = &p
	}

	return result
}

// ApplyEnv overrides connection settings from the environment. Values already
// set in the file win only when the variable is unset.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("GEMINI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// ScoringPolicy returns the configured policy or the default one
func (c *Config) ScoringPolicy() scoring.Policy {
	if c.Policy == nil {
		return scoring.DefaultPolicy()
	}
	return *c.Policy
}

// ExtractionTimeout returns the extraction call timeout
func (c *Config) ExtractionTimeout() time.Duration {
	return seconds(c.ExtractionTimeoutSeconds)
}

// ExplainTimeout returns the explanation call timeout
func (c *Config) ExplainTimeout() time.Duration {
	return seconds(c.ExplainTimeoutSeconds)
}

// StoreTimeout returns the timeout for one store call
func (c *Config) StoreTimeout() time.Duration {
	return seconds(c.StoreTimeoutSeconds)
}

// SynonymCacheTTL returns how long synonym lookups are cached
func (c *Config) SynonymCacheTTL() time.Duration {
	return seconds(c.SynonymCacheTTLSeconds)
}

// BreakerOpenTimeout returns how long the breaker stays open
func (c *Config) BreakerOpenTimeout() time.Duration {
	return seconds(c.BreakerOpenSeconds)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func mergeInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}
