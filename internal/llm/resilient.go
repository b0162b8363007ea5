package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ResilienceConfig tunes the rate limiter and circuit breaker in front of a Client
type ResilienceConfig struct {
	// RequestsPerSecond caps calls to the provider; <= 0 disables limiting
	RequestsPerSecond float64
	Burst             int
	// FailureThreshold is the number of consecutive failures that opens the breaker
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before a trial request
	OpenTimeout time.Duration
	// Interval clears the failure counts while closed
	Interval time.Duration
}

// DefaultResilienceConfig returns limits suited to a single API key
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		RequestsPerSecond: 2,
		Burst:             4,
		FailureThreshold:  5,
		OpenTimeout:       30 * time.Second,
		Interval:          time.Minute,
	}
}

// ResilientClient wraps a Client with rate limiting and a circuit breaker.
// It is safe for concurrent use.
type ResilientClient struct {
	inner   Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewResilientClient wraps inner
func NewResilientClient(inner Client, cfg ResilienceConfig, logger *logrus.Logger) *ResilientClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultResilienceConfig().FailureThreshold
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// caller cancellations say nothing about provider health
			return err == nil || err == context.Canceled
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &ResilientClient{
		inner:   inner,
		limiter: limiter,
		breaker: breaker,
		logger:  logger,
	}
}

// GenerateContent implements Client
func (r *ResilientClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	return r.call(ctx, func() (string, error) {
		return r.inner.GenerateContent(ctx, prompt, tier)
	})
}

// GenerateJSON implements Client
func (r *ResilientClient) GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	return r.call(ctx, func() (string, error) {
		return r.inner.GenerateJSON(ctx, prompt, tier)
	})
}

// GetModel implements Client
func (r *ResilientClient) GetModel(tier ModelTier) string {
	return r.inner.GetModel(tier)
}

// Close implements Client
func (r *ResilientClient) Close() error {
	return r.inner.Close()
}

// State reports the breaker state
func (r *ResilientClient) State() gobreaker.State {
	return r.breaker.State()
}

func (r *ResilientClient) call(ctx context.Context, fn func() (string, error)) (string, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	out, err := r.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return "", fmt.Errorf("llm call failed: %w", err)
	}
	return out.(string), nil
}
