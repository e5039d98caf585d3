// Package resilience wraps every outbound endpoint call with a token-bucket
// rate limiter, a retry policy, and a circuit breaker. One limiter/breaker
// pair exists per endpoint and is shared across all investigations in the
// process; it is the only legitimately process-wide mutable state in the
// engine.
package resilience

import "time"

// RetryConfig controls the retry loop around a single endpoint.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// CircuitConfig controls the per-endpoint circuit breaker defaults. An
// endpoint's registry CircuitThreshold overrides FailureThreshold.
type CircuitConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// Config bundles the resilience defaults passed at construction.
type Config struct {
	Retry   RetryConfig
	Circuit CircuitConfig
}

// DefaultConfig returns the documented defaults: 3 attempts with 1s..10s
// exponential backoff, breaker tripping after 3 consecutive failures with a
// 60s cooldown.
func DefaultConfig() Config {
	return Config{
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseBackoff: time.Second,
			MaxBackoff:  10 * time.Second,
		},
		Circuit: CircuitConfig{
			FailureThreshold: 3,
			Cooldown:         60 * time.Second,
		},
	}
}

func (c *Config) withDefaults() Config {
	out := *c
	d := DefaultConfig()
	if out.Retry.MaxAttempts <= 0 {
		out.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if out.Retry.BaseBackoff <= 0 {
		out.Retry.BaseBackoff = d.Retry.BaseBackoff
	}
	if out.Retry.MaxBackoff <= 0 {
		out.Retry.MaxBackoff = d.Retry.MaxBackoff
	}
	if out.Circuit.FailureThreshold <= 0 {
		out.Circuit.FailureThreshold = d.Circuit.FailureThreshold
	}
	if out.Circuit.Cooldown <= 0 {
		out.Circuit.Cooldown = d.Circuit.Cooldown
	}
	return out
}
