package config

import (
	"errors"
	"fmt"
)

// Validate checks the merged configuration fail-fast, before anything is
// wired. Catalog cross-references (fallback existence, cycles) are checked
// by the registry itself at construction.
func (c *Config) Validate() error {
	var errs []error

	if c.Executor.MaxInFlightStages <= 0 {
		errs = append(errs, errors.New("executor.max_in_flight_stages must be positive"))
	}
	if c.Executor.MaxInFlightPerEndpoint <= 0 {
		errs = append(errs, errors.New("executor.max_in_flight_per_endpoint must be positive"))
	}
	if c.Executor.DefaultStageTimeout <= 0 {
		errs = append(errs, errors.New("executor.default_stage_timeout must be positive"))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry.max_attempts must be positive"))
	}
	if c.Retry.BaseBackoff > c.Retry.MaxBackoff {
		errs = append(errs, errors.New("retry.base_backoff exceeds retry.max_backoff"))
	}
	if c.Circuit.FailureThreshold <= 0 {
		errs = append(errs, errors.New("circuit.failure_threshold must be positive"))
	}
	if c.Progress.BufferSize <= 0 {
		errs = append(errs, errors.New("progress.buffer_size must be positive"))
	}
	if c.Queue.Workers <= 0 {
		errs = append(errs, errors.New("queue.workers must be positive"))
	}

	seen := make(map[string]bool, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		where := fmt.Sprintf("endpoints[%d]", i)
		if ep.ID == "" {
			errs = append(errs, fmt.Errorf("%s: id is required", where))
			continue
		}
		if seen[ep.ID] {
			errs = append(errs, fmt.Errorf("%s: duplicate endpoint id %q", where, ep.ID))
		}
		seen[ep.ID] = true
		if ep.BaseURL == "" {
			errs = append(errs, fmt.Errorf("endpoint %s: base_url is required", ep.ID))
		}
		if len(ep.Capabilities) == 0 {
			errs = append(errs, fmt.Errorf("endpoint %s: at least one capability is required", ep.ID))
		}
		if ep.RatePerMinute <= 0 {
			errs = append(errs, fmt.Errorf("endpoint %s: rate_per_minute must be positive", ep.ID))
		}
		if ep.APIKeyHeader != "" && ep.APIKeyEnv == "" {
			errs = append(errs, fmt.Errorf("endpoint %s: api_key_header set without api_key_env", ep.ID))
		}
	}

	return errors.Join(errs...)
}
