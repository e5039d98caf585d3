// Package config loads and validates the engine configuration: execution
// bounds, resilience defaults, detector thresholds, the progress stream
// budget, and the federated endpoint catalog.
package config

import (
	"github.com/transparencia-br/fiscal/pkg/analyzer"
	"github.com/transparencia-br/fiscal/pkg/registry"
)

// Config is the validated, ready-to-use engine configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Retry     RetryConfig     `yaml:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit"`
	Analyzer  analyzer.Config `yaml:"analyzer"`
	Progress  ProgressConfig  `yaml:"progress"`
	Queue     QueueConfig     `yaml:"queue"`
	Endpoints []EndpointYAML  `yaml:"endpoints"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Addr             string   `yaml:"addr"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	ShutdownGraceSec int      `yaml:"shutdown_grace_sec"`
}

// DatabaseConfig holds the PostgreSQL connection settings. The password
// comes from the environment, never from YAML.
type DatabaseConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Name        string `yaml:"name"`
	User        string `yaml:"user"`
	PasswordEnv string `yaml:"password_env"`
	SSLMode     string `yaml:"ssl_mode"`
	MaxConns    int    `yaml:"max_conns"`
}

// ExecutorConfig bounds plan execution.
type ExecutorConfig struct {
	MaxInFlightStages        int      `yaml:"max_in_flight_stages"`
	MaxInFlightPerEndpoint   int      `yaml:"max_in_flight_per_endpoint"`
	DefaultStageTimeout      Duration `yaml:"default_stage_timeout"`
	DefaultInvocationTimeout Duration `yaml:"default_invocation_timeout"`
	DefaultStageEstimate     Duration `yaml:"default_stage_estimate"`
}

// RetryConfig holds the endpoint retry defaults.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseBackoff Duration `yaml:"base_backoff"`
	MaxBackoff  Duration `yaml:"max_backoff"`
}

// CircuitConfig holds the circuit breaker defaults; a per-endpoint
// threshold in the catalog overrides FailureThreshold.
type CircuitConfig struct {
	FailureThreshold int      `yaml:"failure_threshold"`
	Cooldown         Duration `yaml:"cooldown"`
}

// ProgressConfig bounds the per-investigation event stream.
type ProgressConfig struct {
	BufferSize int      `yaml:"buffer_size"`
	SendWait   Duration `yaml:"send_wait"`
}

// QueueConfig bounds the investigation worker pool.
type QueueConfig struct {
	Workers     int `yaml:"workers"`
	MaxQueueLen int `yaml:"max_queue_len"`
}

// EndpointYAML is one catalog entry as written in YAML. API keys are
// referenced by environment variable name only.
type EndpointYAML struct {
	ID               string            `yaml:"id"`
	Category         registry.Category `yaml:"category"`
	BaseURL          string            `yaml:"base_url"`
	Capabilities     []string          `yaml:"capabilities"`
	RatePerMinute    int               `yaml:"rate_per_minute"`
	Timeout          Duration          `yaml:"timeout"`
	CircuitThreshold int               `yaml:"circuit_threshold"`
	Fallbacks        []string          `yaml:"fallbacks"`
	UF               string            `yaml:"uf"`
	StageEstimate    Duration          `yaml:"stage_estimate"`
	APIKeyEnv        string            `yaml:"api_key_env"`
	APIKeyHeader     string            `yaml:"api_key_header"`
}

// RegistryEndpoints converts the catalog entries to registry endpoints.
func (c *Config) RegistryEndpoints() []registry.Endpoint {
	out := make([]registry.Endpoint, 0, len(c.Endpoints))
	for _, e := range c.Endpoints {
		out = append(out, registry.Endpoint{
			ID:               e.ID,
			Category:         e.Category,
			Capabilities:     append([]string(nil), e.Capabilities...),
			RatePerMinute:    e.RatePerMinute,
			Timeout:          e.Timeout.Std(),
			CircuitThreshold: e.CircuitThreshold,
			Fallbacks:        append([]string(nil), e.Fallbacks...),
			UF:               e.UF,
			StageEstimate:    e.StageEstimate.Std(),
		})
	}
	return out
}
