package config

import (
	"time"

	"github.com/transparencia-br/fiscal/pkg/analyzer"
)

// DefaultConfig returns the engine defaults. User YAML is merged on top;
// anything it leaves out keeps these values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:             ":8080",
			ShutdownGraceSec: 10,
		},
		Database: DatabaseConfig{
			Host:        "localhost",
			Port:        5432,
			Name:        "fiscal",
			User:        "fiscal",
			PasswordEnv: "FISCAL_DB_PASSWORD",
			SSLMode:     "disable",
			MaxConns:    10,
		},
		Executor: ExecutorConfig{
			MaxInFlightStages:        8,
			MaxInFlightPerEndpoint:   4,
			DefaultStageTimeout:      Duration(30 * time.Second),
			DefaultInvocationTimeout: Duration(10 * time.Second),
			DefaultStageEstimate:     Duration(10 * time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseBackoff: Duration(time.Second),
			MaxBackoff:  Duration(10 * time.Second),
		},
		Circuit: CircuitConfig{
			FailureThreshold: 3,
			Cooldown:         Duration(60 * time.Second),
		},
		Analyzer: analyzer.DefaultConfig(),
		Progress: ProgressConfig{
			BufferSize: 256,
			SendWait:   Duration(50 * time.Millisecond),
		},
		Queue: QueueConfig{
			Workers:     4,
			MaxQueueLen: 64,
		},
	}
}
