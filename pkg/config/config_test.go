package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transparencia-br/fiscal/pkg/registry"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 8, cfg.Executor.MaxInFlightStages)
	assert.Equal(t, 256, cfg.Progress.BufferSize)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Empty(t, cfg.Endpoints)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
retry:
  max_attempts: 5
endpoints:
  - id: pncp
    category: federal
    base_url: https://pncp.gov.br/api
    capabilities: [search_contracts]
    rate_per_minute: 60
    timeout: 15s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	// Overridden values.
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	// Untouched defaults survive the merge.
	assert.Equal(t, time.Second, cfg.Retry.BaseBackoff.Std())
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 3, cfg.Circuit.FailureThreshold)

	require.Len(t, cfg.Endpoints, 1)
	assert.Equal(t, 15*time.Second, cfg.Endpoints[0].Timeout.Std())
}

func TestLoadExpandsEnvReferences(t *testing.T) {
	t.Setenv("FISCAL_TEST_ADDR", ":7777")
	path := writeConfig(t, `
server:
  addr: "${FISCAL_TEST_ADDR}"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.Addr)
}

func TestLoadUnknownEnvExpandsEmpty(t *testing.T) {
	path := writeConfig(t, `
database:
  host: "${FISCAL_TEST_UNSET_HOST}db.local"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "db.local", cfg.Database.Host)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	path := writeConfig(t, `
retry:
  base_backoff: fast
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid duration")
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Endpoints = []EndpointYAML{{
			ID:            "pncp",
			Category:      registry.CategoryFederal,
			BaseURL:       "https://pncp.gov.br/api",
			Capabilities:  []string{registry.CapSearchContracts},
			RatePerMinute: 60,
			Timeout:       Duration(15 * time.Second),
		}}
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("non-positive workers", func(t *testing.T) {
		cfg := valid()
		cfg.Queue.Workers = 0
		assert.ErrorContains(t, cfg.Validate(), "queue.workers")
	})

	t.Run("backoff bounds inverted", func(t *testing.T) {
		cfg := valid()
		cfg.Retry.BaseBackoff = Duration(20 * time.Second)
		assert.ErrorContains(t, cfg.Validate(), "base_backoff")
	})

	t.Run("duplicate endpoint id", func(t *testing.T) {
		cfg := valid()
		cfg.Endpoints = append(cfg.Endpoints, cfg.Endpoints[0])
		assert.ErrorContains(t, cfg.Validate(), "duplicate endpoint id")
	})

	t.Run("endpoint without capabilities", func(t *testing.T) {
		cfg := valid()
		cfg.Endpoints[0].Capabilities = nil
		assert.ErrorContains(t, cfg.Validate(), "capability")
	})

	t.Run("api key header without env", func(t *testing.T) {
		cfg := valid()
		cfg.Endpoints[0].APIKeyHeader = "chave-api-dados"
		assert.ErrorContains(t, cfg.Validate(), "api_key_header set without api_key_env")
	})

	t.Run("multiple problems joined", func(t *testing.T) {
		cfg := valid()
		cfg.Queue.Workers = 0
		cfg.Progress.BufferSize = 0
		err := cfg.Validate()
		assert.ErrorContains(t, err, "queue.workers")
		assert.ErrorContains(t, err, "progress.buffer_size")
	})
}

func TestRegistryEndpoints(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Endpoints = []EndpointYAML{{
		ID:            "tce-sp",
		Category:      registry.CategoryStateTCE,
		BaseURL:       "https://transparencia.tce.sp.gov.br/api",
		Capabilities:  []string{registry.CapSearchContracts},
		RatePerMinute: 30,
		Timeout:       Duration(20 * time.Second),
		UF:            "SP",
		Fallbacks:     []string{"pncp"},
	}}

	eps := cfg.RegistryEndpoints()
	require.Len(t, eps, 1)
	assert.Equal(t, "tce-sp", eps[0].ID)
	assert.Equal(t, "SP", eps[0].UF)
	assert.Equal(t, []string{"pncp"}, eps[0].Fallbacks)

	// The conversion copies slices; mutating the catalog entry afterwards
	// must not reach the registry's view.
	cfg.Endpoints[0].Capabilities[0] = "mutated"
	assert.Equal(t, registry.CapSearchContracts, eps[0].Capabilities[0])
}
