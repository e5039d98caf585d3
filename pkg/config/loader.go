package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path, expands ${ENV_VAR} references, merges
// the result over the defaults and validates. An empty path yields the
// validated defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		expanded := expandEnv(string(raw))

		var user Config
		if err := yaml.Unmarshal([]byte(expanded), &user); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := mergo.Merge(cfg, &user, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge config: %w", err)
		}
		slog.Info("configuration loaded", "path", path, "endpoints", len(cfg.Endpoints))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} with the environment value; unknown
// variables expand to empty, matching shell semantics.
func expandEnv(in string) string {
	return envRef.ReplaceAllStringFunc(in, func(m string) string {
		return os.Getenv(envRef.FindStringSubmatch(m)[1])
	})
}
