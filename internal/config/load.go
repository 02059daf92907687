package config

import (
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRaw reads, environment-substitutes, and YAML-decodes the config at
// path, without finalizing it. Callers that need to layer CLI-flag
// overrides on top of the file, so CLI flags win over environment
// variables which win over the file itself, should call LoadRaw, apply
// their overrides, then call Config.Finalize.
func LoadRaw(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}

	expanded := SubstituteEnv(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, &ParseError{Path: path, Cause: err}
	}

	return &cfg, nil
}

// Load reads, substitutes, decodes and finalizes the YAML config at
// path. Use LoadRaw directly when CLI-flag overrides must be layered in
// before finalization.
func Load(path string) (*Config, error) {
	cfg, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize reports unrecognized top-level keys, applies PgConfig
// defaults to every declared postgres block, and fails with
// ErrNoSources when neither group would yield anything.
func (c *Config) Finalize() error {
	reportUnrecognized("", c.Unrecognized)

	any := false
	if c.Postgres != nil {
		items := c.Postgres.Slice()
		for i := range items {
			if err := items[i].Finalize(); err != nil {
				return err
			}
		}
		c.Postgres = ptr(NewOneOrMany(items))
		any = any || len(items) > 0
	}

	if c.PMTiles != nil {
		any = any || !c.PMTiles.IsEmpty()
	}

	if !any {
		return ErrNoSources
	}
	return nil
}

func reportUnrecognized(prefix string, m map[string]interface{}) {
	for key := range m {
		slog.Warn("unrecognized config key", "key", prefix+key)
	}
}

func ptr[T any](v T) *T { return &v }
