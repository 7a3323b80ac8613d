package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if FAVEDEX_CONFIG is set
//  3. env (prefix FAVEDEX_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("FAVEDEX_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// Environment variables: FAVEDEX_ADDR, FAVEDEX_STORE_BACKEND, ...
	// Underscores are preserved to match the koanf tags on the struct.
	envProvider := env.Provider("FAVEDEX_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "favedex_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.StoreBackend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	}
	if c.StoreBackend == "sqlite" && c.SQLitePath == "" {
		return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
	}
	if c.MaxRankingLimit < 1 {
		return fmt.Errorf("%w: max_ranking_limit must be >= 1", ErrInvalidConfig)
	}
	return nil
}
