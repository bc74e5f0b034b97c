package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment keys.
const (
	EnvPrefix = "NBASIM_"
	EnvConfig = "NBASIM_CONFIG"
	EnvFile   = ".env"

	keySeasons = "seasons"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// A .env file in the working directory is applied to the process
// environment first; variables already set are left alone.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if NBASIM_CONFIG is set
//  3. env (prefix NBASIM_)
func Load(_ context.Context) (*Config, error) {
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w: %w", EnvFile, ErrLoadConfig, err)
	}

	base := New()
	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", path, ErrLoadConfig, err)
		}
	}

	// NBASIM_STORE_DIR -> store_dir. Keys stay flat to match the koanf tags.
	// NBASIM_SEASONS is a comma separated list.
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(EnvPrefix))
		if key == keySeasons {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("env: %w: %w", ErrLoadConfig, err)
	}

	// Decoding a list onto a non-empty slice would keep the default's tail.
	cfg := *base
	cfg.Seasons = nil
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal: %w: %w", ErrLoadConfig, err)
	}
	if !k.Exists(keySeasons) {
		cfg.Seasons = base.Seasons
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
