// Package config defines process configuration for the query server and the
// pipeline CLI, and how it is loaded.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strconv"
)

// Store backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// RawDir holds the per-season source CSV files.
	RawDir string `koanf:"raw_dir"`

	// StoreBackend selects where artifacts live: file or redis.
	StoreBackend string `koanf:"store_backend"`

	// StoreDir is the artifact root for the file backend.
	StoreDir string `koanf:"store_dir"`

	// RedisURL and RedisPrefix configure the redis backend.
	RedisURL    string `koanf:"redis_url"`
	RedisPrefix string `koanf:"redis_prefix"`

	// Seasons lists the season tags the pipeline processes, in order.
	Seasons []string `koanf:"seasons"`

	// MinGames drops per-game rows with G at or below it.
	MinGames int `koanf:"min_games"`

	// DistanceWorkers bounds the goroutines computing distance rows.
	DistanceWorkers int `koanf:"distance_workers"`

	// BuildWorkers sets how many seasons the pipeline builds at once.
	BuildWorkers int `koanf:"build_workers"`

	// JobQueueSize bounds the pipeline's pending season jobs.
	JobQueueSize int `koanf:"job_queue_size"`

	// ScopeCacheSize bounds the scopes the server keeps in memory.
	ScopeCacheSize int `koanf:"scope_cache_size"`

	// MaxNeighbors caps the k of neighbor queries.
	MaxNeighbors int `koanf:"max_neighbors"`

	// DropConstantColumns drops zero-variance stats instead of failing the scope.
	DropConstantColumns bool `koanf:"drop_constant_columns"`
}

// DefaultSeasons returns 1980 through 2016 every four years, then 2022.
func DefaultSeasons() []string {
	var out []string
	for y := 1980; y <= 2016; y += 4 {
		out = append(out, strconv.Itoa(y))
	}
	return append(out, "2022")
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		RawDir:          "raw_data",
		StoreBackend:    BackendFile,
		StoreDir:        "data",
		RedisPrefix:     "nbasim:",
		Seasons:         DefaultSeasons(),
		MinGames:        30,
		DistanceWorkers: runtime.NumCPU(),
		BuildWorkers:    2,
		JobQueueSize:    64,
		ScopeCacheSize:  16,
		MaxNeighbors:    50,
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("addr must not be empty: %w", ErrInvalidConfig)
	case !slices.Contains([]string{"text", "json"}, c.LogFormat):
		return fmt.Errorf("log_format %q: %w", c.LogFormat, ErrInvalidConfig)
	case c.StoreBackend != BackendFile && c.StoreBackend != BackendRedis:
		return fmt.Errorf("store_backend %q: %w", c.StoreBackend, ErrInvalidConfig)
	case c.StoreBackend == BackendFile && c.StoreDir == "":
		return fmt.Errorf("store_dir must be set for the file backend: %w", ErrInvalidConfig)
	case c.StoreBackend == BackendRedis && c.RedisURL == "":
		return fmt.Errorf("redis_url must be set for the redis backend: %w", ErrInvalidConfig)
	case len(c.Seasons) == 0:
		return fmt.Errorf("seasons must not be empty: %w", ErrInvalidConfig)
	case c.MinGames < 0:
		return fmt.Errorf("min_games %d: %w", c.MinGames, ErrInvalidConfig)
	case c.DistanceWorkers < 1, c.BuildWorkers < 1, c.JobQueueSize < 1:
		return fmt.Errorf("worker and queue sizes must be positive: %w", ErrInvalidConfig)
	case c.ScopeCacheSize < 1:
		return fmt.Errorf("scope_cache_size %d: %w", c.ScopeCacheSize, ErrInvalidConfig)
	case c.MaxNeighbors < 1:
		return fmt.Errorf("max_neighbors %d: %w", c.MaxNeighbors, ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.Seasons))
	for _, s := range c.Seasons {
		if s == "" {
			return fmt.Errorf("empty season tag: %w", ErrInvalidConfig)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("season %s listed twice: %w", s, ErrInvalidConfig)
		}
		seen[s] = struct{}{}
	}
	return nil
}
