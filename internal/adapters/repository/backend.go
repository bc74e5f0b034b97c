// Package repository persists stat-table and distance-index artifacts.
//
// Artifacts are parquet blobs kept in a Backend under "stats/<scope>.parquet"
// and "distances/<scope>.parquet". Blobs are fully encoded in memory before
// they are written, and backends replace them atomically.
package repository

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// Backend is a flat blob store keyed by slash-separated names.
type Backend interface {
	// Write stores data under name, replacing any previous blob atomically.
	Write(ctx context.Context, name string, data []byte) error
	// Read returns a reader for name or a *NotFoundError.
	Read(ctx context.Context, name string) (io.ReadCloser, error)
	// List returns the names under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes name. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
}

// cleanName rejects names that could escape the store root.
func cleanName(name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	c := path.Clean(name)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return c, nil
}

// Backend kinds.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// BackendConfig selects and configures a Backend.
type BackendConfig struct {
	Kind        string
	Dir         string
	RedisURL    string
	RedisPrefix string
}

// NewBackend opens the configured backend.
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch cfg.Kind {
	case BackendFile, "":
		return NewFileBackend(cfg.Dir)
	case BackendRedis:
		return NewRedisBackend(ctx, cfg.RedisURL, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("%q: %w", cfg.Kind, ErrUnknownBackend)
	}
}
