package repository

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces artifact keys.
const DefaultRedisPrefix = "nbasim:"

const scanBatch = 500

// RedisBackend stores blobs as plain string values.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// parseRedisURL accepts redis:// and rediss:// URLs or a bare host:port.
func parseRedisURL(connectionString string) (*redis.Options, error) {
	if strings.HasPrefix(connectionString, "redis://") || strings.HasPrefix(connectionString, "rediss://") {
		parsedURL, err := url.Parse(connectionString)
		if err != nil {
			return nil, fmt.Errorf("invalid Redis URL: %w", err)
		}

		opts := &redis.Options{
			Addr: parsedURL.Host,
		}
		if parsedURL.Scheme == "rediss" {
			opts.TLSConfig = &tls.Config{
				MinVersion: tls.VersionTLS12,
			}
		}
		if parsedURL.User != nil {
			opts.Username = parsedURL.User.Username()
			if password, ok := parsedURL.User.Password(); ok {
				opts.Password = password
			}
		}
		if parsedURL.Path != "" && parsedURL.Path != "/" {
			dbStr := strings.TrimPrefix(parsedURL.Path, "/")
			db, err := strconv.Atoi(dbStr)
			if err != nil {
				return nil, fmt.Errorf("invalid Redis database %q: %w", dbStr, err)
			}
			opts.DB = db
		}
		return opts, nil
	}
	if connectionString == "" {
		return nil, errors.New("empty Redis address")
	}
	return &redis.Options{Addr: connectionString}, nil
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, connectionString, prefix string) (*RedisBackend, error) {
	opts, err := parseRedisURL(connectionString)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisBackendFromClient(client, prefix), nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) key(name string) (string, error) {
	c, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return b.prefix + c, nil
}

// Write stores data with SET, which replaces the value atomically.
func (b *RedisBackend) Write(ctx context.Context, name string, data []byte) error {
	k, err := b.key(name)
	if err != nil {
		return err
	}
	if err := b.client.Set(ctx, k, data, 0).Err(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Read fetches the value for name.
func (b *RedisBackend) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	k, err := b.key(name)
	if err != nil {
		return nil, err
	}
	data, err := b.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &NotFoundError{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// List scans keys under the backend prefix.
func (b *RedisBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var (
		names  []string
		cursor uint64
	)
	for {
		keys, next, err := b.client.Scan(ctx, cursor, b.prefix+prefix+"*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, k := range keys {
			names = append(names, strings.TrimPrefix(k, b.prefix))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// Delete removes the key for name.
func (b *RedisBackend) Delete(ctx context.Context, name string) error {
	k, err := b.key(name)
	if err != nil {
		return err
	}
	if err := b.client.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// Close closes the Redis connection.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
