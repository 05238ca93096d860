// Package cache provides the small lookup cache the blacklist sits behind.
// Implementations cover a single process (memory) and shared deployments
// (redis, memcached) so delivery workers on separate hosts can share lookups.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a key is not in the cache.
	ErrNotFound = errors.New("key not found in cache")
	// ErrNotConnected is returned when the cache has not been connected.
	ErrNotConnected = errors.New("not connected to cache")
)

// Cache is a string-valued cache with per-key expiration.
type Cache interface {
	Connect() error
	Close() error
	Type() string

	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Config selects and parameterizes a cache implementation.
type Config struct {
	Type     string   `toml:"type"` // "memory", "redis" or "memcached"
	Addr     string   `toml:"addr"` // redis address
	Password string   `toml:"password"`
	Database int      `toml:"database"`
	Servers  []string `toml:"servers"` // memcached server list
}

// New creates a cache from configuration. An empty type means memory.
func New(config Config) (Cache, error) {
	switch config.Type {
	case "memory", "":
		return NewMemory(), nil
	case "redis":
		return NewRedis(config), nil
	case "memcached":
		return NewMemcached(config), nil
	default:
		return nil, fmt.Errorf("unsupported cache type %q", config.Type)
	}
}
