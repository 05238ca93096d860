package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// Memcached implements Cache on one or more memcached servers.
type Memcached struct {
	config    Config
	client    *memcache.Client
	connected bool
}

// NewMemcached creates a memcached cache for the given configuration.
func NewMemcached(config Config) *Memcached {
	if len(config.Servers) == 0 {
		config.Servers = []string{"localhost:11211"}
	}
	return &Memcached{config: config}
}

func (m *Memcached) Type() string { return "memcached" }

// Connect creates the client and verifies at least one server responds.
func (m *Memcached) Connect() error {
	if m.connected {
		return nil
	}
	m.client = memcache.New(m.config.Servers...)
	m.client.Timeout = 5 * time.Second
	if err := m.client.Ping(); err != nil {
		return fmt.Errorf("failed to connect to memcached: %w", err)
	}
	m.connected = true
	return nil
}

func (m *Memcached) Close() error {
	m.connected = false
	return nil
}

func (m *Memcached) Get(ctx context.Context, key string) (string, error) {
	if !m.connected {
		return "", ErrNotConnected
	}
	item, err := m.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("memcached get failed: %w", err)
	}
	return string(item.Value), nil
}

func (m *Memcached) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	if !m.connected {
		return ErrNotConnected
	}
	item := &memcache.Item{
		Key:        key,
		Value:      []byte(value),
		Expiration: int32(expiration / time.Second),
	}
	if err := m.client.Set(item); err != nil {
		return fmt.Errorf("memcached set failed: %w", err)
	}
	return nil
}

func (m *Memcached) Delete(ctx context.Context, key string) error {
	if !m.connected {
		return ErrNotConnected
	}
	err := m.client.Delete(key)
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return fmt.Errorf("memcached delete failed: %w", err)
	}
	return nil
}
