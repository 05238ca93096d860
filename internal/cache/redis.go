package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Cache on a Redis server.
type Redis struct {
	config    Config
	client    *redis.Client
	connected bool
}

// NewRedis creates a Redis cache for the given configuration.
func NewRedis(config Config) *Redis {
	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}
	return &Redis{config: config}
}

func (r *Redis) Type() string { return "redis" }

// Connect establishes and verifies the connection.
func (r *Redis) Connect() error {
	if r.connected {
		return nil
	}
	r.client = redis.NewClient(&redis.Options{
		Addr:     r.config.Addr,
		Password: r.config.Password,
		DB:       r.config.Database,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	r.connected = true
	return nil
}

func (r *Redis) Close() error {
	if !r.connected {
		return nil
	}
	r.connected = false
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	if !r.connected {
		return "", ErrNotConnected
	}
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return val, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	if !r.connected {
		return ErrNotConnected
	}
	if err := r.client.Set(ctx, key, value, expiration).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if !r.connected {
		return ErrNotConnected
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
