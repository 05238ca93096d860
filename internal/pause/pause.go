// Package pause implements the global send kill-switch. The flag is
// re-evaluated on every check so operators can pause and resume delivery at
// runtime without redeploying: flip the config value and restart, set an
// environment variable, touch a file, or set a redis key shared by all
// workers.
package pause

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Flag reports whether sending is currently paused.
type Flag interface {
	IsPaused(ctx context.Context) bool
}

// Config selects the pause flag source.
type Config struct {
	Source string `toml:"source"` // "config", "env", "file" or "redis"
	Paused bool   `toml:"paused"` // static value for the config source
	Env    string `toml:"env"`    // environment variable name
	Path   string `toml:"path"`   // pause file path; existing file means paused
	Addr   string `toml:"addr"`   // redis address
	Key    string `toml:"key"`    // redis key; truthy value means paused
}

// New creates the configured pause flag.
func New(cfg Config) (Flag, error) {
	switch cfg.Source {
	case "config", "":
		return Static(cfg.Paused), nil
	case "env":
		if cfg.Env == "" {
			cfg.Env = "MAILROOM_PAUSE_SEND"
		}
		return Env(cfg.Env), nil
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("pause source %q requires a path", cfg.Source)
		}
		return File(cfg.Path), nil
	case "redis":
		if cfg.Addr == "" {
			cfg.Addr = "localhost:6379"
		}
		if cfg.Key == "" {
			cfg.Key = "mailroom:pause"
		}
		return NewRedis(cfg.Addr, cfg.Key), nil
	default:
		return nil, fmt.Errorf("unknown pause source %q", cfg.Source)
	}
}

// Static is a fixed pause value from configuration.
type Static bool

func (s Static) IsPaused(ctx context.Context) bool { return bool(s) }

// Env reads a boolean environment variable on every check.
type Env string

func (e Env) IsPaused(ctx context.Context) bool {
	return truthy(os.Getenv(string(e)))
}

// File is paused while the file at its path exists.
type File string

func (f File) IsPaused(ctx context.Context) bool {
	_, err := os.Stat(string(f))
	return err == nil
}

// Redis is paused while its key holds a truthy value. Lookup errors fail
// open: an unreachable flag store must not stop deliveries.
type Redis struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewRedis creates a redis-backed pause flag.
func NewRedis(addr, key string) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
		logger: slog.Default().With("component", "pause", "key", key),
	}
}

func (r *Redis) IsPaused(ctx context.Context) bool {
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		r.logger.Warn("pause flag lookup failed, continuing unpaused", "error", err)
		return false
	}
	return truthy(val)
}

// Close releases the redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func truthy(val string) bool {
	val = strings.TrimSpace(strings.ToLower(val))
	if val == "" {
		return false
	}
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return val == "yes" || val == "on"
}
