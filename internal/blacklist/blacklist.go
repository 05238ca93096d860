// Package blacklist answers "may this address receive mail" for the delivery
// engine. Membership lives in the message store; a cache in front keeps the
// per-recipient lookups off the database during delivery bursts.
package blacklist

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/busybox42/mailroom/internal/cache"
	"github.com/busybox42/mailroom/internal/queue"
)

const (
	cachePrefix = "mailroom:blacklist:"
	cacheHit    = "1"
	cacheMiss   = "0"
)

// Checker performs blacklist membership tests. It is read-only: entries are
// administered out of band.
type Checker struct {
	store  *queue.Store
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewChecker creates a checker backed by store, with c caching lookups for
// ttl. c may be nil to query the store on every call.
func NewChecker(store *queue.Store, c cache.Cache, ttl time.Duration) *Checker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Checker{
		store:  store,
		cache:  c,
		ttl:    ttl,
		logger: slog.Default().With("component", "blacklist"),
	}
}

// IsBlacklisted reports whether addr must never receive mail. Comparison is
// case-insensitive. Cache failures degrade to direct store lookups; a store
// failure is an infrastructure error and propagates.
//
// Callers inside a store transaction must pass it as tx so the membership
// query runs on the transaction's connection; with a nil tx the lookup goes
// through the pool.
func (c *Checker) IsBlacklisted(ctx context.Context, tx *sql.Tx, addr string) (bool, error) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	key := cachePrefix + addr

	if c.cache != nil {
		val, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			return val == cacheHit, nil
		case !errors.Is(err, cache.ErrNotFound):
			c.logger.Warn("blacklist cache read failed", "error", err)
		}
	}

	var listed bool
	var err error
	if tx != nil {
		listed, err = c.store.IsBlacklistedTx(ctx, tx, addr)
	} else {
		listed, err = c.store.IsBlacklisted(ctx, addr)
	}
	if err != nil {
		return false, err
	}

	if c.cache != nil {
		val := cacheMiss
		if listed {
			val = cacheHit
		}
		if err := c.cache.Set(ctx, key, val, c.ttl); err != nil {
			c.logger.Warn("blacklist cache write failed", "error", err)
		}
	}
	return listed, nil
}

// AnyBlacklisted returns the first blacklisted address among addrs, if any.
func (c *Checker) AnyBlacklisted(ctx context.Context, tx *sql.Tx, addrs []string) (string, bool, error) {
	for _, addr := range addrs {
		listed, err := c.IsBlacklisted(ctx, tx, addr)
		if err != nil {
			return "", false, err
		}
		if listed {
			return addr, true, nil
		}
	}
	return "", false, nil
}
