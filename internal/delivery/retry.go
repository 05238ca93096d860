package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/busybox42/mailroom/internal/metrics"
	"github.com/busybox42/mailroom/internal/queue"
)

// RetryConfig holds configuration for the retry coordinator.
type RetryConfig struct {
	MaxRetries int `toml:"max_retries"`
	Interval   int `toml:"interval_seconds"`
	StuckAfter int `toml:"stuck_after_seconds"`
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		Interval:   60,
		StuckAfter: 600,
	}
}

// Coordinator periodically re-enqueues messages in a failure state, subject
// to the retry cap, and re-submits messages stuck in queued after a trigger
// submission was lost. Partial failures are counted and reported, never
// escalated.
type Coordinator struct {
	store   *queue.Store
	engine  *Engine
	config  RetryConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCoordinator creates a retry coordinator.
func NewCoordinator(store *queue.Store, engine *Engine, config RetryConfig) *Coordinator {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.Interval <= 0 {
		config.Interval = 60
	}
	if config.StuckAfter <= 0 {
		config.StuckAfter = 600
	}
	return &Coordinator{
		store:   store,
		engine:  engine,
		config:  config,
		metrics: metrics.Get(),
		logger:  slog.Default().With("component", "retry-coordinator"),
	}
}

// Retry re-enqueues every retryable message whose enqueued_count is below
// maxRetries (no cap when 0). It returns how many messages were enqueued and
// how many dispatch submissions failed; the message's own state stays
// consistent either way.
func (c *Coordinator) Retry(ctx context.Context, maxRetries int) (enqueued, failed int, err error) {
	candidates, err := c.store.QueryRetryable(ctx, maxRetries)
	if err != nil {
		return 0, 0, err
	}

	for _, msg := range candidates {
		ok, err := c.engine.Enqueue(ctx, msg.ID, "Retry sending the email.")
		switch {
		case err != nil:
			// The submission failed; the enqueue transition itself may have
			// committed, which the stuck sweep will pick up.
			failed++
		case ok:
			enqueued++
			c.metrics.MessagesRetried.Inc()
		}
	}

	if len(candidates) > 0 {
		c.logger.Info("retry pass finished",
			"candidates", len(candidates), "enqueued", enqueued, "failed", failed)
	}
	return enqueued, failed, nil
}

// RequeueStuck re-submits messages that have sat in queued longer than the
// configured threshold. This is the recovery path for trigger submissions
// lost after the queued transition committed.
func (c *Coordinator) RequeueStuck(ctx context.Context) (int, error) {
	if c.engine.trigger == nil {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-time.Duration(c.config.StuckAfter) * time.Second)
	stuck, err := c.store.QueryStuck(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	submitted := 0
	for _, msg := range stuck {
		if err := c.engine.trigger.Schedule(ctx, msg.ID); err != nil {
			c.metrics.TriggerFailures.Inc()
			c.logger.Error("failed to re-submit stuck message",
				"message_id", msg.ID, "error", err)
			continue
		}
		submitted++
	}

	if submitted > 0 {
		c.logger.Info("re-submitted stuck messages", "count", submitted)
	}
	return submitted, nil
}

// Run executes retry and stuck-queued passes on the configured interval until
// ctx is canceled.
func (c *Coordinator) Run(ctx context.Context) {
	interval := time.Duration(c.config.Interval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("retry coordinator started",
		"interval", interval, "max_retries", c.config.MaxRetries)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("retry coordinator stopped")
			return
		case <-ticker.C:
			if _, _, err := c.Retry(ctx, c.config.MaxRetries); err != nil {
				c.logger.Error("retry pass failed", "error", err)
			}
			if _, err := c.RequeueStuck(ctx); err != nil {
				c.logger.Error("stuck sweep failed", "error", err)
			}
		}
	}
}
