// Package dispatch connects the queue to delivery workers. A Trigger submits
// message ids for asynchronous delivery, at-least-once: duplicate or replayed
// submissions are tolerated because the delivery engine's queued-status guard
// makes repeated deliver calls for the same id a no-op.
package dispatch

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned when scheduling on a stopped trigger.
var ErrClosed = errors.New("dispatch trigger closed")

// Deliverer is the delivery entry point a trigger hands ids to. Implemented
// by the delivery engine.
type Deliverer interface {
	Deliver(ctx context.Context, id string) (bool, error)
}

// Trigger submits a message id for asynchronous delivery. Schedule is
// fire-and-forget from the caller's point of view: an error means the
// submission itself failed, not the delivery.
type Trigger interface {
	Schedule(ctx context.Context, id string) error
	Close() error
}

// Config selects and parameterizes a trigger implementation.
type Config struct {
	Type      string   `toml:"type"`       // "local" or "kafka"
	Workers   int      `toml:"workers"`    // local: worker count
	QueueSize int      `toml:"queue_size"` // local: submission buffer
	Brokers   []string `toml:"brokers"`    // kafka broker addresses
	Topic     string   `toml:"topic"`      // kafka topic
	GroupID   string   `toml:"group_id"`   // kafka consumer group
}

// New creates the configured trigger. The local trigger delivers in-process;
// the kafka trigger publishes ids to a topic consumed by Consumer instances,
// possibly on other hosts.
func New(cfg Config, deliverer Deliverer) (Trigger, error) {
	switch cfg.Type {
	case "local", "":
		return NewLocal(cfg, deliverer), nil
	case "kafka":
		return NewKafka(cfg)
	default:
		return nil, fmt.Errorf("unknown dispatch type %q", cfg.Type)
	}
}

// Noop discards every submission. Used in tests and by commands that only
// mutate the store.
type Noop struct{}

func (Noop) Schedule(ctx context.Context, id string) error { return nil }
func (Noop) Close() error                                  { return nil }
