// Package transport hands finished messages to the network. The delivery
// engine treats any error from Send as a transport failure: the message is
// marked failed and left for the retry coordinator, never retried in-line.
package transport

import (
	"context"
	"time"
)

// Transport delivers an encoded message. Implementations must honor ctx
// cancellation and deadlines; the engine bounds every call with the
// configured timeout and treats a timeout like any other transport failure.
type Transport interface {
	Send(ctx context.Context, from string, to, cc, bcc []string, data []byte) error
	Close() error
}

// Config parameterizes the SMTP transport and its circuit breaker.
type Config struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Helo    string `toml:"helo"`
	Timeout int    `toml:"timeout_seconds"`

	// Breaker settings; zero values use gobreaker defaults.
	BreakerMaxRequests uint32 `toml:"breaker_max_requests"`
	BreakerInterval    int    `toml:"breaker_interval_seconds"`
	BreakerTimeout     int    `toml:"breaker_timeout_seconds"`
}

// SendTimeout returns the configured per-send timeout.
func (c Config) SendTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}
