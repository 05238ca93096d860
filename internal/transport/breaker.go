package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Breaker wraps a transport in a circuit breaker so a dead smarthost fails
// deliveries fast instead of tying up workers in connect timeouts. A tripped
// breaker surfaces as an ordinary transport failure, which marks the message
// failed and leaves it for the retry coordinator.
type Breaker struct {
	next   Transport
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewBreaker wraps next with a circuit breaker configured from cfg.
func NewBreaker(next Transport, cfg Config) *Breaker {
	logger := slog.Default().With("component", "transport-breaker")

	settings := gobreaker.Settings{
		Name:        "smtp-transport",
		MaxRequests: cfg.BreakerMaxRequests,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("transport circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	if cfg.BreakerInterval > 0 {
		settings.Interval = time.Duration(cfg.BreakerInterval) * time.Second
	}
	if cfg.BreakerTimeout > 0 {
		settings.Timeout = time.Duration(cfg.BreakerTimeout) * time.Second
	}

	return &Breaker{
		next:   next,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

func (b *Breaker) Send(ctx context.Context, from string, to, cc, bcc []string, data []byte) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, from, to, cc, bcc, data)
	})
	return err
}

func (b *Breaker) Close() error {
	return b.next.Close()
}
