package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func TestBreakerPassesThrough(t *testing.T) {
	mock := NewMock()
	b := NewBreaker(mock, Config{})
	ctx := context.Background()

	err := b.Send(ctx, "sender@example.com",
		[]string{"recipient@example.com"}, nil, nil, []byte("data"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(mock.Sent()) != 1 {
		t.Errorf("Expected 1 send, got %d", len(mock.Sent()))
	}

	mock.FailWith(errors.New("connection refused"))
	err = b.Send(ctx, "sender@example.com",
		[]string{"recipient@example.com"}, nil, nil, []byte("data"))
	if err == nil || err.Error() != "connection refused" {
		t.Errorf("Expected the transport error unchanged, got %v", err)
	}
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	mock := NewMock()
	mock.FailWith(errors.New("connection refused"))
	b := NewBreaker(mock, Config{})
	ctx := context.Background()

	// gobreaker's default trip threshold is more than 5 consecutive failures.
	for i := 0; i < 6; i++ {
		if err := b.Send(ctx, "sender@example.com",
			[]string{"recipient@example.com"}, nil, nil, []byte("data")); err == nil {
			t.Fatal("Expected failing send to error")
		}
	}

	// The breaker is open now: sends fail fast without reaching the
	// transport, even though it would succeed again.
	mock.FailWith(nil)
	err := b.Send(ctx, "sender@example.com",
		[]string{"recipient@example.com"}, nil, nil, []byte("data"))
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("Expected ErrOpenState, got %v", err)
	}
	if len(mock.Sent()) != 0 {
		t.Errorf("Open breaker must not call the transport, got %d sends", len(mock.Sent()))
	}
}

func TestConfigSendTimeout(t *testing.T) {
	if got := (Config{}).SendTimeout(); got != 30*time.Second {
		t.Errorf("Expected 30s default, got %v", got)
	}
	if got := (Config{Timeout: 5}).SendTimeout(); got != 5*time.Second {
		t.Errorf("Expected 5s, got %v", got)
	}
}
