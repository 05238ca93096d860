package transport

import (
	"context"
	"sync"
	"time"
)

// SentMessage records one Mock Send call.
type SentMessage struct {
	From string
	To   []string
	Cc   []string
	Bcc  []string
	Data []byte
}

// Mock implements Transport for tests.
type Mock struct {
	mu       sync.Mutex
	sent     []SentMessage
	failWith error
	delay    time.Duration
}

// NewMock creates a mock transport that succeeds immediately.
func NewMock() *Mock {
	return &Mock{}
}

// FailWith makes subsequent sends return err; nil restores success.
func (m *Mock) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Delay makes each send wait, honoring context cancellation, so tests can
// exercise timeouts.
func (m *Mock) Delay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

func (m *Mock) Send(ctx context.Context, from string, to, cc, bcc []string, data []byte) error {
	m.mu.Lock()
	failWith, delay := m.failWith, m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	if failWith != nil {
		return failWith
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMessage{
		From: from,
		To:   append([]string(nil), to...),
		Cc:   append([]string(nil), cc...),
		Bcc:  append([]string(nil), bcc...),
		Data: append([]byte(nil), data...),
	})
	return nil
}

// Sent returns a copy of everything delivered so far.
func (m *Mock) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *Mock) Close() error { return nil }
