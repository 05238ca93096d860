package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process cache. Expired entries are dropped lazily on read
// and by a periodic janitor so a long-lived process does not accumulate keys.
type Memory struct {
	mu        sync.RWMutex
	items     map[string]memoryItem
	stopCh    chan struct{}
	connected bool
}

type memoryItem struct {
	value     string
	expiresAt time.Time
}

func (it memoryItem) expired() bool {
	return !it.expiresAt.IsZero() && time.Now().After(it.expiresAt)
}

// NewMemory creates an in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		items:  make(map[string]memoryItem),
		stopCh: make(chan struct{}),
	}
}

func (m *Memory) Type() string { return "memory" }

// Connect starts the expiry janitor.
func (m *Memory) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		return nil
	}
	m.connected = true
	go m.janitor()
	return nil
}

// Close stops the janitor and drops all entries.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil
	}
	m.connected = false
	close(m.stopCh)
	m.items = make(map[string]memoryItem)
	return nil
}

func (m *Memory) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.mu.Lock()
			for k, it := range m.items {
				if it.expired() {
					delete(m.items, k)
				}
			}
			m.mu.Unlock()
		}
	}
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || it.expired() {
		return "", ErrNotFound
	}
	return it.value, nil
}

func (m *Memory) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	var expiresAt time.Time
	if expiration > 0 {
		expiresAt = time.Now().Add(expiration)
	}
	m.mu.Lock()
	m.items[key] = memoryItem{value: value, expiresAt: expiresAt}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}
