package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// countingDeliverer records every id it is asked to deliver.
type countingDeliverer struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *countingDeliverer) Deliver(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, id)
	if d.err != nil {
		return false, d.err
	}
	return true, nil
}

func (d *countingDeliverer) delivered() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

func TestLocalDeliversScheduledIDs(t *testing.T) {
	deliverer := &countingDeliverer{}
	local := NewLocal(Config{Workers: 3, QueueSize: 10}, deliverer)
	ctx := context.Background()

	want := map[string]bool{"a": true, "b": true, "c": true, "d": true}
	for id := range want {
		if err := local.Schedule(ctx, id); err != nil {
			t.Fatalf("Schedule failed: %v", err)
		}
	}
	if err := local.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got := deliverer.delivered()
	if len(got) != len(want) {
		t.Fatalf("Expected %d deliveries, got %d", len(want), len(got))
	}
	for _, id := range got {
		if !want[id] {
			t.Errorf("Unexpected delivery %q", id)
		}
	}
}

func TestLocalDrainsOnClose(t *testing.T) {
	deliverer := &countingDeliverer{}
	// One worker so the buffer actually fills up before work completes.
	local := NewLocal(Config{Workers: 1, QueueSize: 50}, deliverer)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := local.Schedule(ctx, "id"); err != nil {
			t.Fatalf("Schedule failed: %v", err)
		}
	}
	if err := local.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := len(deliverer.delivered()); got != 50 {
		t.Errorf("Expected all queued ids delivered before close, got %d", got)
	}
}

func TestLocalScheduleRacesClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		deliverer := &countingDeliverer{}
		local := NewLocal(Config{Workers: 2, QueueSize: 4}, deliverer)
		ctx := context.Background()

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					if err := local.Schedule(ctx, "id"); errors.Is(err, ErrClosed) {
						return
					}
				}
			}()
		}

		// Close mid-flight; submitters must end with ErrClosed, never a send
		// on a closed channel.
		if err := local.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		wg.Wait()

		if err := local.Schedule(ctx, "late"); !errors.Is(err, ErrClosed) {
			t.Fatalf("Expected ErrClosed after close, got %v", err)
		}
	}
}

func TestLocalScheduleAfterClose(t *testing.T) {
	local := NewLocal(Config{Workers: 1, QueueSize: 1}, &countingDeliverer{})
	if err := local.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := local.Schedule(context.Background(), "late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	// Close is idempotent.
	if err := local.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestLocalScheduleHonorsContext(t *testing.T) {
	// Block the single worker so the buffer stays full.
	block := make(chan struct{})
	deliverer := &blockingDeliverer{release: block, ready: make(chan struct{})}
	local := NewLocal(Config{Workers: 1, QueueSize: 1}, deliverer)
	defer func() {
		close(block)
		_ = local.Close()
	}()

	ctx := context.Background()
	// First id occupies the worker, second fills the buffer.
	if err := local.Schedule(ctx, "ongoing"); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	deliverer.waitStarted(t)
	if err := local.Schedule(ctx, "buffered"); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := local.Schedule(timeoutCtx, "overflow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded on a full buffer, got %v", err)
	}
}

// blockingDeliverer parks until released, closing ready on the first call.
type blockingDeliverer struct {
	release <-chan struct{}
	ready   chan struct{}
	once    sync.Once
}

func (d *blockingDeliverer) Deliver(ctx context.Context, id string) (bool, error) {
	d.once.Do(func() { close(d.ready) })
	select {
	case <-d.release:
	case <-ctx.Done():
	}
	return false, nil
}

func (d *blockingDeliverer) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-d.ready:
	case <-time.After(time.Second):
		t.Fatal("Worker never picked up the first id")
	}
}

func TestNewTrigger(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "Default", config: Config{}},
		{name: "Local", config: Config{Type: "local"}},
		{name: "Unknown", config: Config{Type: "bogus"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := New(tt.config, &countingDeliverer{})
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			_ = trigger.Close()
		})
	}
}
