package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Local runs delivery workers in-process: Schedule puts the id on a bounded
// channel and a fixed pool of workers calls the deliverer. Delivery errors
// are logged, not returned to Schedule; state correctness is the engine's
// row-lock guard, and retrying failures is the retry coordinator's job.
type Local struct {
	deliverer Deliverer
	jobs      chan string
	done      chan struct{}
	closeOnce sync.Once
	group     *errgroup.Group
	cancel    context.CancelFunc
	logger    *slog.Logger
}

// NewLocal creates and starts a local worker-pool trigger.
func NewLocal(cfg Config, deliverer Deliverer) *Local {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	l := &Local{
		deliverer: deliverer,
		jobs:      make(chan string, queueSize),
		done:      make(chan struct{}),
		group:     group,
		cancel:    cancel,
		logger:    slog.Default().With("component", "local-dispatch"),
	}

	for i := 0; i < workers; i++ {
		group.Go(func() error {
			l.worker(gctx)
			return nil
		})
	}

	l.logger.Info("local dispatch started", "workers", workers, "queue_size", queueSize)
	return l
}

func (l *Local) worker(ctx context.Context) {
	for {
		select {
		case <-l.done:
			l.drain(ctx)
			return
		case id := <-l.jobs:
			l.deliver(ctx, id)
		}
	}
}

// drain consumes whatever is buffered at shutdown so accepted submissions are
// still delivered.
func (l *Local) drain(ctx context.Context) {
	for {
		select {
		case id := <-l.jobs:
			l.deliver(ctx, id)
		default:
			return
		}
	}
}

func (l *Local) deliver(ctx context.Context, id string) {
	if _, err := l.deliverer.Deliver(ctx, id); err != nil {
		l.logger.Error("delivery invocation failed", "message_id", id, "error", err)
	}
}

// Schedule submits an id to the worker pool. It blocks while the buffer is
// full rather than dropping the submission. The jobs channel is never closed,
// so a Schedule racing Close either lands in the buffer or returns ErrClosed;
// a submission that lands after the final drain sits in StatusQueued and the
// stuck-queued sweep re-submits it.
func (l *Local) Schedule(ctx context.Context, id string) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}

	select {
	case l.jobs <- id:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the pool: no new submissions are accepted, queued ids are
// still delivered, then the workers exit.
func (l *Local) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	err := l.group.Wait()
	l.cancel()
	l.logger.Info("local dispatch stopped")
	return err
}
