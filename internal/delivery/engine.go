// Package delivery implements the message delivery state machine: the logic
// that decides when a message may be sent, guards against duplicate and
// concurrent delivery, records outcomes, and leaves failures for the retry
// coordinator. All coordination happens through row locks in the message
// store, never in-memory, because dispatch may invoke workers on separate
// hosts.
package delivery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/busybox42/mailroom/internal/blacklist"
	"github.com/busybox42/mailroom/internal/dispatch"
	"github.com/busybox42/mailroom/internal/metrics"
	"github.com/busybox42/mailroom/internal/pause"
	"github.com/busybox42/mailroom/internal/queue"
	"github.com/busybox42/mailroom/internal/storage"
	"github.com/busybox42/mailroom/internal/transport"
)

// Engine drives message state transitions. It never raises for expected
// domain outcomes (wrong state, blacklist, pause, transport failure); those
// are control-flow results recorded in the message's status and log trail.
// Only infrastructure errors (datastore unavailable) are returned as errors.
type Engine struct {
	store       *queue.Store
	content     storage.Backend
	blacklist   *blacklist.Checker
	pauseFlag   pause.Flag
	transport   transport.Transport
	trigger     dispatch.Trigger
	sendTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewEngine creates a delivery engine. The trigger may be nil at construction
// time (the local trigger itself needs the engine); set it with SetTrigger
// before enqueueing.
func NewEngine(store *queue.Store, content storage.Backend, bl *blacklist.Checker,
	pauseFlag pause.Flag, tr transport.Transport, sendTimeout time.Duration) *Engine {
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	return &Engine{
		store:       store,
		content:     content,
		blacklist:   bl,
		pauseFlag:   pauseFlag,
		transport:   tr,
		sendTimeout: sendTimeout,
		metrics:     metrics.Get(),
		logger:      slog.Default().With("component", "delivery-engine"),
	}
}

// SetTrigger wires the dispatch trigger used by Enqueue.
func (e *Engine) SetTrigger(t dispatch.Trigger) {
	e.trigger = t
}

// Enqueue transitions a message to queued and hands it to the dispatch
// trigger. Returns false without touching the row when the message is not in
// a sendable state; that is the idempotency gate against duplicate enqueue
// requests. When the transition succeeded but the trigger submission failed,
// the row stays queued and the submission error is returned: the stuck-queued
// sweep re-submits it later.
func (e *Engine) Enqueue(ctx context.Context, id, logText string) (bool, error) {
	if logText == "" {
		logText = "Enqueued."
	}

	queued := false
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		msg, err := e.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !msg.Status.Sendable() {
			e.logger.Info("message cannot be enqueued in current status",
				"message_id", id, "status", msg.Status.String())
			return nil
		}
		if err := e.store.MarkAs(ctx, tx, msg, queue.StatusQueued, logText); err != nil {
			return err
		}
		queued = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !queued {
		return false, nil
	}

	e.metrics.MessagesEnqueued.Inc()

	if e.trigger != nil {
		if err := e.trigger.Schedule(ctx, id); err != nil {
			// The row stays queued; QueryStuck picks it up later.
			e.metrics.TriggerFailures.Inc()
			e.logger.Error("dispatch trigger submission failed",
				"message_id", id, "error", err)
			return true, fmt.Errorf("dispatch submission failed: %w", err)
		}
	}
	return true, nil
}

// Deliver is the idempotent delivery entry point, invoked by the dispatch
// trigger at least once per enqueue and possibly more. The whole sequence
// runs in one transaction holding the row lock, including the transport call,
// so a concurrent invocation for the same id blocks on the lock and then
// backs off when it no longer observes the queued status.
//
// Returns true only when the transport accepted the message. A false return
// with nil error means no send happened: unknown id, not queued, blacklisted,
// paused, or the transport failed and the message was marked accordingly.
func (e *Engine) Deliver(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	sent := false

	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		msg, err := e.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		// Idempotency guard: only the invocation that observes the queued
		// status proceeds. Everyone else records the skip and backs off
		// without re-sending.
		if msg.Status != queue.StatusQueued {
			e.metrics.DeliverySkips.Inc()
			return e.store.AddLog(ctx, tx, msg.ID, msg.Status,
				fmt.Sprintf("Delivery skipped: message is %s, not queued.", msg.Status))
		}

		if err := e.store.MarkAs(ctx, tx, msg, queue.StatusInProcess, ""); err != nil {
			return err
		}

		// The membership query has to run on this transaction: on sqlite the
		// pool holds a single connection and it is ours until commit.
		if addr, listed, err := e.blacklist.AnyBlacklisted(ctx, tx, msg.Recipients()); err != nil {
			return err
		} else if listed {
			e.metrics.MessagesBlacklisted.Inc()
			e.logger.Info("not sending to blacklisted address",
				"message_id", msg.ID, "address", addr)
			return e.store.MarkAs(ctx, tx, msg, queue.StatusBlacklisted,
				fmt.Sprintf("Not sent: recipient %s is blacklisted.", addr))
		}

		if e.pauseFlag.IsPaused(ctx) {
			e.metrics.MessagesDiscarded.Inc()
			e.logger.Info("sending is paused, discarding the email", "message_id", msg.ID)
			return e.store.MarkAs(ctx, tx, msg, queue.StatusDiscarded,
				"Not sent: sending is paused.")
		}

		if err := e.send(ctx, msg); err != nil {
			e.metrics.MessagesFailed.Inc()
			e.logger.Warn("message delivery failed",
				"message_id", msg.ID, "error", err)
			return e.store.MarkAs(ctx, tx, msg, queue.StatusFailed, err.Error())
		}

		if err := e.store.MarkAs(ctx, tx, msg, queue.StatusSent, "Message sent."); err != nil {
			return err
		}
		sent = true
		return nil
	})

	if errors.Is(err, queue.ErrNotFound) {
		// Fatal for this invocation and not worth an invocation-level retry:
		// the id will not appear later.
		e.logger.Error("cannot deliver unknown message", "message_id", id)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	e.metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
	if sent {
		e.metrics.MessagesDelivered.Inc()
		e.logger.Info("message delivered", "message_id", id,
			"duration", time.Since(start))
	}
	return sent, nil
}

// send reconstructs the outgoing message from stored content and pushes it to
// the transport, bounded by the send timeout. Content errors count as
// transport failures so they also land in the failed state for later retry.
func (e *Engine) send(ctx context.Context, msg *queue.Message) error {
	data, err := e.content.Get(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to load message content: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()
	if err := e.transport.Send(sendCtx, msg.FromAddress, msg.To, msg.Cc, msg.Bcc, data); err != nil {
		return err
	}
	return nil
}
