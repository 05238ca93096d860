package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/busybox42/mailroom/internal/queue"
)

// Migrate moves every message payload from one backend to another, updating
// each row to point at the destination. Messages whose content is already
// missing are skipped with a warning; migration is restartable because rows
// record which backend currently owns their payload.
func Migrate(ctx context.Context, store *queue.Store, from, to Backend) (int, error) {
	if from.Name() == to.Name() {
		return 0, fmt.Errorf("source and destination backends are both %q", from.Name())
	}
	logger := slog.Default().With("component", "storage-migrate",
		"from", from.Name(), "to", to.Name())

	msgs, err := store.All(ctx)
	if err != nil {
		return 0, err
	}

	migrated := 0
	for _, msg := range msgs {
		if msg.Storage != from.Name() {
			continue
		}
		data, err := from.Get(ctx, msg)
		if errors.Is(err, ErrNoContent) {
			logger.Warn("message has no content, skipping", "message_id", msg.ID)
			continue
		}
		if err != nil {
			return migrated, fmt.Errorf("failed to read content of %s: %w", msg.ID, err)
		}
		if err := to.Set(ctx, msg, data); err != nil {
			return migrated, fmt.Errorf("failed to write content of %s: %w", msg.ID, err)
		}
		if err := store.SetContent(ctx, msg); err != nil {
			return migrated, fmt.Errorf("failed to repoint %s: %w", msg.ID, err)
		}
		if err := from.Delete(ctx, msg); err != nil {
			logger.Warn("failed to delete old content", "message_id", msg.ID, "error", err)
		}
		migrated++
	}

	logger.Info("storage migration finished", "migrated", migrated)
	return migrated, nil
}
