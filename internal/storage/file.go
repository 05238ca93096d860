package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/busybox42/mailroom/internal/queue"
)

// FileBackend stores encoded messages as blob files under a directory, one
// file per message keyed by message id. The message row carries only the
// backend name; the id is the file name.
type FileBackend struct {
	dir    string
	logger *slog.Logger
}

// NewFileBackend creates a file content backend rooted at dir.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("file storage backend requires a directory")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileBackend{
		dir:    dir,
		logger: slog.Default().With("component", "file-storage", "dir", dir),
	}, nil
}

func (b *FileBackend) Name() string { return BackendFile }

// path validates the id before joining it into the storage directory so a
// crafted id cannot escape it.
func (b *FileBackend) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid message id %q", id)
	}
	return filepath.Join(b.dir, id+".eml"), nil
}

func (b *FileBackend) Get(ctx context.Context, msg *queue.Message) ([]byte, error) {
	p, err := b.path(msg.ID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, ErrNoContent
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read message content: %w", err)
	}
	return data, nil
}

func (b *FileBackend) Set(ctx context.Context, msg *queue.Message, data []byte) error {
	p, err := b.path(msg.ID)
	if err != nil {
		return err
	}
	// Write-then-rename so readers never observe a partial payload.
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return fmt.Errorf("failed to write message content: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to finalize message content: %w", err)
	}
	msg.Storage = BackendFile
	msg.Data = nil
	return nil
}

func (b *FileBackend) Delete(ctx context.Context, msg *queue.Message) error {
	p, err := b.path(msg.ID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete message content: %w", err)
	}
	return nil
}
