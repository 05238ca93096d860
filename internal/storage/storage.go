// Package storage provides pluggable backends for message content. The
// message row always exists in the relational store; the payload itself lives
// either inline in the row (database backend) or as an external blob (file
// backend). The delivery engine is agnostic to which one is configured.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/busybox42/mailroom/internal/queue"
)

// Backend names, persisted in the message row's storage column.
const (
	BackendDatabase = "database"
	BackendFile     = "file"
)

// ErrNoContent is returned when a message has no payload in this backend.
var ErrNoContent = errors.New("message has no stored content")

// Backend resolves message payloads. Set must be called before the message
// row is inserted (it decides what goes into the message_data column); Get is
// used when reconstructing a message for transport; Delete is invoked by the
// retention purge before the row disappears.
type Backend interface {
	Name() string
	Get(ctx context.Context, msg *queue.Message) ([]byte, error)
	Set(ctx context.Context, msg *queue.Message, data []byte) error
	Delete(ctx context.Context, msg *queue.Message) error
}

// New returns the backend for the given configured name.
func New(name, dir string) (Backend, error) {
	switch name {
	case BackendDatabase, "":
		return NewDatabaseBackend(), nil
	case BackendFile:
		return NewFileBackend(dir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", name)
	}
}

// DatabaseBackend keeps the encoded message inline in the message row.
type DatabaseBackend struct{}

// NewDatabaseBackend creates the inline-in-row content backend.
func NewDatabaseBackend() *DatabaseBackend {
	return &DatabaseBackend{}
}

func (b *DatabaseBackend) Name() string { return BackendDatabase }

func (b *DatabaseBackend) Get(ctx context.Context, msg *queue.Message) ([]byte, error) {
	if len(msg.Data) == 0 {
		return nil, ErrNoContent
	}
	return msg.Data, nil
}

func (b *DatabaseBackend) Set(ctx context.Context, msg *queue.Message, data []byte) error {
	msg.Storage = BackendDatabase
	msg.Data = data
	return nil
}

// Delete clears the in-memory copy; the row delete removes the actual data.
func (b *DatabaseBackend) Delete(ctx context.Context, msg *queue.Message) error {
	msg.Data = nil
	return nil
}
