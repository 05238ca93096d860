package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/busybox42/mailroom/internal/queue"
)

func TestDatabaseBackendRoundTrip(t *testing.T) {
	b := NewDatabaseBackend()
	ctx := context.Background()
	msg := &queue.Message{ID: "msg-1"}

	if err := b.Set(ctx, msg, []byte("payload")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if msg.Storage != BackendDatabase {
		t.Errorf("Expected storage %q, got %q", BackendDatabase, msg.Storage)
	}

	data, err := b.Get(ctx, msg)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("Unexpected payload %q", data)
	}
}

func TestDatabaseBackendNoContent(t *testing.T) {
	b := NewDatabaseBackend()
	_, err := b.Get(context.Background(), &queue.Message{ID: "msg-1"})
	if !errors.Is(err, ErrNoContent) {
		t.Errorf("Expected ErrNoContent, got %v", err)
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	ctx := context.Background()
	msg := &queue.Message{ID: "msg-1", Data: []byte("inline")}

	if err := b.Set(ctx, msg, []byte("payload")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if msg.Storage != BackendFile {
		t.Errorf("Expected storage %q, got %q", BackendFile, msg.Storage)
	}
	if msg.Data != nil {
		t.Error("File backend must clear the inline payload")
	}
	if _, err := os.Stat(filepath.Join(dir, "msg-1.eml")); err != nil {
		t.Errorf("Expected content file: %v", err)
	}

	data, err := b.Get(ctx, msg)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("Unexpected payload %q", data)
	}

	if err := b.Delete(ctx, msg); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := b.Get(ctx, msg); !errors.Is(err, ErrNoContent) {
		t.Errorf("Expected ErrNoContent after delete, got %v", err)
	}
	// Deleting again is a no-op.
	if err := b.Delete(ctx, msg); err != nil {
		t.Errorf("Second delete failed: %v", err)
	}
}

func TestFileBackendRejectsBadIDs(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	ctx := context.Background()

	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		t.Run(id, func(t *testing.T) {
			msg := &queue.Message{ID: id}
			if err := b.Set(ctx, msg, []byte("x")); err == nil {
				t.Errorf("Expected Set to reject id %q", id)
			}
			if _, err := b.Get(ctx, msg); err == nil {
				t.Errorf("Expected Get to reject id %q", id)
			}
		})
	}
}

func TestMigrateDatabaseToFile(t *testing.T) {
	store := queue.NewStore("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err := store.Connect(); err != nil {
		t.Fatalf("Failed to connect store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		msg := &queue.Message{
			FromAddress: "sender@example.com",
			To:          []string{"recipient@example.com"},
			Storage:     BackendDatabase,
			Data:        []byte("payload"),
		}
		if err := store.Create(ctx, msg); err != nil {
			t.Fatalf("Failed to create message: %v", err)
		}
		ids = append(ids, msg.ID)
	}

	fileBackend, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create file backend: %v", err)
	}

	migrated, err := Migrate(ctx, store, NewDatabaseBackend(), fileBackend)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if migrated != 3 {
		t.Errorf("Expected 3 migrations, got %d", migrated)
	}

	for _, id := range ids {
		msg, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("Failed to get message: %v", err)
		}
		if msg.Storage != BackendFile {
			t.Errorf("Expected storage repointed to file, got %q", msg.Storage)
		}
		if len(msg.Data) != 0 {
			t.Error("Expected inline payload cleared")
		}
		data, err := fileBackend.Get(ctx, msg)
		if err != nil {
			t.Fatalf("Failed to read migrated content: %v", err)
		}
		if string(data) != "payload" {
			t.Errorf("Unexpected migrated payload %q", data)
		}
	}

	// Restartable: a second pass finds nothing left on the source backend.
	migrated, err = Migrate(ctx, store, NewDatabaseBackend(), fileBackend)
	if err != nil {
		t.Fatalf("Second migrate failed: %v", err)
	}
	if migrated != 0 {
		t.Errorf("Expected nothing to migrate, got %d", migrated)
	}
}

func TestMigrateSameBackend(t *testing.T) {
	if _, err := Migrate(context.Background(), nil, NewDatabaseBackend(), NewDatabaseBackend()); err == nil {
		t.Error("Expected same-backend migration to be rejected")
	}
}
