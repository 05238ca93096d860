package pause

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	if Static(false).IsPaused(ctx) {
		t.Error("Expected unpaused")
	}
	if !Static(true).IsPaused(ctx) {
		t.Error("Expected paused")
	}
}

func TestEnv(t *testing.T) {
	ctx := context.Background()
	flag := Env("MAILROOM_TEST_PAUSE")

	if flag.IsPaused(ctx) {
		t.Error("Unset variable must mean unpaused")
	}

	tests := []struct {
		value  string
		paused bool
	}{
		{"1", true},
		{"true", true},
		{"YES", true},
		{"on", true},
		{"0", false},
		{"false", false},
		{"", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		t.Setenv("MAILROOM_TEST_PAUSE", tt.value)
		if got := flag.IsPaused(ctx); got != tt.paused {
			t.Errorf("Value %q: expected paused=%v, got %v", tt.value, tt.paused, got)
		}
	}
}

func TestFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pause")
	flag := File(path)

	if flag.IsPaused(ctx) {
		t.Error("Missing file must mean unpaused")
	}

	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("Failed to create pause file: %v", err)
	}
	if !flag.IsPaused(ctx) {
		t.Error("Existing file must mean paused")
	}

	// Resuming is deleting the file; no process restart involved.
	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to remove pause file: %v", err)
	}
	if flag.IsPaused(ctx) {
		t.Error("Expected unpaused after file removal")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "Default", config: Config{}},
		{name: "Config", config: Config{Source: "config", Paused: true}},
		{name: "Env", config: Config{Source: "env"}},
		{name: "File", config: Config{Source: "file", Path: "/tmp/pause"}},
		{name: "FileMissingPath", config: Config{Source: "file"}, wantErr: true},
		{name: "Unknown", config: Config{Source: "bogus"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag, err := New(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if flag == nil {
				t.Fatal("Expected a flag")
			}
		})
	}
}

func TestTruthy(t *testing.T) {
	for _, val := range []string{"1", "true", "TRUE", "yes", "on", " t "} {
		if !truthy(val) {
			t.Errorf("Expected %q to be truthy", val)
		}
	}
	for _, val := range []string{"", "0", "false", "no", "off", "garbage"} {
		if truthy(val) {
			t.Errorf("Expected %q to be falsy", val)
		}
	}
}
