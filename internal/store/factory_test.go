package store

import (
	"context"
	"path/filepath"
	"testing"

	"dedup-go/internal/config"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, err := New(ctx, config.StoreConfig{Type: "memory"}, "", "")
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, ok := s.(*MemoryStore); !ok {
			t.Errorf("New() returned %T, want *MemoryStore", s)
		}
	})

	t.Run("filesystem", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "store")
		s, err := New(ctx, config.StoreConfig{Type: "filesystem", Root: root}, "", "")
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, ok := s.(*FilesystemStore); !ok {
			t.Errorf("New() returned %T, want *FilesystemStore", s)
		}
	})

	t.Run("filesystem without root", func(t *testing.T) {
		if _, err := New(ctx, config.StoreConfig{Type: "filesystem"}, "", ""); err == nil {
			t.Error("New() = nil error, want error for missing root")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := New(ctx, config.StoreConfig{Type: "carrier-pigeon"}, "", ""); err == nil {
			t.Error("New() = nil error, want error for unknown type")
		}
	})
}
