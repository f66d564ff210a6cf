package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestFilesystemStore(t *testing.T) *FilesystemStore {
	t.Helper()
	s, err := NewFilesystemStore(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("NewFilesystemStore() error = %v", err)
	}
	return s
}

func TestFilesystemStoreRoundTrip(t *testing.T) {
	s := newTestFilesystemStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "photos/2024/a.jpg", strings.NewReader("content"), 7); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	ok, err := s.Exists(ctx, "photos/2024/a.jpg")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !ok {
		t.Error("Exists() = false after Put")
	}

	var buf bytes.Buffer
	if err := s.Get(ctx, "photos/2024/a.jpg", &buf); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if buf.String() != "content" {
		t.Errorf("Get() = %q, want %q", buf.String(), "content")
	}
}

func TestFilesystemStoreSizeMismatchLeavesNothing(t *testing.T) {
	s := newTestFilesystemStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k", strings.NewReader("hello"), 99); err == nil {
		t.Fatal("Put() with wrong size = nil, want error")
	}

	// Neither the object nor a stray temp file remains.
	ok, err := s.Exists(ctx, "k")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if ok {
		t.Error("Exists() = true after failed Put")
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file %s left behind after failed Put", e.Name())
		}
	}
}

func TestFilesystemStoreList(t *testing.T) {
	s := newTestFilesystemStore(t)
	ctx := context.Background()

	for _, key := range []string{"drive/sub/b.txt", "drive/a.txt", "other/c.txt"} {
		if err := s.Put(ctx, key, strings.NewReader("x"), 1); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}

	var keys []string
	err := s.List(ctx, "drive/", func(key string) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{"drive/a.txt", "drive/sub/b.txt"}
	if len(keys) != len(want) {
		t.Fatalf("List() returned %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestFilesystemStoreValidateSetup(t *testing.T) {
	s := newTestFilesystemStore(t)
	if err := s.ValidateSetup(context.Background()); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}

	if err := os.RemoveAll(s.root); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}
	if err := s.ValidateSetup(context.Background()); err == nil {
		t.Error("ValidateSetup() = nil after removing root, want error")
	}
}
