package store

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, "drive/a.txt", strings.NewReader("hello"), 5); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	ok, err := s.Exists(ctx, "drive/a.txt")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !ok {
		t.Error("Exists() = false, want true")
	}

	var buf bytes.Buffer
	if err := s.Get(ctx, "drive/a.txt", &buf); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if buf.String() != "hello" {
		t.Errorf("Get() = %q, want %q", buf.String(), "hello")
	}
}

func TestMemoryStoreSizeMismatch(t *testing.T) {
	s := NewMemoryStore()

	err := s.Put(context.Background(), "k", strings.NewReader("hello"), 3)
	if err == nil {
		t.Error("Put() with wrong size = nil, want error")
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()

	var buf bytes.Buffer
	if err := s.Get(context.Background(), "missing", &buf); err == nil {
		t.Error("Get() of missing key = nil, want error")
	}

	ok, err := s.Exists(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if ok {
		t.Error("Exists() = true for missing key")
	}
}

func TestMemoryStoreList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, key := range []string{"drive/b.txt", "drive/a.txt", "other/c.txt"} {
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

	want := []string{"drive/a.txt", "drive/b.txt"}
	if len(keys) != len(want) {
		t.Fatalf("List() returned %d keys, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}
