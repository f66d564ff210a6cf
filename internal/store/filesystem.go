package store

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dedup-go/internal/dedup"
)

// FilesystemStore is a directory-backed implementation of the Store
// interface. Object keys map to file paths under the root, so a key like
// "photos/2024/a.jpg" becomes <root>/photos/2024/a.jpg. Useful for local
// targets and for testing against a real filesystem.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore creates a store rooted at the given directory,
// creating it if necessary.
func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &FilesystemStore{root: root}, nil
}

func (s *FilesystemStore) objectPath(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Exists reports whether an object with the given key is present.
func (s *FilesystemStore) Exists(_ context.Context, key string) (bool, error) {
	info, err := os.Stat(s.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking object: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// Put stores an object under key using an atomic write (temp file + rename).
func (s *FilesystemStore) Put(_ context.Context, key string, r io.Reader, size int64) error {
	destPath := s.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	// Temp file in the same directory so the rename stays atomic.
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if size >= 0 && written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

// Get retrieves an object by key and writes it to w.
func (s *FilesystemStore) Get(_ context.Context, key string, w io.Writer) error {
	f, err := os.Open(s.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("object not found: %s", key)
		}
		return fmt.Errorf("failed to open object: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}
	return nil
}

// List calls fn for every key under prefix, in lexicographic order.
func (s *FilesystemStore) List(ctx context.Context, prefix string, fn func(key string) error) error {
	var keys []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing objects: %w", err)
	}

	sort.Strings(keys)
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSetup verifies that the store root is an accessible directory.
func (s *FilesystemStore) ValidateSetup(context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("store root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("store root is not a directory: %s", s.root)
	}
	return nil
}

// Compile-time check that FilesystemStore implements dedup.Store
var _ dedup.Store = (*FilesystemStore)(nil)
