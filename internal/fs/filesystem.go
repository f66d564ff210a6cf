package fs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"dedup-go/internal/dedup"
)

// OSFilesystem is the real filesystem implementation of dedup.Filesystem.
// It performs actual filesystem operations using the os package.
type OSFilesystem struct {
	ignorePatterns []string
}

// NewOSFilesystem creates a filesystem that operates on the real
// filesystem. ignorePatterns (may be nil) are applied to every walk, in
// addition to any ignore file found at the walk root.
func NewOSFilesystem(ignorePatterns []string) *OSFilesystem {
	return &OSFilesystem{ignorePatterns: ignorePatterns}
}

// Resolve validates a raw path and returns its absolute form and info.
func (m *OSFilesystem) Resolve(rawPath string) (string, fs.FileInfo, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	// Lstat so a symlink shows up as itself, not as its target.
	info, err := os.Lstat(absPath)
	if err != nil {
		return "", nil, fmt.Errorf("stat path: %w", err)
	}

	mode := info.Mode()
	if mode&os.ModeSymlink != 0 {
		return "", nil, fmt.Errorf("symlinks not supported: %s", absPath)
	}
	if mode&os.ModeDevice != 0 {
		return "", nil, fmt.Errorf("device files not supported: %s", absPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return "", nil, fmt.Errorf("named pipes not supported: %s", absPath)
	}
	if mode&os.ModeSocket != 0 {
		return "", nil, fmt.Errorf("sockets not supported: %s", absPath)
	}

	return absPath, info, nil
}

// Open opens a file for reading.
func (m *OSFilesystem) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Stat returns fresh file info for a path.
func (m *OSFilesystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// Walk lazily visits every regular file under root. Unreadable subtrees
// are reported to fn once and then skipped rather than aborting the walk.
// Ignored entries (configured patterns plus the root's ignore file) are
// skipped silently.
func (m *OSFilesystem) Walk(root string, fn dedup.WalkFunc) error {
	matcher, err := m.buildMatcher(root)
	if err != nil {
		return err
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if ferr := fn(p, nil, err); ferr != nil {
				return ferr
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p != root {
			rel, relErr := filepath.Rel(root, p)
			if relErr == nil && matcher.Match(rel) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fn(p, nil, err)
		}
		return fn(p, info, nil)
	})
}

// buildMatcher combines the default patterns, configured patterns, and the
// walk root's ignore file.
func (m *OSFilesystem) buildMatcher(root string) (*IgnoreMatcher, error) {
	patterns := append([]string{}, defaultIgnorePatterns...)
	patterns = append(patterns, m.ignorePatterns...)

	filePatterns, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns = append(patterns, filePatterns...)

	return NewIgnoreMatcher(patterns), nil
}

// Compile-time check that OSFilesystem implements dedup.Filesystem interface
var _ dedup.Filesystem = (*OSFilesystem)(nil)
