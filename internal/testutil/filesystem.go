package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"dedup-go/internal/dedup"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
	Atime       time.Time
	Ctime       time.Time
}

// MockFilesystem is an in-memory implementation of dedup.Filesystem.
// Paths are slash-separated. Safe for concurrent use.
type MockFilesystem struct {
	mu    sync.Mutex
	files map[string]*MockFile

	// OpenErrs queues errors per path: each Open of the path consumes one
	// queued error before reads start succeeding. Used to exercise retry
	// behavior.
	OpenErrs map[string][]error
}

// NewMockFilesystem creates a new empty mock filesystem.
func NewMockFilesystem() *MockFilesystem {
	return &MockFilesystem{
		files:    make(map[string]*MockFile),
		OpenErrs: make(map[string][]error),
	}
}

// AddFile adds a file to the mock filesystem, creating parent directories
// implicitly.
func (m *MockFilesystem) AddFile(p string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	m.files[p] = &MockFile{
		Content:     content,
		Permissions: 0644,
		ModTime:     now,
		Atime:       now,
		Ctime:       now,
	}

	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if _, ok := m.files[dir]; !ok {
			m.files[dir] = &MockFile{Permissions: 0755, IsDirectory: true, ModTime: now, Atime: now, Ctime: now}
		}
	}
}

// AddDirectory adds an (empty) directory to the mock filesystem.
func (m *MockFilesystem) AddDirectory(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	m.files[p] = &MockFile{Permissions: 0755, IsDirectory: true, ModTime: now, Atime: now, Ctime: now}
}

// FailOpen queues an error for the next Open of path.
func (m *MockFilesystem) FailOpen(p string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenErrs[p] = append(m.OpenErrs[p], err)
}

func (m *MockFilesystem) lookup(p string) (*MockFile, error) {
	f, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", p)
	}
	return f, nil
}

func (m *MockFilesystem) info(p string, f *MockFile) fs.FileInfo {
	return &mockFileInfo{
		name:     path.Base(p),
		size:     int64(len(f.Content)),
		mode:     f.Permissions,
		modTime:  f.ModTime,
		isDir:    f.IsDirectory,
		mockFile: f,
	}
}

func (m *MockFilesystem) Resolve(rawPath string) (string, fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.lookup(rawPath)
	if err != nil {
		return "", nil, err
	}
	return rawPath, m.info(rawPath, f), nil
}

func (m *MockFilesystem) Open(p string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if errs := m.OpenErrs[p]; len(errs) > 0 {
		err := errs[0]
		m.OpenErrs[p] = errs[1:]
		return nil, err
	}

	f, err := m.lookup(p)
	if err != nil {
		return nil, err
	}
	if f.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", p)
	}
	return io.NopCloser(bytes.NewReader(f.Content)), nil
}

func (m *MockFilesystem) Stat(p string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.lookup(p)
	if err != nil {
		return nil, err
	}
	return m.info(p, f), nil
}

// Walk visits regular files under root in sorted path order.
func (m *MockFilesystem) Walk(root string, fn dedup.WalkFunc) error {
	m.mu.Lock()
	var paths []string
	for p, f := range m.files {
		if f.IsDirectory {
			continue
		}
		if p == root || strings.HasPrefix(p, strings.TrimSuffix(root, "/")+"/") {
			paths = append(paths, p)
		}
	}
	m.mu.Unlock()

	sort.Strings(paths)
	for _, p := range paths {
		m.mu.Lock()
		f := m.files[p]
		info := m.info(p, f)
		m.mu.Unlock()
		if err := fn(p, info, nil); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockFilesystem) Times(info fs.FileInfo) (atime, ctime time.Time) {
	if f, ok := info.Sys().(*MockFile); ok {
		return f.Atime, f.Ctime
	}
	return info.ModTime(), info.ModTime()
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name     string
	size     int64
	mode     fs.FileMode
	modTime  time.Time
	isDir    bool
	mockFile *MockFile // reference to get stat data
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return m.mockFile }

// Compile-time check
var _ dedup.Filesystem = (*MockFilesystem)(nil)
