package fs

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
}

func walkPaths(t *testing.T, m *OSFilesystem, root string) []string {
	t.Helper()
	var paths []string
	err := m.Walk(root, func(path string, info fs.FileInfo, walkErr error) error {
		if walkErr != nil {
			t.Fatalf("unexpected walk error for %s: %v", path, walkErr)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			t.Fatalf("Rel() error = %v", err)
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	sort.Strings(paths)
	return paths
}

func TestResolve(t *testing.T) {
	m := NewOSFilesystem(nil)
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.txt": "x"})

	t.Run("regular file", func(t *testing.T) {
		abs, info, err := m.Resolve(filepath.Join(dir, "a.txt"))
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !filepath.IsAbs(abs) {
			t.Errorf("Resolve() = %q, want absolute path", abs)
		}
		if info.IsDir() {
			t.Error("Resolve() info.IsDir() = true for file")
		}
	})

	t.Run("missing path", func(t *testing.T) {
		if _, _, err := m.Resolve(filepath.Join(dir, "missing")); err == nil {
			t.Error("Resolve() = nil error for missing path")
		}
	})

	t.Run("symlink rejected", func(t *testing.T) {
		link := filepath.Join(dir, "link")
		if err := os.Symlink(filepath.Join(dir, "a.txt"), link); err != nil {
			t.Skipf("cannot create symlink: %v", err)
		}
		if _, _, err := m.Resolve(link); err == nil {
			t.Error("Resolve() = nil error for symlink")
		}
	})
}

func TestWalkVisitsRegularFiles(t *testing.T) {
	m := NewOSFilesystem(nil)
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"a.txt":       "a",
		"sub/b.txt":   "b",
		"sub/c/d.txt": "d",
	})

	got := walkPaths(t, m, dir)
	want := []string{"a.txt", "sub/b.txt", "sub/c/d.txt"}
	if len(got) != len(want) {
		t.Fatalf("Walk() visited %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWalkIgnorePatterns(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"keep.txt":      "k",
		"skip.log":      "s",
		"build/out.txt": "o",
		"sub/deep.log":  "d",
	})

	m := NewOSFilesystem([]string{"*.log", "build"})
	got := walkPaths(t, m, dir)
	want := []string{"keep.txt"}
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("Walk() visited %v, want %v", got, want)
	}
}

func TestWalkIgnoreFile(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		IgnoreFileName: "*.tmp\n",
		"keep.txt":     "k",
		"junk.tmp":     "j",
	})

	m := NewOSFilesystem(nil)
	got := walkPaths(t, m, dir)
	// The ignore file itself is always skipped.
	want := []string{"keep.txt"}
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("Walk() visited %v, want %v", got, want)
	}
}

func TestTimesFallsBackToModTime(t *testing.T) {
	m := NewOSFilesystem(nil)
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.txt": "x"})

	info, err := m.Stat(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}

	atime, ctime := m.Times(info)
	if atime.IsZero() || ctime.IsZero() {
		t.Errorf("Times() = %v, %v; want non-zero", atime, ctime)
	}
}
