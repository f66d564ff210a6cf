package dedup

import (
	"io"
	"io/fs"
	"time"
)

// WalkFunc is called once per regular file discovered under a walk root.
// When a directory cannot be enumerated (for example a permission error),
// it is called once with a nil info and a non-nil walkErr; the walk then
// skips that subtree and continues. Returning a non-nil error stops the
// walk.
type WalkFunc func(path string, info fs.FileInfo, walkErr error) error

// Filesystem abstracts local file access so pipelines can be tested
// without touching the real filesystem.
type Filesystem interface {
	// Resolve validates a raw path: converts it to an absolute path,
	// stats it, and rejects symlinks and other non-regular entries.
	Resolve(rawPath string) (string, fs.FileInfo, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// Stat returns fresh file info for a path.
	Stat(path string) (fs.FileInfo, error)

	// Walk lazily visits every regular file under root. Symlinks, devices
	// and other non-regular entries are skipped; the tree is never
	// materialized as a list.
	Walk(root string, fn WalkFunc) error

	// Times extracts access and change timestamps from a FileInfo,
	// falling back to the modification time where the platform does not
	// record them.
	Times(info fs.FileInfo) (atime, ctime time.Time)
}
