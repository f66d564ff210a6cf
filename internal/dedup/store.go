package dedup

import (
	"context"
	"io"
)

// Store provides an interface for remote object storage backends.
// Keys are slash-separated and already sanitized (see SanitizeRelPath);
// content flows through io.Reader/io.Writer so large files are never held
// in memory.
type Store interface {
	// Exists reports whether an object is present at key.
	Exists(ctx context.Context, key string) (bool, error)

	// Put stores the object at key. size is the number of bytes that will
	// be read from r. Storing the same key twice overwrites; callers check
	// Exists first when overwrites must be avoided.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get retrieves the object at key and writes it to w.
	Get(ctx context.Context, key string, w io.Writer) error

	// List calls fn for every object key under prefix. Listing stops when
	// fn returns a non-nil error, which is returned to the caller.
	List(ctx context.Context, prefix string, fn func(key string) error) error

	// ValidateSetup verifies that the store is reachable and properly
	// configured. Called once before any work is scheduled.
	ValidateSetup(ctx context.Context) error
}
