package dedup

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DownloadOptions configures one download/restore run.
type DownloadOptions struct {
	// Prefix is the remote prefix to restore, e.g. "MyDrive" or
	// "MyDrive/photos".
	Prefix string
	// Dest is the local directory files are written under.
	Dest string
	// DryRun reports what would be fetched without touching the network
	// beyond the listing.
	DryRun bool
	// Workers is the worker pool size; DefaultWorkers when zero.
	Workers int
	// OnResult, when set, is called for every completed object from the
	// collector goroutine.
	OnResult func(Result)
}

// originalCache deduplicates fetches of original content across pointer
// resolutions. The lock guards only the check and populate steps, never a
// remote fetch: two workers that both miss may both fetch the same
// original, which costs a download but is never a correctness fault.
type originalCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newOriginalCache() *originalCache {
	return &originalCache{entries: make(map[string][]byte)}
}

func (c *originalCache) lookup(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	return data, ok
}

// populate stores data for key unless another worker got there first, and
// returns whichever bytes the cache now holds.
func (c *originalCache) populate(key string, data []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing
	}
	c.entries[key] = data
	return data
}

// fetchOriginal returns the content stored under originalKey, serving
// repeats from the cache. Exactly one remote fetch happens per original in
// the common case.
func (c *originalCache) fetchOriginal(ctx context.Context, store Store, originalKey string) ([]byte, error) {
	if data, ok := c.lookup(originalKey); ok {
		return data, nil
	}
	var buf bytes.Buffer
	if err := store.Get(ctx, originalKey, &buf); err != nil {
		return nil, fmt.Errorf("fetching original %s: %w", originalKey, err)
	}
	return c.populate(originalKey, buf.Bytes()), nil
}

// Download lists every object under the remote prefix and restores each to
// its local path: pointer objects are resolved back to their originals
// through the fetch-deduplicating cache, plain objects are fetched
// directly. Per-object failures are reported and do not stop the run.
func (s *Service) Download(ctx context.Context, opts DownloadOptions) (*Summary, error) {
	if s.store == nil {
		return nil, fmt.Errorf("no remote store configured")
	}
	if err := s.store.ValidateSetup(ctx); err != nil {
		return nil, fmt.Errorf("remote store unreachable: %w", err)
	}
	if opts.Dest == "" {
		return nil, fmt.Errorf("destination directory is required")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	s.logger.Info("download started", "prefix", opts.Prefix, "dest", opts.Dest, "dry_run", opts.DryRun)

	cache := newOriginalCache()
	jobs := make(chan string, workers)
	results := make(chan Result)

	var listErr error
	go func() {
		defer close(jobs)
		listErr = s.store.List(ctx, opts.Prefix, func(key string) error {
			select {
			case jobs <- key:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range jobs {
				results <- s.downloadGuarded(ctx, cache, key, opts)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	summary := NewSummary()
	for res := range results {
		summary.Add(res)
		if opts.OnResult != nil {
			opts.OnResult(res)
		}
	}

	if listErr != nil && ctx.Err() == nil {
		return summary, fmt.Errorf("listing remote objects: %w", listErr)
	}

	s.logger.Info("download finished", "objects", summary.Total(), "errors", len(summary.Errors))
	return summary, ctx.Err()
}

func (s *Service) downloadGuarded(ctx context.Context, cache *originalCache, key string, opts DownloadOptions) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Outcome: OutcomeError, Path: key, Err: fmt.Errorf("unexpected failure: %v", r)}
		}
	}()
	return s.downloadOne(ctx, cache, key, opts)
}

// downloadOne restores a single remote object.
func (s *Service) downloadOne(ctx context.Context, cache *originalCache, key string, opts DownloadOptions) Result {
	if strings.HasSuffix(key, PointerSuffix) {
		dest, err := s.localDestination(strings.TrimSuffix(key, PointerSuffix), opts)
		if err != nil {
			return Result{Outcome: OutcomeError, Path: key, Err: err}
		}
		if opts.DryRun {
			return Result{Outcome: OutcomeWouldDownload, Path: key}
		}
		if err := s.restorePointer(ctx, cache, key, dest); err != nil {
			return Result{Outcome: OutcomeError, Path: key, Err: err}
		}
		return Result{Outcome: OutcomeDownloaded, Path: key}
	}

	dest, err := s.localDestination(key, opts)
	if err != nil {
		return Result{Outcome: OutcomeError, Path: key, Err: err}
	}
	if opts.DryRun {
		return Result{Outcome: OutcomeWouldDownload, Path: key}
	}
	if err := s.fetchToFile(ctx, key, dest); err != nil {
		return Result{Outcome: OutcomeError, Path: key, Err: err}
	}
	return Result{Outcome: OutcomeDownloaded, Path: key}
}

// localDestination maps a remote key (pointer suffix already stripped) to
// the local path under Dest: strip the prefix, percent-decode, join. The
// prefix is a path boundary, not a byte prefix: when it ends mid-segment
// (listing matches by bytes), the cut moves back to the last '/' so whole
// segment names are kept.
func (s *Service) localDestination(key string, opts DownloadOptions) (string, error) {
	rel := strings.TrimPrefix(key, opts.Prefix)
	switch {
	case strings.HasPrefix(rel, "/"):
		rel = strings.TrimPrefix(rel, "/")
	case opts.Prefix != "" && rel != "":
		rel = key[strings.LastIndexByte(opts.Prefix, '/')+1:]
	}
	if rel == "" {
		return "", fmt.Errorf("remote key %q has no path under prefix %q", key, opts.Prefix)
	}
	decoded, err := DesanitizeRelPath(rel)
	if err != nil {
		return "", err
	}
	return filepath.Join(opts.Dest, filepath.FromSlash(decoded)), nil
}

// restorePointer fetches and decodes a pointer artifact, resolves the
// original through the cache, and writes the bytes to dest.
func (s *Service) restorePointer(ctx context.Context, cache *originalCache, pointerKey, dest string) error {
	var buf bytes.Buffer
	if err := s.store.Get(ctx, pointerKey, &buf); err != nil {
		return fmt.Errorf("fetching pointer: %w", err)
	}
	artifact, err := DecodePointer(buf.Bytes())
	if err != nil {
		return err
	}

	data, err := cache.fetchOriginal(ctx, s.store, artifact.OriginalPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return nil
}

// fetchToFile streams a plain object directly to its destination path,
// removing the partial file on failure.
func (s *Service) fetchToFile(ctx context.Context, key, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	if err := s.store.Get(ctx, key, f); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("fetching %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("closing %s: %w", dest, err)
	}
	return nil
}
