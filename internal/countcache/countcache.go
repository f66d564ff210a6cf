// Package countcache caches per-drive file counts so repeat runs can show
// progress totals without re-walking the source tree.
package countcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultMaxAge is how long a cached count stays valid.
const DefaultMaxAge = 7 * 24 * time.Hour

type entry struct {
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
}

// Cache is a JSON-file-backed count cache keyed by drive and source path.
// A corrupted or missing cache file reads as empty.
type Cache struct {
	path   string
	maxAge time.Duration
	now    func() time.Time
}

// New creates a cache stored at path. maxAge <= 0 selects DefaultMaxAge.
func New(path string, maxAge time.Duration) *Cache {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Cache{path: path, maxAge: maxAge, now: time.Now}
}

func cacheKey(drive, source string) string {
	return drive + ":" + source
}

// Get returns the cached count for a drive/source pair and whether a valid
// entry was found.
func (c *Cache) Get(drive, source string) (int, bool) {
	entries := c.load()
	e, ok := entries[cacheKey(drive, source)]
	if !ok {
		return 0, false
	}
	if c.now().Sub(e.Timestamp) >= c.maxAge {
		return 0, false
	}
	return e.Count, true
}

// Put records a count for a drive/source pair.
func (c *Cache) Put(drive, source string, count int) error {
	entries := c.load()
	entries[cacheKey(drive, source)] = entry{
		Count:     count,
		Timestamp: c.now(),
		Path:      source,
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding count cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("writing count cache: %w", err)
	}
	return nil
}

// load reads all entries, treating any read or parse failure as an empty
// cache.
func (c *Cache) load() map[string]entry {
	entries := make(map[string]entry)
	data, err := os.ReadFile(c.path)
	if err != nil {
		return entries
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return make(map[string]entry)
	}
	return entries
}
