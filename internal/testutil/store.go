package testutil

import (
	"context"
	"io"
	"sync"

	"dedup-go/internal/dedup"
	"dedup-go/internal/store"
)

// NewMemoryStore returns an empty in-memory store for tests.
func NewMemoryStore() *store.MemoryStore {
	return store.NewMemoryStore()
}

// CountingStore wraps a Store and counts Get and Put calls per key. Used
// to verify fetch deduplication.
type CountingStore struct {
	dedup.Store

	mu   sync.Mutex
	gets map[string]int
	puts map[string]int
}

// NewCountingStore wraps the given store.
func NewCountingStore(inner dedup.Store) *CountingStore {
	return &CountingStore{
		Store: inner,
		gets:  make(map[string]int),
		puts:  make(map[string]int),
	}
}

func (c *CountingStore) Get(ctx context.Context, key string, w io.Writer) error {
	c.mu.Lock()
	c.gets[key]++
	c.mu.Unlock()
	return c.Store.Get(ctx, key, w)
}

func (c *CountingStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	c.mu.Lock()
	c.puts[key]++
	c.mu.Unlock()
	return c.Store.Put(ctx, key, r, size)
}

// Gets returns how many times key was fetched.
func (c *CountingStore) Gets(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets[key]
}

// Puts returns how many times key was stored.
func (c *CountingStore) Puts(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts[key]
}

// TotalGets returns the total number of Get calls across all keys.
func (c *CountingStore) TotalGets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.gets {
		total += n
	}
	return total
}
