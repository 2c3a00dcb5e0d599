package cache

import (
	"context"
	"sync"
)

// MemoryCache is a process-local EmbeddingCache. It is the default for
// single-run builds where persisting vectors across processes is not needed.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[memoryKey][]float32
}

type memoryKey struct {
	filename  string
	dimension string
}

// NewMemoryCache creates an empty in-memory embedding cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[memoryKey][]float32),
	}
}

func (c *MemoryCache) Get(_ context.Context, filename string, dimension string) ([]float32, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vec, ok := c.entries[memoryKey{filename, dimension}]
	return vec, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, filename string, dimension string, vector []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[memoryKey{filename, dimension}] = vector
	return nil
}

// Len returns the number of cached vectors.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
