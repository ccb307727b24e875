package service

import (
	"context"
	"sync"
)

const defaultPeakCacheSize = 256

// PeakCache memoizes detected start times by source content digest so a
// re-submitted video skips the decode pass. Oldest entries are evicted first.
type PeakCache struct {
	mu      sync.Mutex
	entries map[string][]float64
	order   []string
	size    int
}

func NewPeakCache(size int) *PeakCache {
	if size <= 0 {
		size = defaultPeakCacheSize
	}
	return &PeakCache{
		entries: make(map[string][]float64),
		size:    size,
	}
}

func (c *PeakCache) Get(digest string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	starts, ok := c.entries[digest]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), starts...), true
}

func (c *PeakCache) Put(digest string, starts []float64) {
	if digest == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[digest]; !ok {
		c.order = append(c.order, digest)
	}
	c.entries[digest] = append([]float64(nil), starts...)

	for len(c.order) > c.size {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *PeakCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Detect returns cached starts for digest or runs the detector and caches
// the result. An empty digest bypasses the cache.
func (c *PeakCache) Detect(ctx context.Context, d *PeakDetector, digest, path string) []float64 {
	if digest != "" {
		if starts, ok := c.Get(digest); ok {
			return starts
		}
	}
	starts := d.Detect(ctx, path)
	// A cancelled scan may be partial; don't remember it.
	if ctx.Err() == nil {
		c.Put(digest, starts)
	}
	return starts
}
