package assistant

import (
	"sync"
	"time"
)

// Descriptor cache bounds. A batch frequently revisits the same path
// (metadata pass followed by a preview pass); caching the built
// descriptor avoids re-reading and re-hashing the file within that
// window.
const (
	descriptorCacheSize = 32
	descriptorCacheTTL  = 5 * time.Minute
)

// descriptorCache is a capacity- and time-bounded map of model path to
// built descriptor. Entries are invalidated by TTL expiry only, checked
// on lookup; there is no explicit invalidation. Safe for concurrent use.
type descriptorCache struct {
	mu      sync.Mutex
	size    int
	ttl     time.Duration
	entries map[string]cacheEntry

	// now is swappable for tests.
	now func() time.Time
}

type cacheEntry struct {
	desc    ModelDescriptor
	addedAt time.Time
}

// newDescriptorCache creates a cache holding at most size entries, each
// valid for ttl after insertion.
func newDescriptorCache(size int, ttl time.Duration) *descriptorCache {
	return &descriptorCache{
		size:    size,
		ttl:     ttl,
		entries: make(map[string]cacheEntry, size),
		now:     time.Now,
	}
}

// get returns the cached descriptor for path if present and unexpired.
// Expired entries are removed on lookup.
func (c *descriptorCache) get(path string) (ModelDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[path]
	if !ok {
		return ModelDescriptor{}, false
	}
	if c.now().Sub(entry.addedAt) > c.ttl {
		delete(c.entries, path)
		return ModelDescriptor{}, false
	}
	return entry.desc, true
}

// put stores a descriptor for path, evicting the oldest entry when the
// cache is full.
func (c *descriptorCache) put(path string, desc ModelDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[path]; !ok && len(c.entries) >= c.size {
		c.evictOldestLocked()
	}
	c.entries[path] = cacheEntry{desc: desc, addedAt: c.now()}
}

// evictOldestLocked removes the entry with the earliest insertion time.
// Caller must hold mu.
func (c *descriptorCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, entry := range c.entries {
		if first || entry.addedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.addedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
