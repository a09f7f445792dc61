package gate

import (
	"sync"
	"time"
)

// TTLCache is a small in-process cache with per-entry expiry.
// It avoids repeating slow lookups (the external role oracle in
// particular) on every request.
type TTLCache[K comparable, V any] struct {
	entries map[K]*cacheEntry[V]
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewTTLCache creates an empty cache. ttl is how long values are kept
// before they count as missing.
func NewTTLCache[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		entries: make(map[K]*cacheEntry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value for key if present and not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Before(entry.expiresAt) {
		return entry.value, true
	}
	var zero V
	return zero, false
}

// Set stores value under key for the cache TTL.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	c.entries[key] = &cacheEntry[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// Invalidate removes a single key.
// Call this when a principal's role assignment changes.
func (c *TTLCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateAll clears the entire cache.
func (c *TTLCache[K, V]) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[K]*cacheEntry[V])
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
