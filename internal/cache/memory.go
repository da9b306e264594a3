package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryEntries bounds the memory tier when no size is given.
const DefaultMemoryEntries = 4096

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is the per-process front tier of TTLCache. Last writer wins;
// there is no coherence across processes. When full, the entry closest to
// expiry makes room for a new key.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]memEntry
	maxEntries int
	now        func() time.Time

	sweepEvery time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewMemoryCache creates a memory tier holding at most maxEntries values
// and starts its sweeper.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryEntries
	}
	c := &MemoryCache{
		entries:    make(map[string]memEntry),
		maxEntries: maxEntries,
		now:        time.Now,
		sweepEvery: time.Minute,
		stop:       make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Get returns a copy of the value, or ErrCacheMiss when absent or expired.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value for ttl. A non-positive ttl removes the key.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		delete(c.entries, key)
		return nil
	}
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = memEntry{
		value:     append([]byte(nil), value...),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Delete removes a key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len returns the number of entries, expired ones included until the next sweep.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the sweeper.
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// evictLocked drops expired entries, or the one expiring first if none are.
func (c *MemoryCache) evictLocked() {
	if c.dropExpiredLocked() > 0 {
		return
	}
	var victim string
	var soonest time.Time
	for k, e := range c.entries {
		if victim == "" || e.expiresAt.Before(soonest) {
			victim, soonest = k, e.expiresAt
		}
	}
	delete(c.entries, victim)
}

func (c *MemoryCache) dropExpiredLocked() int {
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *MemoryCache) sweep() {
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.dropExpiredLocked()
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}
