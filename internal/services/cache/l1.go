package cache

import (
	"sync"
	"time"
)

// l1Entry is one cached value with its expiry and access clock.
type l1Entry struct {
	value      interface{}
	expiresAt  time.Time
	lastAccess time.Time
}

// L1Cache is a bounded in-process TTL cache. When full, the entry with the
// oldest access time is evicted.
type L1Cache struct {
	mu         sync.Mutex
	entries    map[string]*l1Entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// NewL1Cache creates the in-process tier.
func NewL1Cache(maxEntries int, ttl time.Duration) *L1Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &L1Cache{
		entries:    make(map[string]*l1Entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get returns the cached value if present and unexpired.
func (c *L1Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	now := c.now()
	if now.After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	entry.lastAccess = now
	return entry.value, true
}

// Set stores a value, evicting the least recently accessed entry when full.
func (c *L1Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = &l1Entry{
		value:      value,
		expiresAt:  now.Add(c.ttl),
		lastAccess: now,
	}
}

// Delete removes a key.
func (c *L1Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the current entry count.
func (c *L1Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the entry with the oldest access time. Caller holds
// the lock.
func (c *L1Cache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.lastAccess.Before(oldest) {
			oldestKey = key
			oldest = entry.lastAccess
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
