package streaming

import (
	"sync"
	"time"
)

// correlationCache memoizes computed correlations per pair key.
// A pair's cached value depends on both entities' global variance, not
// just the pair covariance, so entries are indexed per entity and an
// update to either entity invalidates every cached pair touching it.
// The TTL is only a staleness backstop.
type correlationCache struct {
	mu       sync.RWMutex
	entries  map[string]cacheEntry
	byEntity map[string]map[string]struct{}
	ttl      time.Duration
}

type cacheEntry struct {
	value      float64
	computedAt time.Time
	entityA    string
	entityB    string
}

func newCorrelationCache(ttl time.Duration) *correlationCache {
	return &correlationCache{
		entries:  make(map[string]cacheEntry),
		byEntity: make(map[string]map[string]struct{}),
		ttl:      ttl,
	}
}

func (c *correlationCache) get(key string) (float64, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return 0, false
	}
	if time.Since(entry.computedAt) > c.ttl {
		// Stale entries are dropped silently and recomputed.
		c.mu.Lock()
		c.removeLocked(key)
		c.mu.Unlock()
		return 0, false
	}
	return entry.value, true
}

func (c *correlationCache) put(key, entityA, entityB string, value float64) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{
		value:      value,
		computedAt: time.Now(),
		entityA:    entityA,
		entityB:    entityB,
	}
	c.indexLocked(entityA, key)
	c.indexLocked(entityB, key)
	c.mu.Unlock()
}

// invalidateEntity drops every cached pair involving the entity.
func (c *correlationCache) invalidateEntity(entityID string) {
	c.mu.Lock()
	for key := range c.byEntity[entityID] {
		c.removeLocked(key)
	}
	c.mu.Unlock()
}

func (c *correlationCache) indexLocked(entityID, key string) {
	keys, exists := c.byEntity[entityID]
	if !exists {
		keys = make(map[string]struct{})
		c.byEntity[entityID] = keys
	}
	keys[key] = struct{}{}
}

func (c *correlationCache) removeLocked(key string) {
	entry, exists := c.entries[key]
	if !exists {
		return
	}
	delete(c.entries, key)
	c.unindexLocked(entry.entityA, key)
	c.unindexLocked(entry.entityB, key)
}

func (c *correlationCache) unindexLocked(entityID, key string) {
	keys, exists := c.byEntity[entityID]
	if !exists {
		return
	}
	delete(keys, key)
	if len(keys) == 0 {
		delete(c.byEntity, entityID)
	}
}

func (c *correlationCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
