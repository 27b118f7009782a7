// Package cache memoizes expensive retrieval and enhancement results within
// a TTL window. Keys are structured — every parameter that affects a result
// is part of the key, so different call sites can never collide.
package cache

import (
	"sort"
	"sync"
	"time"
)

// Stage names the pipeline step that produced a cached value.
type Stage string

const (
	StageEnhance  Stage = "enhance"
	StageRetrieve Stage = "retrieve"
	StagePrompt   Stage = "prompt"
)

// Key identifies one cached result. Comparable by value. History is a digest
// of the conversation turns that shaped the result, empty for single-shot
// calls, so multi-turn retrievals never collide with history-free ones.
type Key struct {
	Stage           Stage
	Query           string
	History         string
	TopK            int
	InitialK        int
	SimThreshold    float64
	RerankThreshold float64
	IsImage         bool
}

type entry struct {
	value any
	ts    time.Time
}

// Cache is a TTL- and size-bounded memo table. Expired entries are deleted
// lazily on access; when the entry count exceeds the maximum, the oldest
// ~10% are evicted in one pass.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[Key]entry
	now     func() time.Time
}

// New creates a cache with the given TTL and maximum entry count.
func New(ttl time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &Cache{
		ttl:     ttl,
		max:     maxEntries,
		entries: make(map[Key]entry),
		now:     time.Now,
	}
}

// Get returns the cached value for k if present and fresh. A stale entry is
// removed on the spot.
func (c *Cache) Get(k Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.ts) >= c.ttl {
		delete(c.entries, k)
		return nil, false
	}
	return e.value, true
}

// Put stores v under k, evicting the oldest batch first if the cache is full.
func (c *Cache) Put(k Key, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[k]; !exists && len(c.entries) >= c.max {
		c.evictOldestLocked()
	}
	c.entries[k] = entry{value: v, ts: c.now()}
}

// DropStage removes every entry produced by the given stage. Store mutations
// call this so retrieval results never outlive the data they were derived
// from.
func (c *Cache) DropStage(stage Stage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.Stage == stage {
			delete(c.entries, k)
		}
	}
}

// Len returns the current entry count, stale entries included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldestLocked removes the oldest ~10% of entries (at least one) by
// insertion timestamp in a single pass, amortizing cleanup cost.
func (c *Cache) evictOldestLocked() {
	n := len(c.entries) / 10
	if n < 1 {
		n = 1
	}
	type aged struct {
		key Key
		ts  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, ts: e.ts})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts.Before(all[j].ts) })
	for i := 0; i < n && i < len(all); i++ {
		delete(c.entries, all[i].key)
	}
}
