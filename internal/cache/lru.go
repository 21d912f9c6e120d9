// Package cache holds the caches model scores are memoized in: a local LRU,
// Redis, and the two stacked.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Stats is a point-in-time view of a local cache.
type Stats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

type lruEntry struct {
	key     string
	value   []byte
	expires time.Time // zero means no expiry
}

func (e *lruEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// LRUCache is a bounded in-process cache. Entries past their TTL read as
// misses and are dropped on access.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	recency  *list.List // front is most recently used
	stats    Stats
	now      func() time.Time
}

// NewLRUCache returns an LRU holding at most capacity entries.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LRUCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		recency:  list.New(),
		now:      time.Now,
	}
}

func (c *LRUCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if ok && el.Value.(*lruEntry).expired(c.now()) {
		c.drop(el)
		ok = false
	}
	if !ok {
		c.stats.Misses++
		return nil, nil
	}
	c.recency.MoveToFront(el)
	c.stats.Hits++
	return el.Value.(*lruEntry).value, nil
}

// Set stores value for ttl. A ttl of zero or less keeps the entry until it
// is evicted.
func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*lruEntry)
		e.value, e.expires = value, expires
		c.recency.MoveToFront(el)
		return nil
	}

	c.entries[key] = c.recency.PushFront(&lruEntry{key: key, value: value, expires: expires})
	for c.recency.Len() > c.capacity {
		c.drop(c.recency.Back())
		c.stats.Evictions++
	}
	return nil
}

func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.drop(el)
	}
	return nil
}

func (c *LRUCache) Ping(context.Context) error { return nil }

// Close empties the cache.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.recency.Init()
	return nil
}

func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.recency.Len()
	s.Capacity = c.capacity
	return s
}

func (c *LRUCache) drop(el *list.Element) {
	c.recency.Remove(el)
	delete(c.entries, el.Value.(*lruEntry).key)
}
