// Package cache implements the two-level (hot/warm) object cache: a
// bounded LRU of frequently accessed items backed by a larger LRU of
// recently accessed ones, with second-touch promotion and predictive
// prefetch.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Config sizes the two tiers.
type Config struct {
	HotCapacity  int
	WarmCapacity int
}

// DefaultConfig returns reasonable tier sizes.
func DefaultConfig() Config {
	return Config{HotCapacity: 1000, WarmCapacity: 10000}
}

type entry struct {
	key   string
	value interface{}
}

// tier is a plain LRU: container/list for ordering, a map for O(1) lookup.
type tier struct {
	capacity int
	list     *list.List
	items    map[string]*list.Element
}

func newTier(capacity int) *tier {
	return &tier{capacity: capacity, list: list.New(), items: make(map[string]*list.Element)}
}

func (t *tier) get(key string) (interface{}, bool) {
	elem, ok := t.items[key]
	if !ok {
		return nil, false
	}
	t.list.MoveToFront(elem)
	return elem.Value.(*entry).value, true
}

// put returns the evicted (key, value) when this insert pushed the tier
// over capacity, so the caller can demote it to the next tier down.
func (t *tier) put(key string, value interface{}) (evictedKey string, evictedVal interface{}, evicted bool) {
	if elem, ok := t.items[key]; ok {
		elem.Value.(*entry).value = value
		t.list.MoveToFront(elem)
		return "", nil, false
	}
	elem := t.list.PushFront(&entry{key: key, value: value})
	t.items[key] = elem

	if t.list.Len() <= t.capacity {
		return "", nil, false
	}
	back := t.list.Back()
	t.list.Remove(back)
	ev := back.Value.(*entry)
	delete(t.items, ev.key)
	return ev.key, ev.value, true
}

func (t *tier) remove(key string) bool {
	elem, ok := t.items[key]
	if !ok {
		return false
	}
	t.list.Remove(elem)
	delete(t.items, key)
	return true
}

func (t *tier) clear() {
	t.list.Init()
	t.items = make(map[string]*list.Element)
}

// Cache is the two-level hot/warm cache. Both levels store decoded
// objects; under memory pressure hot evicts to warm, and warm eviction
// simply drops the item (the storage backend is the source of truth).
type Cache struct {
	mu   sync.Mutex
	hot  *tier
	warm *tier

	touched map[string]struct{} // warm-tier keys seen once; a second touch promotes to hot

	prefetch Prefetcher

	hits   uint64
	misses uint64
}

// New creates a cache with the given tier sizes and prefetch policy.
// prefetch may be nil to disable predictive prefetch.
func New(cfg Config, prefetch Prefetcher) *Cache {
	if cfg.HotCapacity == 0 {
		cfg = DefaultConfig()
	}
	return &Cache{
		hot:      newTier(cfg.HotCapacity),
		warm:     newTier(cfg.WarmCapacity),
		touched:  make(map[string]struct{}),
		prefetch: prefetch,
	}
}

// Get looks up key, checking hot then warm. A warm hit that has already
// been touched once is promoted to hot (second-touch promotion). A miss
// notifies the prefetcher.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.hot.get(key); ok {
		atomic.AddUint64(&c.hits, 1)
		return v, true
	}
	if v, ok := c.warm.get(key); ok {
		atomic.AddUint64(&c.hits, 1)
		if _, seen := c.touched[key]; seen {
			c.warm.remove(key)
			delete(c.touched, key)
			c.promoteToHotLocked(key, v)
		} else {
			c.touched[key] = struct{}{}
		}
		return v, true
	}

	atomic.AddUint64(&c.misses, 1)
	if c.prefetch != nil {
		c.prefetch.OnMiss(key)
	}
	return nil, false
}

// Put inserts key/value into the hot tier. An item evicted from hot
// demotes into warm rather than being dropped outright.
func (c *Cache) Put(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.promoteToHotLocked(key, value)
}

func (c *Cache) promoteToHotLocked(key string, value interface{}) {
	evKey, evVal, evicted := c.hot.put(key, value)
	if evicted {
		c.warm.put(evKey, evVal)
	}
}

// Remove drops key from both tiers.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hot.remove(key)
	c.warm.remove(key)
	delete(c.touched, key)
}

// Clear empties both tiers.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hot.clear()
	c.warm.clear()
	c.touched = make(map[string]struct{})
}

// Stats reports hit/miss counters and tier occupancy.
type Stats struct {
	HotSize, WarmSize int
	Hits, Misses      uint64
	HitRate           float64
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	hotSize, warmSize := c.hot.list.Len(), c.warm.list.Len()
	c.mu.Unlock()

	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return Stats{HotSize: hotSize, WarmSize: warmSize, Hits: hits, Misses: misses, HitRate: rate}
}
