package embed

import (
	"container/list"
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
)

// CachedEmbedder wraps an Embedder with an LRU cache keyed by FNV-1a hash of
// the input text, so repeated lookups for the same text (a common pattern
// when re-embedding a query already seen in a search or AddVerb auto-create)
// skip the underlying provider entirely. Thread-safe.
type CachedEmbedder struct {
	base Embedder

	mu      sync.RWMutex
	cache   map[string]*list.Element
	lru     *list.List
	maxSize int

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	key       string
	embedding []float32
}

// NewCachedEmbedder wraps base with an LRU cache of at most maxSize entries
// (0 defaults to 10000).
func NewCachedEmbedder(base Embedder, maxSize int) *CachedEmbedder {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &CachedEmbedder{
		base:    base,
		cache:   make(map[string]*list.Element, maxSize),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

func hashText(text string) string {
	h := fnv.New64a()
	h.Write([]byte(text))
	return strconv.FormatUint(h.Sum64(), 36)
}

// Embed returns a cached embedding if one exists for text, otherwise calls
// the base embedder and caches the result.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := hashText(text)

	c.mu.RLock()
	if elem, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		atomic.AddUint64(&c.hits, 1)

		c.mu.Lock()
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		c.mu.Unlock()

		return entry.embedding, nil
	}
	c.mu.RUnlock()

	atomic.AddUint64(&c.misses, 1)

	embedding, err := c.base.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).embedding, nil
	}

	for c.lru.Len() >= c.maxSize {
		c.evictOldest()
	}
	entry := &cacheEntry{key: key, embedding: embedding}
	elem := c.lru.PushFront(entry)
	c.cache[key] = elem

	return embedding, nil
}

// EmbedBatch checks the cache per-text and only sends cache misses to the
// base embedder.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var misses []int
	var missTexts []string

	for i, text := range texts {
		key := hashText(text)

		c.mu.RLock()
		if elem, ok := c.cache[key]; ok {
			entry := elem.Value.(*cacheEntry)
			results[i] = entry.embedding
			atomic.AddUint64(&c.hits, 1)
			c.mu.RUnlock()

			c.mu.Lock()
			c.lru.MoveToFront(elem)
			c.mu.Unlock()
		} else {
			c.mu.RUnlock()
			atomic.AddUint64(&c.misses, 1)
			misses = append(misses, i)
			missTexts = append(missTexts, text)
		}
	}

	if len(missTexts) > 0 {
		embeddings, err := c.base.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		for j, embedding := range embeddings {
			i := misses[j]
			results[i] = embedding

			key := hashText(missTexts[j])
			if _, ok := c.cache[key]; !ok {
				for c.lru.Len() >= c.maxSize {
					c.evictOldest()
				}
				entry := &cacheEntry{key: key, embedding: embedding}
				elem := c.lru.PushFront(entry)
				c.cache[key] = elem
			}
		}
		c.mu.Unlock()
	}

	return results, nil
}

// Dimensions returns the embedding vector dimension.
func (c *CachedEmbedder) Dimensions() int { return c.base.Dimensions() }

// Model returns the model name.
func (c *CachedEmbedder) Model() string { return c.base.Model() }

// Stats returns cache hit/miss counters and current size.
func (c *CachedEmbedder) Stats() CacheStats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)

	c.mu.RLock()
	size := c.lru.Len()
	c.mu.RUnlock()

	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return CacheStats{
		Size:    size,
		MaxSize: c.maxSize,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
	}
}

// CacheStats holds cache performance statistics.
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Clear removes all cached embeddings.
func (c *CachedEmbedder) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*list.Element, c.maxSize)
	c.lru.Init()
}

// evictOldest removes the least recently used entry. Caller holds c.mu.
func (c *CachedEmbedder) evictOldest() {
	elem := c.lru.Back()
	if elem != nil {
		entry := elem.Value.(*cacheEntry)
		delete(c.cache, entry.key)
		c.lru.Remove(elem)
	}
}
