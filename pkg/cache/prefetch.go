package cache

import "sync"

// Prefetcher reacts to a cache miss by enqueueing follow-up fetches. It
// never blocks the requesting query: OnMiss only enqueues work onto an
// internal channel that a background worker drains via the batched
// multi-get the storage backend exposes.
type Prefetcher interface {
	OnMiss(key string)
}

// Fetcher is the batched multi-get the storage backend exposes; the
// prefetcher uses it to pull a whole neighborhood or beam in one round
// trip instead of item-by-item.
type Fetcher func(keys []string) map[string]interface{}

// NeighborFn returns the level-0 adjacency ids for a noun, used by the
// Neighborhood and Hybrid policies.
type NeighborFn func(id string) []string

const prefetchQueueSize = 256

// neighborhoodPrefetcher enqueues a miss's level-0 neighbors for fetch.
type neighborhoodPrefetcher struct {
	neighbors NeighborFn
	fetch     Fetcher
	cache     *Cache
	queue     chan string
}

// NewNeighborhoodPrefetcher implements the *Neighborhood* policy: on a
// cache miss for noun X, enqueue prefetch of X's level-0 adjacency.
func NewNeighborhoodPrefetcher(cache *Cache, neighbors NeighborFn, fetch Fetcher) Prefetcher {
	p := &neighborhoodPrefetcher{neighbors: neighbors, fetch: fetch, cache: cache, queue: make(chan string, prefetchQueueSize)}
	go p.run()
	return p
}

func (p *neighborhoodPrefetcher) OnMiss(key string) {
	select {
	case p.queue <- key:
	default: // queue full: drop rather than block the requesting query
	}
}

func (p *neighborhoodPrefetcher) run() {
	for key := range p.queue {
		ids := p.neighbors(key)
		if len(ids) == 0 {
			continue
		}
		for id, v := range p.fetch(ids) {
			p.cache.Put(id, v)
		}
	}
}

// beam is a recent query's sequence of visited node ids, most recent last.
type beam struct {
	ids []string
}

// queryPathPrefetcher implements the *Query-path* policy: it remembers the
// last N beams, and when a new query shares a prefix with one of them,
// prefetches that beam's downstream nodes.
type queryPathPrefetcher struct {
	mu        sync.Mutex
	recent    []beam
	maxBeams  int
	fetch     Fetcher
	cache     *Cache
	queue     chan []string
}

// NewQueryPathPrefetcher creates the query-path policy's prefetcher.
// maxBeams bounds how many recent query beams are remembered.
func NewQueryPathPrefetcher(cache *Cache, maxBeams int, fetch Fetcher) *QueryPathPrefetcher {
	if maxBeams <= 0 {
		maxBeams = 32
	}
	p := &queryPathPrefetcher{maxBeams: maxBeams, fetch: fetch, cache: cache, queue: make(chan []string, prefetchQueueSize)}
	go p.run()
	return &QueryPathPrefetcher{inner: p}
}

// QueryPathPrefetcher wraps the internal policy state with the public
// RecordBeam entry point a search caller uses after each query.
type QueryPathPrefetcher struct {
	inner *queryPathPrefetcher
}

// RecordBeam records the ids visited by a just-completed query and, if it
// shares a prefix with a remembered beam, enqueues that beam's downstream
// (unvisited) ids for prefetch.
func (q *QueryPathPrefetcher) RecordBeam(ids []string) {
	q.inner.mu.Lock()
	defer q.inner.mu.Unlock()

	for _, b := range q.inner.recent {
		if shared := commonPrefixLen(b.ids, ids); shared > 0 && shared < len(b.ids) {
			downstream := append([]string{}, b.ids[shared:]...)
			select {
			case q.inner.queue <- downstream:
			default:
			}
		}
	}

	q.inner.recent = append(q.inner.recent, beam{ids: append([]string{}, ids...)})
	if len(q.inner.recent) > q.inner.maxBeams {
		q.inner.recent = q.inner.recent[1:]
	}
}

// OnMiss satisfies Prefetcher; the query-path policy's real trigger is
// RecordBeam, not individual misses, so this is a no-op.
func (q *QueryPathPrefetcher) OnMiss(key string) {}

func (p *queryPathPrefetcher) run() {
	for ids := range p.queue {
		for id, v := range p.fetch(ids) {
			p.cache.Put(id, v)
		}
	}
}

func commonPrefixLen(a, b []string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// HybridPrefetcher runs both the neighborhood and query-path policies,
// with neighborhood given priority: it is checked (and always performed)
// before query-path's beam bookkeeping runs.
type HybridPrefetcher struct {
	neighborhood Prefetcher
	queryPath    *QueryPathPrefetcher
}

// NewHybridPrefetcher implements the *Hybrid* policy.
func NewHybridPrefetcher(cache *Cache, neighbors NeighborFn, maxBeams int, fetch Fetcher) *HybridPrefetcher {
	return &HybridPrefetcher{
		neighborhood: NewNeighborhoodPrefetcher(cache, neighbors, fetch),
		queryPath:    NewQueryPathPrefetcher(cache, maxBeams, fetch),
	}
}

func (h *HybridPrefetcher) OnMiss(key string) { h.neighborhood.OnMiss(key) }

// RecordBeam forwards to the query-path sub-policy.
func (h *HybridPrefetcher) RecordBeam(ids []string) { h.queryPath.RecordBeam(ids) }
