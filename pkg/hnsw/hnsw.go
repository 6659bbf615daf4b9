// Package hnsw implements the base hierarchical navigable small-world index:
// insert, search and delete over a layered proximity graph, with heuristic
// neighbor selection for diversity-preserving long-range links.
package hnsw

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/nounverb/nounverb/pkg/vector"
	"github.com/nounverb/nounverb/pkg/verrors"
)

// Config holds the graph-shape parameters of §4.2.
type Config struct {
	M              int // max neighbors per node per layer above 0
	MMax0          int // max neighbors per node at layer 0, default 2*M
	EfConstruction int
	EfSearch       int
	LevelMultiplier float64 // m_L = 1/ln(M)
	Kernel         vector.Kernel
}

// DefaultConfig returns the spec's default parameters for M=16.
func DefaultConfig() Config {
	return Config{
		M:               16,
		MMax0:           32,
		EfConstruction:  200,
		EfSearch:        50,
		LevelMultiplier: 1.0 / math.Log(16.0),
		Kernel:          vector.Euclidean,
	}
}

// Result is one hit from Search, sorted by ascending distance.
type Result struct {
	ID       string
	Distance float32
}

type node struct {
	mu        sync.RWMutex
	id        string
	vector    []float32
	level     int
	neighbors [][]string // neighbors[l] = ids at layer l
}

// Index is a single HNSW graph over vectors of a fixed dimension. The zero
// value is not usable; construct with New.
type Index struct {
	mu         sync.RWMutex // guards entryPoint, maxLevel, and the nodes map itself
	cfg        Config
	dimensions int
	nodes      map[string]*node
	entryPoint string
	maxLevel   int

	// decode reconstructs an approximate vector for a node whose full
	// precision copy was dropped after quantizer training. Set once at
	// construction by Optimized; nil for a plain Index. Caller holds idx.mu.
	decode func(id string) []float32
}

// New creates an empty index for vectors of the given dimension.
func New(dimensions int, cfg Config) *Index {
	if cfg.M == 0 {
		cfg = DefaultConfig()
	}
	if cfg.MMax0 == 0 {
		cfg.MMax0 = 2 * cfg.M
	}
	return &Index{
		cfg:        cfg,
		dimensions: dimensions,
		nodes:      make(map[string]*node),
		maxLevel:   0,
	}
}

// Kernel returns the distance kernel this index was built with.
func (idx *Index) Kernel() vector.Kernel { return idx.cfg.Kernel }

// Dimensions returns the fixed vector length this index accepts.
func (idx *Index) Dimensions() int { return idx.dimensions }

func (idx *Index) dist(a, b []float32) float32 {
	return vector.Distance(idx.cfg.Kernel, a, b)
}

// vecOf returns id's retained vector, or its quantized reconstruction if the
// full-precision copy was dropped after training. Caller holds idx.mu.
func (idx *Index) vecOf(id string) []float32 {
	n := idx.nodes[id]
	if n == nil {
		return nil
	}
	if n.vector != nil {
		return n.vector
	}
	if idx.decode != nil {
		return idx.decode(id)
	}
	return nil
}

// distTo computes the distance from query to id, preferring estimator (an
// asymmetric-distance-table lookup against quantized codes) when it has an
// answer for id, and falling back to vecOf otherwise. estimator is nil for a
// plain Index or an untrained Optimized.
func (idx *Index) distTo(query []float32, id string, estimator func(string) (float32, bool)) float32 {
	if estimator != nil {
		if d, ok := estimator(id); ok {
			return d
		}
	}
	return idx.dist(query, idx.vecOf(id))
}

// Size returns the number of nodes currently in the index.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}

// Add inserts vec under id. A re-insert of an existing id first removes the
// old node (vectors are immutable per the data model; callers wanting to
// change a vector must delete-then-add under a new id or accept the
// replace-in-place semantics here).
func (idx *Index) Add(id string, vec []float32) error {
	if len(vec) != idx.dimensions {
		return verrors.DimensionMismatch(idx.dimensions, len(vec))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.nodes[id]; exists {
		idx.removeLocked(id)
	}

	level := idx.randomLevel()
	n := &node{
		id:        id,
		vector:    vec,
		level:     level,
		neighbors: make([][]string, level+1),
	}
	idx.nodes[id] = n

	if idx.entryPoint == "" {
		idx.entryPoint = id
		idx.maxLevel = level
		return nil
	}

	ep := idx.entryPoint
	epLevel := idx.maxLevel

	for l := epLevel; l > level; l-- {
		ep = idx.greedyDescend(vec, ep, l, nil)
	}

	for l := min(level, epLevel); l >= 0; l-- {
		capacity := idx.capFor(l)
		candidates := idx.searchLayer(vec, ep, idx.cfg.EfConstruction, l, nil)
		selected := idx.selectNeighborsHeuristic(vec, candidates, capacity)
		n.neighbors[l] = selected

		for _, nbrID := range selected {
			idx.linkLocked(nbrID, id, l)
		}

		if len(candidates) > 0 {
			ep = candidates[0].id
		}
	}

	if level > idx.maxLevel {
		idx.entryPoint = id
		idx.maxLevel = level
	}

	return nil
}

// linkLocked adds id as a neighbor of nbrID at layer l, pruning nbrID's
// neighbor list back down to capacity via the heuristic selection if it now
// overflows. Caller holds idx.mu for writing.
func (idx *Index) linkLocked(nbrID, id string, l int) {
	nbr, ok := idx.nodes[nbrID]
	if !ok || len(nbr.neighbors) <= l {
		return
	}
	nbr.mu.Lock()
	defer nbr.mu.Unlock()

	cap := idx.capFor(l)
	merged := append(append([]string{}, nbr.neighbors[l]...), id)
	if len(merged) <= cap {
		nbr.neighbors[l] = merged
		return
	}

	nbrVec := idx.vecOf(nbrID)
	cands := make([]candidate, 0, len(merged))
	for _, c := range merged {
		if idx.nodes[c] == nil {
			continue
		}
		cands = append(cands, candidate{id: c, dist: idx.dist(nbrVec, idx.vecOf(c))})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].id < cands[j].id
	})
	nbr.neighbors[l] = idx.heuristicFromSorted(nbrVec, cands, cap)
}

func (idx *Index) capFor(level int) int {
	if level == 0 {
		return idx.cfg.MMax0
	}
	return idx.cfg.M
}

// Search returns the k nearest neighbors to query, ascending by distance,
// ties broken by identifier. Returns an empty slice (not an error) on an
// empty index.
func (idx *Index) Search(query []float32, k int) ([]Result, error) {
	return idx.searchWithEstimator(query, k, nil)
}

// searchWithEstimator is Search with an optional per-query distance
// estimator consulted for any node whose full-precision vector has been
// dropped (see distTo). A plain Index calls this with a nil estimator.
func (idx *Index) searchWithEstimator(query []float32, k int, estimator func(string) (float32, bool)) ([]Result, error) {
	if len(query) != idx.dimensions {
		return nil, verrors.DimensionMismatch(idx.dimensions, len(query))
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.nodes) == 0 {
		return []Result{}, nil
	}

	ep := idx.entryPoint
	for l := idx.maxLevel; l > 0; l-- {
		ep = idx.greedyDescend(query, ep, l, estimator)
	}

	ef := k
	if idx.cfg.EfSearch > ef {
		ef = idx.cfg.EfSearch
	}
	candidates := idx.searchLayer(query, ep, ef, 0, estimator)

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].id < candidates[j].id
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = Result{ID: c.id, Distance: c.dist}
	}
	return out, nil
}

// Delete removes id from the index, repairing back-pointers from its
// neighbors. Returns false if id was not present. If id was the entry
// point, a replacement at the current top level is promoted; if the top
// level is now empty, the top level is decremented and the search retried
// until a replacement is found or the index is empty.
func (idx *Index) Delete(id string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.removeLocked(id)
}

func (idx *Index) removeLocked(id string) bool {
	n, exists := idx.nodes[id]
	if !exists {
		return false
	}

	for l := 0; l <= n.level; l++ {
		for _, nbrID := range n.neighbors[l] {
			nbr, ok := idx.nodes[nbrID]
			if !ok || len(nbr.neighbors) <= l {
				continue
			}
			nbr.mu.Lock()
			kept := nbr.neighbors[l][:0:0]
			for _, x := range nbr.neighbors[l] {
				if x != id {
					kept = append(kept, x)
				}
			}
			nbr.neighbors[l] = kept
			nbr.mu.Unlock()
		}
	}

	delete(idx.nodes, id)

	if idx.entryPoint != id {
		return true
	}

	idx.entryPoint = ""
	idx.maxLevel = 0
	if len(idx.nodes) == 0 {
		return true
	}

	for top := n.level; top >= 0; top-- {
		for nid, nd := range idx.nodes {
			if nd.level >= top {
				idx.entryPoint = nid
				idx.maxLevel = nd.level
				return true
			}
		}
	}

	for nid, nd := range idx.nodes {
		if idx.entryPoint == "" || nd.level > idx.maxLevel {
			idx.entryPoint = nid
			idx.maxLevel = nd.level
		}
	}
	return true
}

func (idx *Index) randomLevel() int {
	r := rand.Float64()
	for r == 0 {
		r = rand.Float64()
	}
	return int(math.Floor(-math.Log(r) * idx.cfg.LevelMultiplier))
}

// greedyDescend walks from entryID toward query at a single layer, beam 1,
// stopping at a local minimum.
func (idx *Index) greedyDescend(query []float32, entryID string, level int, estimator func(string) (float32, bool)) string {
	current := entryID
	currentDist := idx.distTo(query, current, estimator)

	for {
		changed := false
		n := idx.nodes[current]
		n.mu.RLock()
		var neighbors []string
		if len(n.neighbors) > level {
			neighbors = n.neighbors[level]
		}
		n.mu.RUnlock()

		for _, nbrID := range neighbors {
			if idx.nodes[nbrID] == nil {
				continue
			}
			d := idx.distTo(query, nbrID, estimator)
			if d < currentDist {
				current = nbrID
				currentDist = d
				changed = true
			}
		}
		if !changed {
			return current
		}
	}
}

type candidate struct {
	id   string
	dist float32
}

// searchLayer runs a beam search of width ef at the given layer, returning
// up to ef candidates sorted ascending by distance.
func (idx *Index) searchLayer(query []float32, entryID string, ef int, level int, estimator func(string) (float32, bool)) []candidate {
	visited := map[string]bool{entryID: true}

	cands := &minHeap{}
	heap.Init(cands)
	results := &maxHeap{}
	heap.Init(results)

	entryDist := idx.distTo(query, entryID, estimator)
	heap.Push(cands, candidate{id: entryID, dist: entryDist})
	heap.Push(results, candidate{id: entryID, dist: entryDist})

	for cands.Len() > 0 {
		closest := heap.Pop(cands).(candidate)

		if results.Len() >= ef {
			worst := (*results)[0]
			if closest.dist > worst.dist {
				break
			}
		}

		n := idx.nodes[closest.id]
		n.mu.RLock()
		var neighbors []string
		if len(n.neighbors) > level {
			neighbors = n.neighbors[level]
		}
		n.mu.RUnlock()

		for _, nbrID := range neighbors {
			if visited[nbrID] {
				continue
			}
			visited[nbrID] = true
			if idx.nodes[nbrID] == nil {
				continue
			}
			d := idx.distTo(query, nbrID, estimator)

			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(cands, candidate{id: nbrID, dist: d})
				heap.Push(results, candidate{id: nbrID, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candidate)
	}
	return out
}

// selectNeighborsHeuristic implements §4.2's heuristic selection: given
// candidates sorted by distance ascending, accept c into the result iff it
// is closer to the query than to every already-accepted result. This keeps
// diverse long-range links instead of a clustered top-M.
func (idx *Index) selectNeighborsHeuristic(query []float32, candidates []candidate, m int) []string {
	sorted := append([]candidate{}, candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].dist != sorted[j].dist {
			return sorted[i].dist < sorted[j].dist
		}
		return sorted[i].id < sorted[j].id
	})
	return idx.heuristicFromSorted(query, sorted, m)
}

func (idx *Index) heuristicFromSorted(query []float32, sorted []candidate, m int) []string {
	result := make([]candidate, 0, m)
	for _, c := range sorted {
		if len(result) >= m {
			break
		}
		if idx.nodes[c.id] == nil {
			continue
		}
		cVec := idx.vecOf(c.id)
		diverse := true
		for _, r := range result {
			if idx.nodes[r.id] == nil {
				continue
			}
			if idx.dist(cVec, idx.vecOf(r.id)) < c.dist {
				diverse = false
				break
			}
		}
		if diverse {
			result = append(result, c)
		}
	}
	// Backfill from the closest remaining candidates if the heuristic was
	// too strict to fill the budget, matching common HNSW implementations'
	// practice of never under-connecting a fresh node.
	if len(result) < m {
		have := make(map[string]bool, len(result))
		for _, r := range result {
			have[r.id] = true
		}
		for _, c := range sorted {
			if len(result) >= m {
				break
			}
			if !have[c.id] {
				result = append(result, c)
				have[c.id] = true
			}
		}
	}
	ids := make([]string, len(result))
	for i, c := range result {
		ids[i] = c.id
	}
	return ids
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// minHeap pops the smallest distance first (used for the candidate frontier).
type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// maxHeap pops the largest distance first (used to bound the result set to
// the ef closest seen so far).
type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
