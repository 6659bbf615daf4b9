// Package partition splits a single large index into P sub-indices so that
// no one graph grows past a configured size, and routes inserts and queries
// to the right subset.
package partition

import (
	"hash/fnv"
	"math"
	"sort"
	"sync"

	"github.com/nounverb/nounverb/pkg/hnsw"
	"gonum.org/v1/gonum/floats"
)

// Strategy selects how vectors are assigned to partitions.
type Strategy int

const (
	Hash Strategy = iota
	Semantic
	Hybrid
)

// Config configures the partition manager.
type Config struct {
	Strategy           Strategy
	MaxNodesPerPartition int // default 50_000
	SemanticClusters   int   // k for the centroid set, Semantic/Hybrid only
	IndexConfig        hnsw.Config
	Dimensions         int
}

// DefaultConfig returns the spec's defaults.
func DefaultConfig(dimensions int) Config {
	return Config{
		Strategy:             Hash,
		MaxNodesPerPartition: 50_000,
		SemanticClusters:     8,
		IndexConfig:          hnsw.DefaultConfig(),
		Dimensions:           dimensions,
	}
}

// Manager owns P sub-indices and routes inserts/queries between them.
// Partition ids are opaque to callers; noun/verb ids stay globally unique
// across partitions.
type Manager struct {
	mu         sync.RWMutex
	cfg        Config
	partitions []*hnsw.Index
	centroids  [][]float32 // len == len(partitions)-1 for Hybrid (last is catch-all)
	idToPart   map[string]int
}

// New creates a manager with a single initial partition; additional
// partitions are added on demand as MaxNodesPerPartition is reached.
func New(cfg Config) *Manager {
	if cfg.MaxNodesPerPartition == 0 {
		cfg = DefaultConfig(cfg.Dimensions)
	}
	m := &Manager{
		cfg:      cfg,
		idToPart: make(map[string]int),
	}
	m.partitions = append(m.partitions, hnsw.New(cfg.Dimensions, cfg.IndexConfig))
	return m
}

// PartitionCount returns the current number of sub-indices.
func (m *Manager) PartitionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.partitions)
}

// Add routes id/vec to a partition and inserts it there.
func (m *Manager) Add(id string, vec []float32) error {
	m.mu.Lock()
	p := m.routeForInsertLocked(id, vec)
	idx := m.partitions[p]
	m.idToPart[id] = p
	m.mu.Unlock()

	return idx.Add(id, vec)
}

// Delete removes id from whichever partition holds it. Returns false if the
// id is unknown.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	p, ok := m.idToPart[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.idToPart, id)
	idx := m.partitions[p]
	m.mu.Unlock()

	return idx.Delete(id)
}

// routeForInsertLocked picks a partition index for id/vec, growing the
// partition set when the chosen one would exceed MaxNodesPerPartition.
// Caller holds m.mu for writing.
func (m *Manager) routeForInsertLocked(id string, vec []float32) int {
	var p int
	switch m.cfg.Strategy {
	case Semantic:
		p = m.nearestCentroidLocked(vec)
	case Hybrid:
		if len(m.centroids) == 0 {
			p = len(m.partitions) - 1 // catch-all until centroids are trained
		} else {
			p = m.nearestCentroidLocked(vec)
		}
	default:
		p = m.hashPartitionLocked(id)
	}

	if m.partitions[p].Size() >= m.cfg.MaxNodesPerPartition {
		m.partitions = append(m.partitions, hnsw.New(m.cfg.Dimensions, m.cfg.IndexConfig))
		p = len(m.partitions) - 1
	}
	return p
}

// hashPartitionLocked implements partition = hash(id) mod P.
func (m *Manager) hashPartitionLocked(id string) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32()) % len(m.partitions)
}

// nearestCentroidLocked returns the index of the partition whose centroid is
// closest to vec. Falls back to partition 0 if centroids have not been
// trained yet.
func (m *Manager) nearestCentroidLocked(vec []float32) int {
	if len(m.centroids) == 0 {
		return 0
	}
	best, bestDist := 0, math.MaxFloat64
	for i, c := range m.centroids {
		d := euclideanSq(vec, c)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// TrainCentroids fits SemanticClusters centroids over sample via k-means,
// enabling the Semantic/Hybrid routing strategies. For Hybrid, the last
// partition remains the catch-all and is never a centroid target.
func (m *Manager) TrainCentroids(sample [][]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.cfg.SemanticClusters
	if k > len(sample) {
		k = len(sample)
	}
	if k < 1 {
		return
	}
	m.centroids = kmeans(sample, k, m.cfg.Dimensions)

	for len(m.partitions) < len(m.centroids) {
		m.partitions = append(m.partitions, hnsw.New(m.cfg.Dimensions, m.cfg.IndexConfig))
	}
	if m.cfg.Strategy == Hybrid {
		m.partitions = append(m.partitions, hnsw.New(m.cfg.Dimensions, m.cfg.IndexConfig))
	}
}

// RankedPartitions returns partition indices ordered by predicted relevance
// to query: ascending centroid distance for Semantic/Hybrid, or all indices
// in an arbitrary-but-stable order for Hash (where every partition ranks
// equally per §4.5 step 1).
func (m *Manager) RankedPartitions(query []float32) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.partitions)
	ranked := make([]int, n)
	for i := range ranked {
		ranked[i] = i
	}

	if m.cfg.Strategy == Hash || len(m.centroids) == 0 {
		return ranked
	}

	type scored struct {
		idx  int
		dist float64
	}
	scoredList := make([]scored, 0, n)
	for i := range ranked {
		if i < len(m.centroids) {
			scoredList = append(scoredList, scored{idx: i, dist: euclideanSq(query, m.centroids[i])})
		} else {
			// catch-all partition in Hybrid: rank last, arbitrarily far.
			scoredList = append(scoredList, scored{idx: i, dist: math.MaxFloat64})
		}
	}
	sort.Slice(scoredList, func(a, b int) bool { return scoredList[a].dist < scoredList[b].dist })

	out := make([]int, n)
	for i, s := range scoredList {
		out[i] = s.idx
	}
	return out
}

// CentroidDistance returns the squared euclidean distance from query to
// partition p's centroid, and false if no centroid exists for p (Hash
// strategy, or Hybrid's catch-all partition).
func (m *Manager) CentroidDistance(p int, query []float32) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p < 0 || p >= len(m.centroids) {
		return 0, false
	}
	return euclideanSq(query, m.centroids[p]), true
}

// Partition returns the sub-index at position p.
func (m *Manager) Partition(p int) *hnsw.Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.partitions[p]
}

func euclideanSq(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}

func kmeans(vecs [][]float32, k, dim int) [][]float32 {
	centroids := make([][]float32, k)
	for c := 0; c < k; c++ {
		centroids[c] = append([]float32{}, vecs[c*len(vecs)/k]...)
	}

	assign := make([]int, len(vecs))
	for iter := 0; iter < 20; iter++ {
		changed := false
		for i, v := range vecs {
			best, bestDist := 0, math.MaxFloat64
			for c, centroid := range centroids {
				d := euclideanSq(v, centroid)
				if d < bestDist {
					bestDist = d
					best = c
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, v := range vecs {
			c := assign[i]
			counts[c]++
			for d := 0; d < dim; d++ {
				sums[c][d] += float64(v[d])
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			mean := make([]float64, dim)
			floats.AddScaled(mean, 1/float64(counts[c]), sums[c])
			newCentroid := make([]float32, dim)
			for d := 0; d < dim; d++ {
				newCentroid[d] = float32(mean[d])
			}
			centroids[c] = newCentroid
		}
		if !changed {
			break
		}
	}
	return centroids
}
