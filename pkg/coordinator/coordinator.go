// Package coordinator fans a single query out across the partitions managed
// by pkg/partition, bounding concurrency and wall-clock time, then merges
// the per-partition results back into one globally ranked list.
package coordinator

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nounverb/nounverb/pkg/hnsw"
	"github.com/nounverb/nounverb/pkg/partition"
)

// Strategy selects how many partitions are probed per query.
type Strategy int

const (
	// Exhaustive probes every partition.
	Exhaustive Strategy = iota
	// TopT probes a fixed number of the highest-ranked partitions.
	TopT
	// Adaptive probes the smallest prefix of ranked partitions whose
	// centroid distance hasn't yet blown past the best one.
	Adaptive
)

// Config configures the coordinator's fan-out behaviour, per §4.5.
type Config struct {
	Strategy              Strategy
	T                      int     // TopT partition count
	MaxPartitions          int     // Adaptive upper bound
	AdaptiveMultiplier     float64 // Adaptive: stop once dist > multiplier * firstDist
	MaxConcurrentSearches  int
	Overfetch              float64 // default 1.5
	TargetLatencyMS        float64 // global timeout = 5 * this
}

// DefaultConfig returns the spec's defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:              Exhaustive,
		T:                      4,
		MaxPartitions:          8,
		AdaptiveMultiplier:     2.0,
		MaxConcurrentSearches:  4,
		Overfetch:              1.5,
		TargetLatencyMS:        50,
	}
}

// Coordinator binds a partition manager with a fan-out strategy.
type Coordinator struct {
	mgr *partition.Manager
	cfg Config
}

// New creates a coordinator over mgr.
func New(mgr *partition.Manager, cfg Config) *Coordinator {
	if cfg.MaxConcurrentSearches == 0 {
		cfg = DefaultConfig()
	}
	return &Coordinator{mgr: mgr, cfg: cfg}
}

// Search ranks partitions, probes a strategy-selected subset of them in
// parallel bounded by MaxConcurrentSearches, and merges the results. It
// never returns a context.DeadlineExceeded/Canceled error to the caller for
// partitions that simply ran out of time; those partitions are silently
// dropped from the merge per §4.5 step 4. Only a caller-supplied ctx
// cancellation before the search even starts is surfaced as an error.
func (c *Coordinator) Search(ctx context.Context, query []float32, k int) ([]hnsw.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := c.mgr.RankedPartitions(query)
	targets := c.selectPartitions(ranked, query)

	timeout := time.Duration(5*c.cfg.TargetLatencyMS) * time.Millisecond
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	kPrime := int(math.Ceil(float64(k) * c.cfg.Overfetch))
	if kPrime < k {
		kPrime = k
	}

	results := make([][]hnsw.Result, len(targets))
	g, gctx := errgroup.WithContext(cctx)
	g.SetLimit(c.cfg.MaxConcurrentSearches)

	for i, p := range targets {
		i, p := i, p
		g.Go(func() error {
			idx := c.mgr.Partition(p)
			res, err := idx.Search(query, kPrime)
			if err != nil {
				return nil // a single partition's failure doesn't fail the whole query
			}
			select {
			case <-gctx.Done():
				return nil // dropped: ran out of the global timeout
			default:
				results[i] = res
				return nil
			}
		})
	}
	_ = g.Wait() // errors are swallowed per-partition above; nothing to propagate

	return mergeDedupeTruncate(results, k), nil
}

// selectPartitions applies the configured strategy over an already-ranked
// partition index list.
func (c *Coordinator) selectPartitions(ranked []int, query []float32) []int {
	switch c.cfg.Strategy {
	case TopT:
		t := c.cfg.T
		if t > len(ranked) {
			t = len(ranked)
		}
		return ranked[:t]
	case Adaptive:
		return c.adaptiveSelect(ranked, query)
	default:
		return ranked
	}
}

// adaptiveSelect grows the probed set while the next partition's centroid
// distance stays within AdaptiveMultiplier of the closest one, capped at
// MaxPartitions.
func (c *Coordinator) adaptiveSelect(ranked []int, query []float32) []int {
	if len(ranked) == 0 {
		return ranked
	}
	max := c.cfg.MaxPartitions
	if max <= 0 || max > len(ranked) {
		max = len(ranked)
	}

	firstDist, ok := c.mgr.CentroidDistance(ranked[0], query)
	if !ok {
		// no centroids trained (e.g. Hash strategy): adaptive degrades to exhaustive.
		return ranked[:max]
	}

	out := []int{ranked[0]}
	for _, p := range ranked[1:] {
		if len(out) >= max {
			break
		}
		d, ok := c.mgr.CentroidDistance(p, query)
		if !ok || d > firstDist*c.cfg.AdaptiveMultiplier {
			break
		}
		out = append(out, p)
	}
	return out
}

// mergeDedupeTruncate combines per-partition result sets, deduping by id
// (kept defensively: the same id should only ever live in one partition),
// sorting by ascending distance, and truncating to k.
func mergeDedupeTruncate(perPartition [][]hnsw.Result, k int) []hnsw.Result {
	seen := make(map[string]bool)
	merged := make([]hnsw.Result, 0, k*2)
	for _, res := range perPartition {
		for _, r := range res {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			merged = append(merged, r)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Distance != merged[j].Distance {
			return merged[i].Distance < merged[j].Distance
		}
		return merged[i].ID < merged[j].ID
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged
}
