package vectordb

import (
	"context"

	"github.com/nounverb/nounverb/pkg/coordinator"
	"github.com/nounverb/nounverb/pkg/hnsw"
	"github.com/nounverb/nounverb/pkg/partition"
	"github.com/nounverb/nounverb/pkg/vector"

	"github.com/nounverb/nounverb/pkg/config"
)

// annIndex is the subset of pkg/hnsw's and pkg/partition+pkg/coordinator's
// surface the façade needs, letting it bind either a single in-process index
// or a partitioned/coordinated one behind the same calls. Exactly one
// variant is active per instance, selected at construction time from
// optimization.* (see DESIGN.md's Open Question #1 decision).
type annIndex interface {
	Add(id string, vec []float32) error
	Delete(id string) bool
	Search(ctx context.Context, query []float32, k int) ([]hnsw.Result, error)
	Size() int
}

// baseOrOptimized is satisfied by both *hnsw.Index and *hnsw.Optimized.
type baseOrOptimized interface {
	Add(id string, vec []float32) error
	Delete(id string) bool
	Search(query []float32, k int) ([]hnsw.Result, error)
	Size() int
}

// singleIndex wraps an unpartitioned index (base or optimized variant).
type singleIndex struct {
	idx baseOrOptimized
}

func (s *singleIndex) Add(id string, vec []float32) error { return s.idx.Add(id, vec) }
func (s *singleIndex) Delete(id string) bool               { return s.idx.Delete(id) }
func (s *singleIndex) Size() int                           { return s.idx.Size() }

func (s *singleIndex) Search(ctx context.Context, query []float32, k int) ([]hnsw.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.idx.Search(query, k)
}

// partitionedIndex wraps the partition manager and distributed search
// coordinator, active when optimization.enable_partitioning is set.
type partitionedIndex struct {
	mgr   *partition.Manager
	coord *coordinator.Coordinator
}

func (p *partitionedIndex) Add(id string, vec []float32) error { return p.mgr.Add(id, vec) }
func (p *partitionedIndex) Delete(id string) bool               { return p.mgr.Delete(id) }

func (p *partitionedIndex) Size() int {
	total := 0
	for i := 0; i < p.mgr.PartitionCount(); i++ {
		total += p.mgr.Partition(i).Size()
	}
	return total
}

func (p *partitionedIndex) Search(ctx context.Context, query []float32, k int) ([]hnsw.Result, error) {
	return p.coord.Search(ctx, query, k)
}

// newIndex builds the active annIndex variant for dimensions, per cfg's
// optimization toggles.
func newIndex(cfg config.Config, dimensions int) annIndex {
	hnswCfg := hnsw.Config{
		M:               cfg.HNSW.M,
		MMax0:           2 * cfg.HNSW.M,
		EfConstruction:  cfg.HNSW.EfConstruction,
		EfSearch:        cfg.HNSW.EfSearch,
		LevelMultiplier: cfg.HNSW.LevelMultiplier,
		Kernel:          vector.Euclidean,
	}

	if cfg.Optimization.EnablePartitioning {
		pcfg := partition.DefaultConfig(dimensions)
		pcfg.IndexConfig = hnswCfg
		if cfg.Partition.MaxNodesPerPartition > 0 {
			pcfg.MaxNodesPerPartition = cfg.Partition.MaxNodesPerPartition
		}
		if cfg.Partition.SemanticClusters > 0 {
			pcfg.SemanticClusters = cfg.Partition.SemanticClusters
		}
		switch cfg.Partition.Strategy {
		case "semantic":
			pcfg.Strategy = partition.Semantic
		case "hybrid":
			pcfg.Strategy = partition.Hybrid
		default:
			pcfg.Strategy = partition.Hash
		}

		mgr := partition.New(pcfg)
		ccfg := coordinator.DefaultConfig()
		if cfg.Optimization.EnableDistributedSearch {
			ccfg.Strategy = coordinator.Adaptive
		} else {
			ccfg.Strategy = coordinator.Exhaustive
		}
		return &partitionedIndex{mgr: mgr, coord: coordinator.New(mgr, ccfg)}
	}

	if cfg.Optimization.EnableQuantization {
		ocfg := hnsw.DefaultOptimizedConfig()
		ocfg.Base = hnswCfg
		return &singleIndex{idx: hnsw.NewOptimized(dimensions, ocfg)}
	}

	return &singleIndex{idx: hnsw.New(dimensions, hnswCfg)}
}
