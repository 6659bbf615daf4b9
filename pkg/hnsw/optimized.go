package hnsw

import (
	"math"
	"sync"
	"time"

	"github.com/nounverb/nounverb/pkg/filter"
	"github.com/nounverb/nounverb/pkg/quantize"
	"github.com/nounverb/nounverb/pkg/verrors"
)

// QuantizationKind selects how the optimized variant compresses vectors.
type QuantizationKind int

const (
	NoQuantization QuantizationKind = iota
	ScalarQuantization
	ProductQuantization
)

// OptimizedConfig configures the three orthogonal optimizations of the
// optimized HNSW variant: quantized storage, a retained "hot" full-precision
// subset, and an adaptive ef_search controller.
type OptimizedConfig struct {
	Base Config

	Quantization  QuantizationKind
	PQSubvectors  int // only used for ProductQuantization
	PQCentroids   int // only used for ProductQuantization

	// HotMinLevel: nodes at level >= HotMinLevel always keep a full
	// precision copy, matching §4.3's "frequently revisited" rationale.
	HotMinLevel int

	// Adaptive ef_search control loop.
	TargetLatencyMS float64
	EfFloor         int
	EfCeiling       int
	AdjustStep      int
}

// DefaultOptimizedConfig returns reasonable defaults layered on DefaultConfig.
func DefaultOptimizedConfig() OptimizedConfig {
	return OptimizedConfig{
		Base:            DefaultConfig(),
		Quantization:    ScalarQuantization,
		PQSubvectors:    8,
		PQCentroids:     256,
		HotMinLevel:     1,
		TargetLatencyMS: 10,
		EfFloor:         16,
		EfCeiling:       400,
		AdjustStep:      8,
	}
}

type scalarQuantizer interface {
	Encode(vec []float32) []byte
	Decode(code []byte) []float32
}

type productQuantizer interface {
	Encode(vec []float32) []byte
	Decode(code []byte) []float32
	BuildDistanceTable(query []float32) *quantize.AsymmetricDistanceTable
}

// Optimized wraps a base Index with quantized storage and an adaptive
// ef_search controller. The base Index still owns the graph topology;
// Optimized intercepts Add/Search to maintain compressed copies and to
// retune ef_search between queries, never mid-query, per §4.3.3.
type Optimized struct {
	mu  sync.Mutex
	idx *Index
	cfg OptimizedConfig

	scalarQ scalarQuantizer
	pqQ     productQuantizer
	trained bool

	fullPrecision map[string][]float32 // hot subset + pre-training fallback
	codes         map[string][]byte

	latency  *filter.Kalman
	efSearch int
}

// NewOptimized creates an optimized index. Quantization is trained lazily on
// the first call to Train once enough vectors have accumulated; until then,
// Add keeps full-precision copies for every node.
func NewOptimized(dimensions int, cfg OptimizedConfig) *Optimized {
	if cfg.Base.M == 0 {
		cfg.Base = DefaultConfig()
	}
	o := &Optimized{
		idx:           New(dimensions, cfg.Base),
		cfg:           cfg,
		fullPrecision: make(map[string][]float32),
		codes:         make(map[string][]byte),
		latency:       filter.NewKalman(filter.LatencyConfig()),
		efSearch:      cfg.Base.EfSearch,
	}
	o.idx.decode = o.decodeNode
	return o
}

// decodeNode reconstructs an approximate vector for id from its stored
// quantized code. Used by the base graph (via Index.vecOf) once a node's
// full-precision copy has been dropped.
func (o *Optimized) decodeNode(id string) []float32 {
	o.mu.Lock()
	code, ok := o.codes[id]
	o.mu.Unlock()
	if !ok {
		return nil
	}
	switch o.cfg.Quantization {
	case ProductQuantization:
		if o.pqQ != nil {
			return o.pqQ.Decode(code)
		}
	case ScalarQuantization:
		if o.scalarQ != nil {
			return o.scalarQ.Decode(code)
		}
	}
	return nil
}

// Add inserts id/vec into the underlying graph and records a full-precision
// or quantized copy depending on training state and hot-subset membership.
func (o *Optimized) Add(id string, vec []float32) error {
	if err := o.idx.Add(id, vec); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.fullPrecision[id] = vec
	if o.trained {
		o.codes[id] = o.encodeLocked(vec)
		if o.idx.nodes[id].level < o.cfg.HotMinLevel {
			delete(o.fullPrecision, id)
			o.idx.nodes[id].vector = nil
		}
	}
	return nil
}

func (o *Optimized) encodeLocked(vec []float32) []byte {
	switch o.cfg.Quantization {
	case ProductQuantization:
		if o.pqQ != nil {
			return o.pqQ.Encode(vec)
		}
	case ScalarQuantization:
		if o.scalarQ != nil {
			return o.scalarQ.Encode(vec)
		}
	}
	return nil
}

// Train fits the configured quantizer against the vectors currently held in
// full precision. Subsequent Add calls store compressed codes for any node
// below HotMinLevel.
func (o *Optimized) Train() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cfg.Quantization == NoQuantization {
		return nil
	}
	if len(o.fullPrecision) == 0 {
		return verrors.InvalidInput("cannot train quantizer on an empty index")
	}

	samples := make([][]float32, 0, len(o.fullPrecision))
	for _, v := range o.fullPrecision {
		samples = append(samples, v)
	}

	switch o.cfg.Quantization {
	case ScalarQuantization:
		o.scalarQ = quantize.TrainScalar(samples)
	case ProductQuantization:
		o.pqQ = quantize.TrainProductQuantizer(samples, o.cfg.PQSubvectors, o.cfg.PQCentroids)
	}
	o.trained = true

	for id, v := range o.fullPrecision {
		o.codes[id] = o.encodeLocked(v)
	}
	for id, n := range o.idx.nodes {
		if n.level < o.cfg.HotMinLevel {
			delete(o.fullPrecision, id)
			n.vector = nil
		}
	}
	return nil
}

// Search runs a search using the current (adaptively tuned) ef_search, then
// updates the controller with the observed latency for the next query. When
// a product quantizer is trained, distances to nodes without a retained
// full-precision vector are estimated from a per-query asymmetric distance
// table instead of falling back to a decoded reconstruction.
func (o *Optimized) Search(query []float32, k int) ([]Result, error) {
	start := time.Now()

	o.mu.Lock()
	efSearch := o.efSearch
	estimator := o.buildEstimatorLocked(query)
	o.mu.Unlock()

	o.idx.mu.Lock()
	o.idx.cfg.EfSearch = efSearch
	o.idx.mu.Unlock()

	results, err := o.idx.searchWithEstimator(query, k, estimator)

	elapsedMS := float64(time.Since(start)) / float64(time.Millisecond)
	o.recordLatency(elapsedMS)
	return results, err
}

// buildEstimatorLocked returns a per-query asymmetric distance estimator
// over a snapshot of the current codes, or nil when the index has not
// trained a product quantizer. Caller holds o.mu.
func (o *Optimized) buildEstimatorLocked(query []float32) func(id string) (float32, bool) {
	if !o.trained || o.cfg.Quantization != ProductQuantization || o.pqQ == nil {
		return nil
	}
	table := o.pqQ.BuildDistanceTable(query)
	codes := make(map[string][]byte, len(o.codes))
	for id, code := range o.codes {
		if _, hot := o.fullPrecision[id]; hot {
			continue // hot nodes keep exact distances via their full-precision vector
		}
		codes[id] = code
	}
	return func(id string) (float32, bool) {
		code, ok := codes[id]
		if !ok {
			return 0, false
		}
		return table.EstimateDistance(code), true
	}
}

// recordLatency smooths the observed latency and nudges ef_search toward
// the configured target, applying the change only between queries.
func (o *Optimized) recordLatency(elapsedMS float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	smoothed := o.latency.Process(elapsedMS, o.cfg.TargetLatencyMS)

	switch {
	case smoothed > o.cfg.TargetLatencyMS:
		o.efSearch = clampInt(o.efSearch-o.cfg.AdjustStep, o.cfg.EfFloor, o.cfg.EfCeiling)
	case smoothed < o.cfg.TargetLatencyMS*0.5:
		o.efSearch = clampInt(o.efSearch+o.cfg.AdjustStep, o.cfg.EfFloor, o.cfg.EfCeiling)
	}
}

// CurrentEfSearch returns the ef_search value that will be used by the next
// Search call.
func (o *Optimized) CurrentEfSearch() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.efSearch
}

// PredictedLatencyMS returns the controller's latency estimate.
func (o *Optimized) PredictedLatencyMS() float64 {
	return o.latency.State()
}

// Delete removes id from the graph and any retained precision/codes.
func (o *Optimized) Delete(id string) bool {
	ok := o.idx.Delete(id)
	o.mu.Lock()
	delete(o.fullPrecision, id)
	delete(o.codes, id)
	o.mu.Unlock()
	return ok
}

// Size returns the number of nodes in the underlying graph.
func (o *Optimized) Size() int { return o.idx.Size() }

func clampInt(v, lo, hi int) int {
	return int(math.Max(float64(lo), math.Min(float64(hi), float64(v))))
}
