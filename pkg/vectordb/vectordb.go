package vectordb

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nounverb/nounverb/pkg/cache"
	"github.com/nounverb/nounverb/pkg/config"
	"github.com/nounverb/nounverb/pkg/graph"
	"github.com/nounverb/nounverb/pkg/stats"
	"github.com/nounverb/nounverb/pkg/storage"
	"github.com/nounverb/nounverb/pkg/verrors"
)

// DB is the query façade: one instance per embedded database, binding the
// ANN index(es), typed graph store, statistics tracker, storage backend,
// and tiered cache behind add/search/relate/findSimilar/backup/restore.
type DB struct {
	cfg     config.Config
	embed   EmbedFunc
	creator string

	dimMu      sync.RWMutex
	dimensions int

	modeMu    sync.RWMutex
	readOnly  bool
	writeOnly bool

	indexMu sync.RWMutex
	index   annIndex // noun vectors
	verbIdx annIndex // verb (relation) vectors, first-class per §3

	graph   *graph.Store
	stats   *stats.Tracker
	storage storage.Backend
	cache   *cache.Cache

	realtimeMu     sync.Mutex
	realtimeCancel context.CancelFunc
	realtimeDone   chan struct{}
	lastTailTS     int64
}

// swappablePrefetcher breaks the circular dependency between cache.New
// (which needs a Prefetcher) and the prefetcher constructors (which need
// the already-built *cache.Cache): it is handed to cache.New empty, then
// set() once the real prefetcher exists.
type swappablePrefetcher struct {
	mu sync.RWMutex
	p  cache.Prefetcher
}

func (s *swappablePrefetcher) OnMiss(key string) {
	s.mu.RLock()
	p := s.p
	s.mu.RUnlock()
	if p != nil {
		p.OnMiss(key)
	}
}

func (s *swappablePrefetcher) set(p cache.Prefetcher) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

// New constructs a DB bound to backend, using embed for any payload the
// caller doesn't supply a ready vector for. creatorService tags every
// record this instance writes, per §4.8's per-service statistics.
func New(cfg config.Config, backend storage.Backend, embed EmbedFunc, creatorService string) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db := &DB{
		cfg:        cfg,
		embed:      embed,
		creator:    creatorService,
		dimensions: cfg.HNSW.Dimensions,
		readOnly:   cfg.Modes.ReadOnly,
		writeOnly:  cfg.Modes.WriteOnly,
		graph:      graph.New(),
		storage:    backend,
	}

	db.stats = stats.NewTracker(func(snap stats.Snapshot) error {
		data, err := encodeSnapshot(snap)
		if err != nil {
			return err
		}
		return db.storage.FlushStatistics(context.Background(), data)
	})

	sp := &swappablePrefetcher{}
	db.cache = cache.New(cache.Config{
		HotCapacity:  cfg.Cache.HotCapacity,
		WarmCapacity: cfg.Cache.WarmCapacity,
	}, sp)
	if p := db.newPrefetcher(cfg.Cache.PrefetchStrategy); p != nil {
		sp.set(p)
	}

	if db.dimensions > 0 {
		db.index = newIndex(cfg, db.dimensions)
		db.verbIdx = newIndex(cfg, db.dimensions)
	}

	return db, nil
}

// newPrefetcher builds the cache.Prefetcher named by strategy, wired onto
// this DB's graph (as the adjacency source — pkg/hnsw keeps its neighbor
// lists private, so a noun's verb edges stand in for its level-0
// neighborhood; see DESIGN.md) and storage (as the batched fetch source).
func (db *DB) newPrefetcher(strategy string) cache.Prefetcher {
	neighbors := func(id string) []string {
		verbs := db.graph.VerbsByNoun(id, graph.Out)
		ids := make([]string, 0, len(verbs))
		for _, v := range verbs {
			ids = append(ids, v.Target)
		}
		return ids
	}
	fetch := func(keys []string) map[string]interface{} {
		out := make(map[string]interface{}, len(keys))
		for _, k := range keys {
			if n, ok := db.graph.GetNoun(k); ok {
				out[k] = n
				continue
			}
			if data, ok, err := db.storage.GetNoun(context.Background(), k); err == nil && ok {
				if n, err := decodeNoun(data); err == nil {
					out[k] = n
				}
			}
		}
		return out
	}

	switch strategy {
	case "neighborhood":
		return cache.NewNeighborhoodPrefetcher(db.cache, neighbors, fetch)
	case "query_path":
		return cache.NewQueryPathPrefetcher(db.cache, 4, fetch)
	case "hybrid":
		return cache.NewHybridPrefetcher(db.cache, neighbors, 4, fetch)
	default:
		return nil
	}
}

// Init loads every noun and verb persisted by backend into the in-memory
// graph store and rebuilds the ANN index(es), per §4.9's startup sequence.
// When the database is write-only the graph is still loaded, but the index
// rebuild and the realtime tail loop are skipped, since nothing is ever
// searched in that mode.
func (db *DB) Init(ctx context.Context) error {
	if err := db.storage.Init(ctx); err != nil {
		return verrors.StoragePermanent(err)
	}

	nouns, err := db.storage.GetAllNouns(ctx)
	if err != nil {
		return err
	}
	for _, rec := range nouns {
		n, err := decodeNoun(rec.Data)
		if err != nil {
			continue
		}
		if err := db.graph.AddNoun(n); err != nil {
			continue
		}
		if db.dimensions == 0 && len(n.Vector) > 0 {
			db.dimMu.Lock()
			db.dimensions = len(n.Vector)
			db.dimMu.Unlock()
		}
	}

	verbs, err := db.storage.GetAllVerbs(ctx)
	if err != nil {
		return err
	}
	for _, rec := range verbs {
		v, err := decodeVerb(rec.Data)
		if err != nil {
			continue
		}
		_ = db.graph.AddVerb(v)
	}

	db.modeMu.RLock()
	writeOnly := db.writeOnly
	db.modeMu.RUnlock()
	if writeOnly {
		return nil
	}

	db.dimMu.RLock()
	dims := db.dimensions
	db.dimMu.RUnlock()
	if dims == 0 {
		return nil // nothing to index yet; first insert will infer dims
	}

	db.indexMu.Lock()
	if db.index == nil {
		db.index = newIndex(db.cfg, dims)
	}
	if db.verbIdx == nil {
		db.verbIdx = newIndex(db.cfg, dims)
	}
	idx, verbIdx := db.index, db.verbIdx
	db.indexMu.Unlock()

	for _, n := range db.graph.GetAllNouns() {
		if len(n.Vector) == dims {
			_ = idx.Add(n.ID, n.Vector)
		}
	}
	for _, v := range db.graph.GetAllVerbs() {
		if len(v.Vector) == dims {
			_ = verbIdx.Add(v.ID, v.Vector)
		}
	}

	if db.cfg.Realtime.Enabled {
		db.EnableRealtimeUpdates(RealtimeConfig{
			Interval:    db.cfg.Realtime.Interval,
			UpdateStats: db.cfg.Realtime.UpdateStats,
			UpdateIndex: db.cfg.Realtime.UpdateIndex,
		})
	}

	return nil
}

// Shutdown stops the realtime tail loop, if running, and closes the
// storage backend.
func (db *DB) Shutdown() error {
	db.DisableRealtimeUpdates()
	return db.storage.Close()
}

func (db *DB) checkReadOnly() error {
	db.modeMu.RLock()
	defer db.modeMu.RUnlock()
	if db.readOnly {
		return verrors.ErrReadOnly
	}
	return nil
}

func (db *DB) checkWriteOnly() error {
	db.modeMu.RLock()
	defer db.modeMu.RUnlock()
	if db.writeOnly {
		return verrors.ErrWriteOnly
	}
	return nil
}

// checkDimensions validates vec against the instance's fixed dimension,
// inferring it from vec when this is the first vector ever seen. An empty
// vec (an auto-created placeholder noun with nothing to embed) always
// passes and is simply left out of the index.
func (db *DB) checkDimensions(vec []float32) error {
	if len(vec) == 0 {
		return nil
	}
	db.dimMu.Lock()
	defer db.dimMu.Unlock()
	if db.dimensions == 0 {
		db.dimensions = len(vec)
		db.indexMu.Lock()
		if db.index == nil {
			db.index = newIndex(db.cfg, db.dimensions)
		}
		if db.verbIdx == nil {
			db.verbIdx = newIndex(db.cfg, db.dimensions)
		}
		db.indexMu.Unlock()
		return nil
	}
	if len(vec) != db.dimensions {
		return verrors.DimensionMismatch(db.dimensions, len(vec))
	}
	return nil
}

// resolveVector returns vec as-is unless forceEmbed is set. With nothing
// supplied (no vec, no payload) it returns an empty vector rather than an
// error: that's the auto_create_missing_nouns placeholder case, which has
// neither and isn't meant to be searchable until explicitly updated.
func (db *DB) resolveVector(ctx context.Context, vec []float32, payload interface{}, forceEmbed bool) ([]float32, error) {
	if len(vec) > 0 && !forceEmbed {
		return vec, nil
	}
	if payload == nil {
		return nil, nil
	}
	if db.embed == nil {
		return nil, verrors.InvalidInput("no vector supplied and no embed function configured")
	}
	out, err := db.embed(ctx, payload)
	if err != nil {
		return nil, verrors.EmbeddingFailed(err)
	}
	return out, nil
}

// Add inserts a new noun, embedding payload if vec is empty or
// opts.ForceEmbed is set, and returns its assigned id.
func (db *DB) Add(ctx context.Context, vec []float32, payload interface{}, metadata Metadata, opts AddOptions) (string, error) {
	if err := db.checkReadOnly(); err != nil {
		return "", err
	}

	resolved, err := db.resolveVector(ctx, vec, payload, opts.ForceEmbed)
	if err != nil {
		return "", err
	}
	if err := db.checkDimensions(resolved); err != nil {
		return "", err
	}
	if opts.Kind != "" && !graph.IsRegisteredNounKind(opts.Kind) {
		return "", verrors.InvalidInput("unregistered noun kind: " + string(opts.Kind))
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	creator := opts.CreatorService
	if creator == "" {
		creator = db.creator
	}

	rawMeta, err := encodeMetadata(metadata)
	if err != nil {
		return "", verrors.InvalidInput("metadata: " + err.Error())
	}

	now := timeNow()
	n := &graph.Noun{
		ID:        id,
		Vector:    resolved,
		Kind:      opts.Kind,
		Metadata:  rawMeta,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: creator,
	}
	if err := db.graph.AddNoun(n); err != nil {
		return "", err
	}

	if len(resolved) > 0 {
		db.indexMu.RLock()
		idx := db.index
		db.indexMu.RUnlock()
		if idx != nil {
			if err := idx.Add(id, resolved); err != nil {
				return "", err
			}
		}
	}

	data, err := encodeNoun(n)
	if err != nil {
		return "", err
	}
	if err := db.persistNoun(ctx, n, data); err != nil {
		return "", err
	}

	db.stats.Increment(stats.NounKind, creator, 1)
	db.stats.AppendNow(stats.OpAdd, stats.NounKind, id, data)
	db.cache.Put(id, n)

	return id, nil
}

func (db *DB) persistNoun(ctx context.Context, n *graph.Noun, data []byte) error {
	return storage.WithRetry(ctx, db.retryConfig(), func() error {
		return db.storage.SaveNoun(ctx, n.ID, string(n.Kind), data)
	})
}

func (db *DB) retryConfig() storage.RetryConfig {
	return storage.RetryConfig{
		MaxRetries:   db.cfg.Retry.MaxRetries,
		InitialDelay: db.cfg.Retry.InitialDelay,
		MaxDelay:     db.cfg.Retry.MaxDelay,
		Multiplier:   db.cfg.Retry.Multiplier,
	}
}

// AddBatch inserts multiple items, embedding any whose Vector is empty.
// Each item succeeds or fails independently; a failure in one does not
// abort the rest.
func (db *DB) AddBatch(ctx context.Context, items []BatchItem, opts BatchOptions) []BatchResult {
	results := make([]BatchResult, len(items))
	if err := db.checkReadOnly(); err != nil {
		for i := range results {
			results[i] = BatchResult{Error: err}
		}
		return results
	}

	for i, item := range items {
		id, err := db.Add(ctx, item.Vector, item.Payload, item.Metadata, AddOptions{
			ID:             item.ID,
			Kind:           item.Kind,
			CreatorService: opts.CreatorService,
		})
		results[i] = BatchResult{ID: id, Error: err}
	}
	return results
}

// Get returns the noun record for id, or (nil, nil) if absent.
func (db *DB) Get(ctx context.Context, id string) (*Record, error) {
	if err := db.checkWriteOnly(); err != nil {
		return nil, err
	}
	if cached, ok := db.cache.Get(id); ok {
		if n, ok := cached.(*graph.Noun); ok {
			return recordFromNoun(n), nil
		}
	}
	if n, ok := db.graph.GetNoun(id); ok {
		db.cache.Put(id, n)
		return recordFromNoun(n), nil
	}

	data, ok, err := db.storage.GetNoun(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	n, err := decodeNoun(data)
	if err != nil {
		return nil, err
	}
	db.cache.Put(id, n)
	return recordFromNoun(n), nil
}

func recordFromNoun(n *graph.Noun) *Record {
	return &Record{
		ID:        n.ID,
		Vector:    n.Vector,
		Metadata:  decodeMetadata(n.Metadata),
		Kind:      n.Kind,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		CreatedBy: n.CreatedBy,
	}
}

// Delete removes a noun and every verb touching it.
func (db *DB) Delete(ctx context.Context, id string, opts DeleteOptions) error {
	if err := db.checkReadOnly(); err != nil {
		return err
	}

	for _, v := range db.graph.VerbsByNoun(id, graph.Both) {
		_ = db.deleteVerb(ctx, v.ID, opts.CreatorService)
	}

	if !db.graph.DeleteNoun(id) {
		return nil
	}

	db.indexMu.RLock()
	idx := db.index
	db.indexMu.RUnlock()
	if idx != nil {
		idx.Delete(id)
	}

	db.cache.Remove(id)

	if err := storage.WithRetry(ctx, db.retryConfig(), func() error {
		return db.storage.DeleteNoun(ctx, id)
	}); err != nil {
		return err
	}

	creator := opts.CreatorService
	if creator == "" {
		creator = db.creator
	}
	db.stats.Increment(stats.NounKind, creator, -1)
	db.stats.AppendNow(stats.OpDelete, stats.NounKind, id, nil)
	return nil
}

// UpdateMetadata replaces a noun's metadata in place, leaving its vector
// untouched. A missing id is a no-op, not an error.
func (db *DB) UpdateMetadata(ctx context.Context, id string, metadata Metadata) error {
	if err := db.checkReadOnly(); err != nil {
		return err
	}

	n, ok := db.graph.GetNoun(id)
	if !ok {
		return nil
	}
	rawMeta, err := encodeMetadata(metadata)
	if err != nil {
		return verrors.InvalidInput("metadata: " + err.Error())
	}

	updated := *n
	updated.Metadata = rawMeta
	updated.UpdatedAt = timeNow()

	if err := db.graph.AddNoun(&updated); err != nil {
		return err
	}

	data, err := encodeNoun(&updated)
	if err != nil {
		return err
	}
	if err := db.persistNoun(ctx, &updated, data); err != nil {
		return err
	}

	db.cache.Put(id, &updated)
	db.stats.AppendNow(stats.OpUpdate, stats.NounKind, id, data)
	return nil
}
