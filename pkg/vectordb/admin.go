package vectordb

import (
	"context"
	"time"

	"github.com/nounverb/nounverb/pkg/stats"
	"github.com/nounverb/nounverb/pkg/storage"
)

// Clear removes every noun and verb, resets the index(es), and wipes the
// backend. It works regardless of read-only/write-only mode: per §6, clear
// is an administrative reset, not a query-path write.
func (db *DB) Clear(ctx context.Context) error {
	db.graph.Clear()

	db.indexMu.Lock()
	db.dimMu.RLock()
	dims := db.dimensions
	db.dimMu.RUnlock()
	if dims > 0 {
		db.index = newIndex(db.cfg, dims)
		db.verbIdx = newIndex(db.cfg, dims)
	} else {
		db.index = nil
		db.verbIdx = nil
	}
	db.indexMu.Unlock()

	db.cache.Clear()
	return db.storage.Clear(ctx)
}

// Status reports coarse health: backend kind, bytes used/quota, and the
// extra fields the backend exposes.
func (db *DB) Status(ctx context.Context) (storageStatus, error) {
	st, err := db.storage.GetStatus(ctx)
	if err != nil {
		return storageStatus{}, err
	}
	return storageStatus(st), nil
}

// storageStatus mirrors storage.Status; named locally so callers don't need
// to import pkg/storage just to read a status report.
type storageStatus struct {
	BackendKind string
	BytesUsed   int64
	BytesQuota  int64
	Extra       map[string]string
}

// GetStatistics returns the current per-service counters and index sizes.
func (db *DB) GetStatistics() Statistics {
	snap := db.stats.Snapshot()

	out := Statistics{
		NounCount:     db.stats.Sum(stats.NounKind),
		VerbCount:     db.stats.Sum(stats.VerbKind),
		MetadataCount: db.stats.Sum(stats.MetadataKind),
		HNSWIndexSize: snap.HNSWIndexSize,
		PerService:    make(map[string]ServiceCounts),
	}

	for kind, byService := range snap.Counters {
		for svc, count := range byService {
			sc := out.PerService[svc]
			switch kind {
			case stats.NounKind:
				sc.Nouns = count
			case stats.VerbKind:
				sc.Verbs = count
			case stats.MetadataKind:
				sc.Metadata = count
			}
			out.PerService[svc] = sc
		}
	}
	return out
}

// FlushStatistics forces an immediate flush to the backend, bypassing the
// tracker's normal coalescing.
func (db *DB) FlushStatistics() error {
	return db.stats.Flush()
}

// EnableRealtimeUpdates starts a background loop that polls the backend's
// change log (when supported) and replays it into the graph store, index,
// and counters, per §4.9. Backends without SupportsChangeLog fall back to a
// full rescan on each tick.
func (db *DB) EnableRealtimeUpdates(cfg RealtimeConfig) {
	db.realtimeMu.Lock()
	defer db.realtimeMu.Unlock()

	if db.realtimeCancel != nil {
		db.realtimeCancel() // replace any running loop
		<-db.realtimeDone
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	db.realtimeCancel = cancel
	db.realtimeDone = done

	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.checkForUpdates(ctx, cfg)
			}
		}
	}()
}

// DisableRealtimeUpdates stops the loop started by EnableRealtimeUpdates,
// if any. Safe to call when no loop is running.
func (db *DB) DisableRealtimeUpdates() {
	db.realtimeMu.Lock()
	defer db.realtimeMu.Unlock()
	if db.realtimeCancel == nil {
		return
	}
	db.realtimeCancel()
	<-db.realtimeDone
	db.realtimeCancel = nil
	db.realtimeDone = nil
}

// CheckForUpdatesNow runs one tail pass synchronously, outside the
// scheduled loop — useful for tests and for callers that want a point-in-
// time catch-up rather than waiting for the next tick.
func (db *DB) CheckForUpdatesNow(ctx context.Context, cfg RealtimeConfig) {
	db.checkForUpdates(ctx, cfg)
}

func (db *DB) checkForUpdates(ctx context.Context, cfg RealtimeConfig) {
	if !db.storage.SupportsChangeLog() {
		db.rescanAll(ctx, cfg)
		return
	}

	changes, err := db.storage.GetChangesSince(ctx, db.lastTailTS, 0)
	if err != nil || len(changes) == 0 {
		return
	}

	for _, c := range changes {
		if c.Timestamp > db.lastTailTS {
			db.lastTailTS = c.Timestamp
		}
		db.applyChange(c, cfg)
	}
}

func (db *DB) applyChange(c storage.ChangeRecord, cfg RealtimeConfig) {
	switch c.EntityKind {
	case "noun":
		if c.Op == "delete" {
			db.graph.DeleteNoun(c.ID)
			if cfg.UpdateIndex {
				db.indexMu.RLock()
				idx := db.index
				db.indexMu.RUnlock()
				if idx != nil {
					idx.Delete(c.ID)
				}
			}
			return
		}
		n, err := decodeNoun(c.AfterImage)
		if err != nil {
			return
		}
		_ = db.graph.AddNoun(n)
		if cfg.UpdateIndex && len(n.Vector) > 0 {
			db.indexMu.RLock()
			idx := db.index
			db.indexMu.RUnlock()
			if idx != nil {
				_ = idx.Add(n.ID, n.Vector)
			}
		}
	case "verb":
		if c.Op == "delete" {
			db.graph.DeleteVerb(c.ID)
			return
		}
		v, err := decodeVerb(c.AfterImage)
		if err != nil {
			return
		}
		_ = db.graph.AddVerb(v)
	}
	if cfg.UpdateStats {
		_ = db.stats.Flush()
	}
}

// rescanAll is the fallback tail strategy for backends whose
// SupportsChangeLog reports false: reload every noun and let graph.AddNoun's
// upsert semantics reconcile it.
func (db *DB) rescanAll(ctx context.Context, cfg RealtimeConfig) {
	nouns, err := db.storage.GetAllNouns(ctx)
	if err != nil {
		return
	}
	for _, rec := range nouns {
		n, err := decodeNoun(rec.Data)
		if err != nil {
			continue
		}
		_ = db.graph.AddNoun(n)
		if cfg.UpdateIndex && len(n.Vector) > 0 {
			db.indexMu.RLock()
			idx := db.index
			db.indexMu.RUnlock()
			if idx != nil {
				_ = idx.Add(n.ID, n.Vector)
			}
		}
	}
}
