// Package stats tracks per-creator-service counters and the append-only
// change log that drives real-time replica tailing.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind is one of the three counted entity kinds.
type Kind int

const (
	NounKind Kind = iota
	VerbKind
	MetadataKind
)

// ChangeOp is the operation a ChangeEntry records.
type ChangeOp int

const (
	OpAdd ChangeOp = iota
	OpUpdate
	OpDelete
)

// ChangeEntry is one append-only change-log record. AfterImage carries the
// full post-change value for add/update, and is nil for delete (id-only).
type ChangeEntry struct {
	Timestamp   int64 // monotonically increasing wall-clock, nanoseconds
	Seq         uint64
	Op          ChangeOp
	Kind        Kind
	ID          string
	AfterImage  []byte // caller-serialized representation, nil for OpDelete
}

// Tracker holds in-memory counters and the change log. Counter writes are
// coalesced: Increment only touches an atomic counter and the snapshot
// dirty flag; Flush is the only place that calls out to persistence, via
// the Flusher callback supplied at construction.
type Tracker struct {
	mu       sync.RWMutex
	counters map[Kind]map[string]*int64 // kind -> creator service -> count
	hnswSize int64

	changeLog []ChangeEntry
	seq       uint64
	lastTS    int64

	dirty   int32 // 0/1, set on any Increment, cleared on Flush
	flusher func(Snapshot) error
}

// Snapshot is the data passed to Flusher on a coalesced flush.
type Snapshot struct {
	Counters      map[Kind]map[string]int64
	HNSWIndexSize int64
}

// NewTracker creates a Tracker. flusher may be nil (Flush becomes a no-op
// that only clears the dirty flag).
func NewTracker(flusher func(Snapshot) error) *Tracker {
	return &Tracker{
		counters: make(map[Kind]map[string]*int64),
		flusher:  flusher,
	}
}

// Increment bumps the counter for kind/creatorService by delta (typically 1
// or -1 for add/delete).
func (t *Tracker) Increment(kind Kind, creatorService string, delta int64) {
	t.mu.Lock()
	if t.counters[kind] == nil {
		t.counters[kind] = make(map[string]*int64)
	}
	c, ok := t.counters[kind][creatorService]
	if !ok {
		var zero int64
		c = &zero
		t.counters[kind][creatorService] = c
	}
	t.mu.Unlock()

	atomic.AddInt64(c, delta)
	atomic.StoreInt32(&t.dirty, 1)
	if kind == NounKind {
		atomic.AddInt64(&t.hnswSize, delta)
	}
}

// Snapshot returns the current counters and index size without flushing.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := Snapshot{
		Counters:      make(map[Kind]map[string]int64),
		HNSWIndexSize: atomic.LoadInt64(&t.hnswSize),
	}
	for kind, byService := range t.counters {
		m := make(map[string]int64, len(byService))
		for svc, c := range byService {
			m[svc] = atomic.LoadInt64(c)
		}
		out.Counters[kind] = m
	}
	return out
}

// Sum returns the total across all creator services for kind, verifying the
// monotone "counters equal the sum of per-creator sub-counters" invariant
// holds by construction rather than by separate bookkeeping.
func (t *Tracker) Sum(kind Kind) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var sum int64
	for _, c := range t.counters[kind] {
		sum += atomic.LoadInt64(c)
	}
	return sum
}

// Flush calls the configured flusher with the current snapshot if the
// tracker is dirty, then clears the dirty flag. Safe to call repeatedly;
// idempotent when nothing changed since the last flush.
func (t *Tracker) Flush() error {
	if !atomic.CompareAndSwapInt32(&t.dirty, 1, 0) {
		return nil
	}
	if t.flusher == nil {
		return nil
	}
	return t.flusher(t.Snapshot())
}

// Append records a change-log entry. The caller supplies now so the log
// stays deterministic in tests; production callers pass time.Now().UnixNano().
func (t *Tracker) Append(now int64, op ChangeOp, kind Kind, id string, afterImage []byte) ChangeEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if now <= t.lastTS {
		now = t.lastTS + 1 // preserve strict monotonicity under clock jitter
	}
	t.lastTS = now
	t.seq++

	entry := ChangeEntry{
		Timestamp:  now,
		Seq:        t.seq,
		Op:         op,
		Kind:       kind,
		ID:         id,
		AfterImage: afterImage,
	}
	if op == OpDelete {
		entry.AfterImage = nil
	}
	t.changeLog = append(t.changeLog, entry)
	return entry
}

// ChangesSince returns entries strictly after ts, oldest first, capped at
// limit (0 means unlimited).
func (t *Tracker) ChangesSince(ts int64, limit int) []ChangeEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ChangeEntry, 0)
	for _, e := range t.changeLog {
		if e.Timestamp > ts {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// now is a small seam so production code can call time.Now consistently;
// kept here rather than in every caller.
func now() int64 { return time.Now().UnixNano() }

// AppendNow is a convenience wrapper around Append using the real clock.
func (t *Tracker) AppendNow(op ChangeOp, kind Kind, id string, afterImage []byte) ChangeEntry {
	return t.Append(now(), op, kind, id, afterImage)
}
