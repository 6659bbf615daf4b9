package storage

import (
	"context"
	"sync"
)

// MemoryBackend keeps everything in process memory. Fastest flavor,
// volatile: nothing survives process exit.
type MemoryBackend struct {
	mu sync.RWMutex

	nouns       map[string][]byte
	nounKind    map[string]string
	nounsByKind map[string]map[string]struct{}

	verbs         map[string][]byte
	verbSource    map[string]string
	verbTarget    map[string]string
	verbKind      map[string]string
	verbsBySource map[string]map[string]struct{}
	verbsByTarget map[string]map[string]struct{}
	verbsByKind   map[string]map[string]struct{}

	metadata map[string][]byte

	changeLog []ChangeRecord
	statsBlob []byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		nouns:         make(map[string][]byte),
		nounKind:      make(map[string]string),
		nounsByKind:   make(map[string]map[string]struct{}),
		verbs:         make(map[string][]byte),
		verbSource:    make(map[string]string),
		verbTarget:    make(map[string]string),
		verbKind:      make(map[string]string),
		verbsBySource: make(map[string]map[string]struct{}),
		verbsByTarget: make(map[string]map[string]struct{}),
		verbsByKind:   make(map[string]map[string]struct{}),
		metadata:      make(map[string][]byte),
	}
}

func (m *MemoryBackend) Init(ctx context.Context) error { return nil }

func (m *MemoryBackend) SaveNoun(ctx context.Context, id, kind string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.nounKind[id]; ok && old != kind {
		if s := m.nounsByKind[old]; s != nil {
			delete(s, id)
		}
	}
	m.nouns[id] = data
	m.nounKind[id] = kind
	if kind != "" {
		if m.nounsByKind[kind] == nil {
			m.nounsByKind[kind] = make(map[string]struct{})
		}
		m.nounsByKind[kind][id] = struct{}{}
	}
	return nil
}

func (m *MemoryBackend) GetNoun(ctx context.Context, id string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.nouns[id]
	return data, ok, nil
}

func (m *MemoryBackend) GetAllNouns(ctx context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.nouns))
	for id, data := range m.nouns {
		out = append(out, Record{ID: id, Data: data})
	}
	return out, nil
}

func (m *MemoryBackend) GetNounsByKind(ctx context.Context, kind string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.nounsByKind[kind]
	out := make([]Record, 0, len(ids))
	for id := range ids {
		out = append(out, Record{ID: id, Data: m.nouns[id]})
	}
	return out, nil
}

func (m *MemoryBackend) DeleteNoun(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind, ok := m.nounKind[id]; ok {
		if s := m.nounsByKind[kind]; s != nil {
			delete(s, id)
		}
	}
	delete(m.nouns, id)
	delete(m.nounKind, id)
	return nil
}

func (m *MemoryBackend) SaveVerb(ctx context.Context, id, source, target, kind string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unindexVerbLocked(id)
	m.verbs[id] = data
	m.verbSource[id] = source
	m.verbTarget[id] = target
	m.verbKind[id] = kind
	index(m.verbsBySource, source, id)
	index(m.verbsByTarget, target, id)
	if kind != "" {
		index(m.verbsByKind, kind, id)
	}
	return nil
}

func (m *MemoryBackend) unindexVerbLocked(id string) {
	if src, ok := m.verbSource[id]; ok {
		unindex(m.verbsBySource, src, id)
	}
	if tgt, ok := m.verbTarget[id]; ok {
		unindex(m.verbsByTarget, tgt, id)
	}
	if kind, ok := m.verbKind[id]; ok {
		unindex(m.verbsByKind, kind, id)
	}
}

func index(m map[string]map[string]struct{}, key, id string) {
	if m[key] == nil {
		m[key] = make(map[string]struct{})
	}
	m[key][id] = struct{}{}
}

func unindex(m map[string]map[string]struct{}, key, id string) {
	if s := m[key]; s != nil {
		delete(s, id)
	}
}

func (m *MemoryBackend) GetVerb(ctx context.Context, id string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.verbs[id]
	return data, ok, nil
}

func (m *MemoryBackend) GetAllVerbs(ctx context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.verbs))
	for id, data := range m.verbs {
		out = append(out, Record{ID: id, Data: data})
	}
	return out, nil
}

func (m *MemoryBackend) GetVerbsBySource(ctx context.Context, source string) ([]Record, error) {
	return m.lookupVerbs(m.verbsBySource, source), nil
}

func (m *MemoryBackend) GetVerbsByTarget(ctx context.Context, target string) ([]Record, error) {
	return m.lookupVerbs(m.verbsByTarget, target), nil
}

func (m *MemoryBackend) GetVerbsByKind(ctx context.Context, kind string) ([]Record, error) {
	return m.lookupVerbs(m.verbsByKind, kind), nil
}

func (m *MemoryBackend) lookupVerbs(idx map[string]map[string]struct{}, key string) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := idx[key]
	out := make([]Record, 0, len(ids))
	for id := range ids {
		out = append(out, Record{ID: id, Data: m.verbs[id]})
	}
	return out
}

func (m *MemoryBackend) DeleteVerb(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unindexVerbLocked(id)
	delete(m.verbs, id)
	delete(m.verbSource, id)
	delete(m.verbTarget, id)
	delete(m.verbKind, id)
	return nil
}

func (m *MemoryBackend) SaveMetadata(ctx context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[id] = data
	return nil
}

func (m *MemoryBackend) GetMetadata(ctx context.Context, id string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.metadata[id]
	return data, ok, nil
}

func (m *MemoryBackend) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nouns = make(map[string][]byte)
	m.nounKind = make(map[string]string)
	m.nounsByKind = make(map[string]map[string]struct{})
	m.verbs = make(map[string][]byte)
	m.verbSource = make(map[string]string)
	m.verbTarget = make(map[string]string)
	m.verbKind = make(map[string]string)
	m.verbsBySource = make(map[string]map[string]struct{})
	m.verbsByTarget = make(map[string]map[string]struct{})
	m.verbsByKind = make(map[string]map[string]struct{})
	m.metadata = make(map[string][]byte)
	m.changeLog = nil
	m.statsBlob = nil
	return nil
}

func (m *MemoryBackend) GetStatus(ctx context.Context) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var bytesUsed int64
	for _, d := range m.nouns {
		bytesUsed += int64(len(d))
	}
	for _, d := range m.verbs {
		bytesUsed += int64(len(d))
	}
	for _, d := range m.metadata {
		bytesUsed += int64(len(d))
	}
	return Status{BackendKind: "memory", BytesUsed: bytesUsed, BytesQuota: -1}, nil
}

func (m *MemoryBackend) SupportsChangeLog() bool { return true }

func (m *MemoryBackend) AppendChange(ctx context.Context, rec ChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeLog = append(m.changeLog, rec)
	return nil
}

func (m *MemoryBackend) GetChangesSince(ctx context.Context, timestamp int64, limit int) ([]ChangeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ChangeRecord, 0)
	for _, r := range m.changeLog {
		if r.Timestamp > timestamp {
			out = append(out, r)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryBackend) FlushStatistics(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statsBlob = data
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
