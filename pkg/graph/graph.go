// Package graph holds the typed, directed edge store: nouns (indexed
// vectors with optional kind/metadata) and verbs (edges between them),
// with source/target/kind indices for bidirectional lookup.
package graph

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nounverb/nounverb/pkg/verrors"
)

// NounKind tags a Noun with one of a caller-extensible set of kinds.
type NounKind string

const (
	Person       NounKind = "Person"
	Location     NounKind = "Location"
	Thing        NounKind = "Thing"
	Event        NounKind = "Event"
	Concept      NounKind = "Concept"
	Content      NounKind = "Content"
	Collection   NounKind = "Collection"
	Organization NounKind = "Organization"
	Document     NounKind = "Document"
)

var (
	registryMu     sync.RWMutex
	registeredKind = map[NounKind]bool{
		Person: true, Location: true, Thing: true, Event: true,
		Concept: true, Content: true, Collection: true, Organization: true,
		Document: true,
	}
)

// RegisterNounKind extends the set of accepted noun kinds. Unlike verb
// kinds, which are an open string, noun kinds must be registered before
// use; the built-in 9 are registered at package init.
func RegisterNounKind(k NounKind) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registeredKind[k] = true
}

// IsRegisteredNounKind reports whether k is a known noun kind. The zero
// value (untyped noun) is always valid.
func IsRegisteredNounKind(k NounKind) bool {
	if k == "" {
		return true
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registeredKind[k]
}

// Noun is an indexed item: a vector plus optional kind and metadata.
type Noun struct {
	ID        string
	Vector    []float32
	Level     int
	Kind      NounKind
	Metadata  json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
}

// Verb is a typed directed edge between two nouns. Verb kind is an open
// string, unlike NounKind.
type Verb struct {
	ID        string
	Source    string
	Target    string
	Kind      string
	Weight    *float64
	Metadata  json.RawMessage
	Vector    []float32 // relation embedding: caller-supplied, derived, or mean of endpoints
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
}

// Direction selects which side of a verb edge to traverse from a noun.
type Direction int

const (
	Out Direction = iota
	In
	Both
)

// Store holds nouns and verbs with the indices needed for §3/§4.7's
// bidirectional and by-kind lookups. It does not own vector search; that
// lives in pkg/hnsw/pkg/partition. Store is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	nouns map[string]*Noun
	verbs map[string]*Verb

	nounsByKind   map[NounKind]map[string]struct{}
	verbsBySource map[string]map[string]struct{}
	verbsByTarget map[string]map[string]struct{}
	verbsByKind   map[string]map[string]struct{}
}

// New creates an empty store.
func New() *Store {
	return &Store{
		nouns:         make(map[string]*Noun),
		verbs:         make(map[string]*Verb),
		nounsByKind:   make(map[NounKind]map[string]struct{}),
		verbsBySource: make(map[string]map[string]struct{}),
		verbsByTarget: make(map[string]map[string]struct{}),
		verbsByKind:   make(map[string]map[string]struct{}),
	}
}

// AddNoun inserts or overwrites n. Rejects a kind that is not registered.
func (s *Store) AddNoun(n *Noun) error {
	if !IsRegisteredNounKind(n.Kind) {
		return verrors.InvalidInput("unregistered noun kind: " + string(n.Kind))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, exists := s.nouns[n.ID]; exists && old.Kind != n.Kind {
		s.removeFromKindIndexLocked(old.ID, old.Kind)
	}
	s.nouns[n.ID] = n
	if n.Kind != "" {
		s.addToKindIndexLocked(n.ID, n.Kind)
	}
	return nil
}

func (s *Store) addToKindIndexLocked(id string, kind NounKind) {
	if s.nounsByKind[kind] == nil {
		s.nounsByKind[kind] = make(map[string]struct{})
	}
	s.nounsByKind[kind][id] = struct{}{}
}

func (s *Store) removeFromKindIndexLocked(id string, kind NounKind) {
	if m := s.nounsByKind[kind]; m != nil {
		delete(m, id)
	}
}

// GetNoun returns the noun with id, if any.
func (s *Store) GetNoun(id string) (*Noun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nouns[id]
	return n, ok
}

// GetAllNouns returns every noun in unspecified order.
func (s *Store) GetAllNouns() []*Noun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Noun, 0, len(s.nouns))
	for _, n := range s.nouns {
		out = append(out, n)
	}
	return out
}

// GetNounsByKind returns every noun tagged with kind.
func (s *Store) GetNounsByKind(kind NounKind) []*Noun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.nounsByKind[kind]
	out := make([]*Noun, 0, len(ids))
	for id := range ids {
		out = append(out, s.nouns[id])
	}
	return out
}

// DeleteNoun removes id. Verbs that reference it are left in place (stale
// endpoints); callers that need cascading delete handle it above this
// layer, mirroring the HNSW graph's own tolerance of stale back-pointers.
func (s *Store) DeleteNoun(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nouns[id]
	if !ok {
		return false
	}
	s.removeFromKindIndexLocked(id, n.Kind)
	delete(s.nouns, id)
	return true
}

// AddVerb inserts or overwrites v. Both endpoints must already exist;
// callers wanting auto_create_missing_nouns semantics create the
// placeholder noun first (that needs a vector dimension, which this
// package doesn't own).
func (s *Store) AddVerb(v *Verb) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nouns[v.Source]; !ok {
		return verrors.NotFound("noun", v.Source)
	}
	if _, ok := s.nouns[v.Target]; !ok {
		return verrors.NotFound("noun", v.Target)
	}

	if old, exists := s.verbs[v.ID]; exists {
		s.unindexVerbLocked(old)
	}
	s.verbs[v.ID] = v
	s.indexVerbLocked(v)
	return nil
}

func (s *Store) indexVerbLocked(v *Verb) {
	if s.verbsBySource[v.Source] == nil {
		s.verbsBySource[v.Source] = make(map[string]struct{})
	}
	s.verbsBySource[v.Source][v.ID] = struct{}{}

	if s.verbsByTarget[v.Target] == nil {
		s.verbsByTarget[v.Target] = make(map[string]struct{})
	}
	s.verbsByTarget[v.Target][v.ID] = struct{}{}

	if v.Kind != "" {
		if s.verbsByKind[v.Kind] == nil {
			s.verbsByKind[v.Kind] = make(map[string]struct{})
		}
		s.verbsByKind[v.Kind][v.ID] = struct{}{}
	}
}

func (s *Store) unindexVerbLocked(v *Verb) {
	if m := s.verbsBySource[v.Source]; m != nil {
		delete(m, v.ID)
	}
	if m := s.verbsByTarget[v.Target]; m != nil {
		delete(m, v.ID)
	}
	if m := s.verbsByKind[v.Kind]; m != nil {
		delete(m, v.ID)
	}
}

// GetVerb returns the verb with id, if any.
func (s *Store) GetVerb(id string) (*Verb, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.verbs[id]
	return v, ok
}

// GetAllVerbs returns every verb in unspecified order.
func (s *Store) GetAllVerbs() []*Verb {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Verb, 0, len(s.verbs))
	for _, v := range s.verbs {
		out = append(out, v)
	}
	return out
}

// GetVerbsBySource returns every verb whose source is id.
func (s *Store) GetVerbsBySource(id string) []*Verb {
	return s.lookupVerbs(s.verbsBySource, id)
}

// GetVerbsByTarget returns every verb whose target is id.
func (s *Store) GetVerbsByTarget(id string) []*Verb {
	return s.lookupVerbs(s.verbsByTarget, id)
}

// GetVerbsByKind returns every verb of the given kind.
func (s *Store) GetVerbsByKind(kind string) []*Verb {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.verbsByKind[kind]
	out := make([]*Verb, 0, len(ids))
	for id := range ids {
		out = append(out, s.verbs[id])
	}
	return out
}

// VerbsByNoun returns every verb touching id in the given direction.
func (s *Store) VerbsByNoun(id string, dir Direction) []*Verb {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	out := make([]*Verb, 0)
	add := func(ids map[string]struct{}) {
		for vid := range ids {
			if _, dup := seen[vid]; dup {
				continue
			}
			seen[vid] = struct{}{}
			out = append(out, s.verbs[vid])
		}
	}
	if dir == Out || dir == Both {
		add(s.verbsBySource[id])
	}
	if dir == In || dir == Both {
		add(s.verbsByTarget[id])
	}
	return out
}

func (s *Store) lookupVerbs(index map[string]map[string]struct{}, id string) []*Verb {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := index[id]
	out := make([]*Verb, 0, len(ids))
	for vid := range ids {
		out = append(out, s.verbs[vid])
	}
	return out
}

// DeleteVerb removes id. Returns false if it was unknown.
func (s *Store) DeleteVerb(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.verbs[id]
	if !ok {
		return false
	}
	s.unindexVerbLocked(v)
	delete(s.verbs, id)
	return true
}

// Clear removes every noun and verb.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nouns = make(map[string]*Noun)
	s.verbs = make(map[string]*Verb)
	s.nounsByKind = make(map[NounKind]map[string]struct{})
	s.verbsBySource = make(map[string]map[string]struct{})
	s.verbsByTarget = make(map[string]map[string]struct{})
	s.verbsByKind = make(map[string]map[string]struct{})
}

// NounCount and VerbCount support the statistics component's hnsw_index_size
// and verb counters without requiring a full scan.
func (s *Store) NounCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nouns)
}

func (s *Store) VerbCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.verbs)
}
