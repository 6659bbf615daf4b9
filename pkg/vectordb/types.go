// Package vectordb binds the distance kernels, HNSW index, partition
// manager, distributed search coordinator, typed graph store, statistics
// tracker, storage backend, and tiered cache into the single query façade
// described by §4.9/§6: add, search, relate, findSimilar, backup/restore,
// all behind input validation and read-only/write-only gating.
package vectordb

import (
	"context"
	"time"

	"github.com/nounverb/nounverb/pkg/graph"
)

// Metadata is the caller-facing representation of a noun's or verb's
// opaque payload; the storage layer only ever sees its serialized bytes.
type Metadata = map[string]interface{}

// EmbedFunc maps a caller-supplied payload to a fixed-length vector. It is
// the database's only embedding seam; the core never bundles a model.
type EmbedFunc func(ctx context.Context, payload interface{}) ([]float32, error)

// Record is the caller-facing view of a noun: id, vector, and decoded
// metadata.
type Record struct {
	ID        string
	Vector    []float32
	Metadata  Metadata
	Kind      graph.NounKind
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
}

// VerbRecord is the caller-facing view of a verb.
type VerbRecord struct {
	ID        string
	Source    string
	Target    string
	Kind      string
	Weight    *float64
	Metadata  Metadata
	Vector    []float32
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
}

// AddOptions configures add().
type AddOptions struct {
	ForceEmbed     bool
	ID             string
	CreatorService string
	Kind           graph.NounKind
}

// BatchOptions configures addBatch().
type BatchOptions struct {
	BatchSize      int
	Concurrency    int
	CreatorService string
}

// BatchItem is one entry for addBatch(): either Vector is set (a ready
// vector) or Payload is set (to be embedded), never both.
type BatchItem struct {
	Vector   []float32
	Payload  interface{}
	Metadata Metadata
	ID       string
	Kind     graph.NounKind
}

// BatchResult pairs a batch item's position with its resulting id or error.
type BatchResult struct {
	ID    string
	Error error
}

// SearchMode selects how a search is routed.
type SearchMode int

const (
	// Local searches this instance's in-process index (the default; the
	// only mode this implementation actually executes).
	Local SearchMode = iota
	// Remote is accepted but rejected with InvalidInput: remote vector
	// search is explicitly left undefined (see DESIGN.md Open Question 3).
	Remote
	// Combined searches local then remote; same rejection as Remote until
	// a remote path exists.
	Combined
)

// SearchOptions configures search()/searchText()/findSimilar().
type SearchOptions struct {
	ForceEmbed            bool
	NounKinds             []graph.NounKind
	IncludeVerbs          bool
	SearchMode            SearchMode
	SearchVerbs           bool
	VerbKinds             []string
	SearchConnectedNouns  bool
	VerbDirection         graph.Direction
	CreatorServiceFilter  string
	RelationType          string // findSimilar only: follow typed edges instead of the vector index
}

// SearchResult is one hit from search()/searchText()/findSimilar().
type SearchResult struct {
	ID       string
	Score    float32
	Vector   []float32
	Metadata Metadata
	IsVerb   bool
}

// AddVerbOptions configures addVerb()/relate().
type AddVerbOptions struct {
	Kind                   string
	Weight                 *float64
	Metadata               Metadata
	AutoCreateMissingNouns bool
	MissingNounMetadata    Metadata
	CreatorService         string
}

// DeleteOptions configures delete().
type DeleteOptions struct {
	CreatorService string
}

// Statistics is the result of getStatistics().
type Statistics struct {
	NounCount     int64
	VerbCount     int64
	MetadataCount int64
	HNSWIndexSize int64
	PerService    map[string]ServiceCounts
}

// ServiceCounts breaks Statistics down by creator service.
type ServiceCounts struct {
	Nouns     int64
	Verbs     int64
	Metadata  int64
}

// RealtimeConfig configures enableRealtimeUpdates().
type RealtimeConfig struct {
	Interval    time.Duration
	UpdateStats bool
	UpdateIndex bool
}
