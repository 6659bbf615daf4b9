// Package storage provides the storage engine abstraction: a uniform
// byte-oriented interface over an in-memory map, the local filesystem
// (Badger-backed), or an S3-compatible object store, following the
// persisted layout of nouns/<id>, verbs/<id>, metadata/<id>, and the
// indexes/* secondary-index keys.
package storage

import (
	"context"
)

// Record pairs a stored entity's id with its opaque serialized bytes.
type Record struct {
	ID   string
	Data []byte
}

// Status reports coarse backend health for get_status.
type Status struct {
	BackendKind string
	BytesUsed   int64
	BytesQuota  int64 // -1 when unknown
	Extra       map[string]string
}

// ChangeRecord mirrors pkg/stats.ChangeEntry for backends (the object store
// and filesystem flavors) that persist a change log object for replication.
type ChangeRecord struct {
	Timestamp  int64
	Seq        uint64
	Op         string // "add", "update", "delete"
	EntityKind string // "noun", "verb", "metadata"
	ID         string
	AfterImage []byte
}

// Backend is the uniform storage contract every flavor implements. Get
// operations return (nil, false, nil) for an absent id — not-found is not
// an error here, per §4.7's failure semantics; only operations whose
// contract requires existence raise one, and those live above this layer.
type Backend interface {
	Init(ctx context.Context) error

	SaveNoun(ctx context.Context, id string, kind string, data []byte) error
	GetNoun(ctx context.Context, id string) ([]byte, bool, error)
	GetAllNouns(ctx context.Context) ([]Record, error)
	GetNounsByKind(ctx context.Context, kind string) ([]Record, error)
	DeleteNoun(ctx context.Context, id string) error

	SaveVerb(ctx context.Context, id, source, target, kind string, data []byte) error
	GetVerb(ctx context.Context, id string) ([]byte, bool, error)
	GetAllVerbs(ctx context.Context) ([]Record, error)
	GetVerbsBySource(ctx context.Context, source string) ([]Record, error)
	GetVerbsByTarget(ctx context.Context, target string) ([]Record, error)
	GetVerbsByKind(ctx context.Context, kind string) ([]Record, error)
	DeleteVerb(ctx context.Context, id string) error

	SaveMetadata(ctx context.Context, id string, data []byte) error
	GetMetadata(ctx context.Context, id string) ([]byte, bool, error)

	Clear(ctx context.Context) error
	GetStatus(ctx context.Context) (Status, error)

	// SupportsChangeLog reports whether GetChangesSince is backed by a real
	// log. All three built-in flavors return true; the memory flavor keeps
	// its log in process memory only.
	SupportsChangeLog() bool
	AppendChange(ctx context.Context, rec ChangeRecord) error
	GetChangesSince(ctx context.Context, timestamp int64, limit int) ([]ChangeRecord, error)

	FlushStatistics(ctx context.Context, data []byte) error

	Close() error
}
