package vectordb

import (
	"context"
	"encoding/json"

	"github.com/nounverb/nounverb/pkg/graph"
	"github.com/nounverb/nounverb/pkg/verrors"
)

// BackupData is the full serialized snapshot produced by Backup and
// accepted by Restore: every noun and verb, and a format version for forward
// compatibility. The registered noun kinds are not included.
type BackupData struct {
	Version int           `json:"version"`
	Nouns   []*graph.Noun `json:"nouns"`
	Verbs   []*graph.Verb `json:"verbs"`
}

const backupFormatVersion = 1

// Backup serializes the entire graph (not the ANN index itself — Restore
// rebuilds it from the vectors, which is cheap relative to shipping index
// internals across a format version boundary).
func (db *DB) Backup(ctx context.Context) (*BackupData, error) {
	return &BackupData{
		Version: backupFormatVersion,
		Nouns:   db.graph.GetAllNouns(),
		Verbs:   db.graph.GetAllVerbs(),
	}, nil
}

// RestoreOptions configures Restore.
type RestoreOptions struct {
	ClearExisting bool
}

// Restore replaces (or merges into, if !opts.ClearExisting) the current
// graph and index with data's contents.
func (db *DB) Restore(ctx context.Context, data *BackupData, opts RestoreOptions) error {
	if err := db.checkReadOnly(); err != nil {
		return err
	}
	if data == nil {
		return verrors.InvalidInput("nil backup data")
	}

	if opts.ClearExisting {
		if err := db.Clear(ctx); err != nil {
			return err
		}
	}

	for _, n := range data.Nouns {
		if err := db.graph.AddNoun(n); err != nil {
			continue
		}
		if db.dimensions == 0 && len(n.Vector) > 0 {
			db.dimMu.Lock()
			db.dimensions = len(n.Vector)
			db.dimMu.Unlock()
		}
		payload, err := encodeNoun(n)
		if err != nil {
			return err
		}
		if err := db.persistNoun(ctx, n, payload); err != nil {
			return err
		}
	}

	db.dimMu.RLock()
	dims := db.dimensions
	db.dimMu.RUnlock()
	if dims > 0 {
		db.indexMu.Lock()
		if db.index == nil {
			db.index = newIndex(db.cfg, dims)
		}
		if db.verbIdx == nil {
			db.verbIdx = newIndex(db.cfg, dims)
		}
		idx, verbIdx := db.index, db.verbIdx
		db.indexMu.Unlock()

		for _, n := range data.Nouns {
			if len(n.Vector) == dims {
				_ = idx.Add(n.ID, n.Vector)
			}
		}
		for _, v := range data.Verbs {
			if len(v.Vector) == dims {
				_ = verbIdx.Add(v.ID, v.Vector)
			}
		}
	}

	for _, v := range data.Verbs {
		if err := db.graph.AddVerb(v); err != nil {
			continue
		}
		payload, err := encodeVerb(v)
		if err != nil {
			return err
		}
		if err := db.storage.SaveVerb(ctx, v.ID, v.Source, v.Target, v.Kind, payload); err != nil {
			return err
		}
	}

	return db.stats.Flush()
}

// MarshalBackup and UnmarshalBackup give callers a ready JSON encoding for
// Backup/Restore's result without reaching into encoding/json themselves.
func MarshalBackup(data *BackupData) ([]byte, error) { return json.Marshal(data) }

func UnmarshalBackup(raw []byte) (*BackupData, error) {
	var data BackupData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return &data, nil
}
