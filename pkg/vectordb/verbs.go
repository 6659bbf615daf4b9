package vectordb

import (
	"context"

	"github.com/google/uuid"

	"github.com/nounverb/nounverb/pkg/graph"
	"github.com/nounverb/nounverb/pkg/stats"
	"github.com/nounverb/nounverb/pkg/storage"
	"github.com/nounverb/nounverb/pkg/verrors"
)

// AddVerb creates a typed directed edge from source to target. Per §3,
// verbs are first-class and indexed in the ANN graph: when vec is empty and
// an embed function is configured, it is embedded from payload just like a
// noun; failing that, it is the component-wise mean of the two endpoint
// vectors when both have one of equal length. A verb left with no vector is
// accepted and simply left out of verbIdx (the edge still exists for graph
// traversal).
func (db *DB) AddVerb(ctx context.Context, source, target string, vec []float32, payload interface{}, opts AddVerbOptions) (string, error) {
	if err := db.checkReadOnly(); err != nil {
		return "", err
	}
	if opts.Kind == "" {
		return "", verrors.InvalidInput("verb kind is required")
	}

	if _, ok := db.graph.GetNoun(source); !ok {
		if !opts.AutoCreateMissingNouns {
			return "", verrors.NotFound("noun", source)
		}
		if _, err := db.Add(ctx, nil, nil, opts.MissingNounMetadata, AddOptions{ID: source, CreatorService: opts.CreatorService}); err != nil {
			return "", err
		}
	}
	if _, ok := db.graph.GetNoun(target); !ok {
		if !opts.AutoCreateMissingNouns {
			return "", verrors.NotFound("noun", target)
		}
		if _, err := db.Add(ctx, nil, nil, opts.MissingNounMetadata, AddOptions{ID: target, CreatorService: opts.CreatorService}); err != nil {
			return "", err
		}
	}

	resolved := vec
	if len(resolved) == 0 && db.embed != nil && payload != nil {
		out, err := db.resolveVector(ctx, nil, payload, true)
		if err != nil {
			return "", err
		}
		resolved = out
	}
	if len(resolved) == 0 {
		sn, _ := db.graph.GetNoun(source)
		tn, _ := db.graph.GetNoun(target)
		if sn != nil && tn != nil && len(sn.Vector) > 0 && len(sn.Vector) == len(tn.Vector) {
			resolved = make([]float32, len(sn.Vector))
			for i := range resolved {
				resolved[i] = (sn.Vector[i] + tn.Vector[i]) / 2
			}
		}
	}

	rawMeta, err := encodeMetadata(opts.Metadata)
	if err != nil {
		return "", verrors.InvalidInput("metadata: " + err.Error())
	}

	creator := opts.CreatorService
	if creator == "" {
		creator = db.creator
	}

	now := timeNow()
	v := &graph.Verb{
		ID:        uuid.NewString(),
		Source:    source,
		Target:    target,
		Kind:      opts.Kind,
		Weight:    opts.Weight,
		Metadata:  rawMeta,
		Vector:    resolved,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: creator,
	}
	if err := db.graph.AddVerb(v); err != nil {
		return "", err
	}

	if len(resolved) > 0 {
		db.indexMu.RLock()
		verbIdx := db.verbIdx
		db.indexMu.RUnlock()
		if verbIdx != nil {
			_ = verbIdx.Add(v.ID, resolved)
		}
	}

	data, err := encodeVerb(v)
	if err != nil {
		return "", err
	}
	if err := storage.WithRetry(ctx, db.retryConfig(), func() error {
		return db.storage.SaveVerb(ctx, v.ID, v.Source, v.Target, v.Kind, data)
	}); err != nil {
		return "", err
	}

	db.stats.Increment(stats.VerbKind, creator, 1)
	db.stats.AppendNow(stats.OpAdd, stats.VerbKind, v.ID, data)
	return v.ID, nil
}

// Relate is a convenience wrapper over AddVerb for the common case of an
// unweighted edge with no caller-supplied vector or payload.
func (db *DB) Relate(ctx context.Context, source, target, kind string) (string, error) {
	return db.AddVerb(ctx, source, target, nil, nil, AddVerbOptions{Kind: kind})
}

// GetVerb returns the verb record for id, or (nil, nil) if absent.
func (db *DB) GetVerb(id string) (*VerbRecord, error) {
	if err := db.checkWriteOnly(); err != nil {
		return nil, err
	}
	v, ok := db.graph.GetVerb(id)
	if !ok {
		return nil, nil
	}
	return recordFromVerb(v), nil
}

// GetVerbsBySource returns every verb whose Source is id.
func (db *DB) GetVerbsBySource(id string) []*VerbRecord {
	return recordsFromVerbs(db.graph.GetVerbsBySource(id))
}

// GetVerbsByTarget returns every verb whose Target is id.
func (db *DB) GetVerbsByTarget(id string) []*VerbRecord {
	return recordsFromVerbs(db.graph.GetVerbsByTarget(id))
}

// GetVerbsByKind returns every verb of the given kind.
func (db *DB) GetVerbsByKind(kind string) []*VerbRecord {
	return recordsFromVerbs(db.graph.GetVerbsByKind(kind))
}

// GetVerbsByNoun returns every verb touching id in the given direction.
func (db *DB) GetVerbsByNoun(id string, dir graph.Direction) []*VerbRecord {
	return recordsFromVerbs(db.graph.VerbsByNoun(id, dir))
}

func recordFromVerb(v *graph.Verb) *VerbRecord {
	return &VerbRecord{
		ID:        v.ID,
		Source:    v.Source,
		Target:    v.Target,
		Kind:      v.Kind,
		Weight:    v.Weight,
		Metadata:  decodeMetadata(v.Metadata),
		Vector:    v.Vector,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
		CreatedBy: v.CreatedBy,
	}
}

func recordsFromVerbs(verbs []*graph.Verb) []*VerbRecord {
	out := make([]*VerbRecord, 0, len(verbs))
	for _, v := range verbs {
		out = append(out, recordFromVerb(v))
	}
	return out
}

// DeleteVerb removes a single edge.
func (db *DB) DeleteVerb(ctx context.Context, id string, creatorService string) error {
	if err := db.checkReadOnly(); err != nil {
		return err
	}
	return db.deleteVerb(ctx, id, creatorService)
}

// deleteVerb is the unchecked core shared by DeleteVerb and Delete (which
// has already checked read-only before cascading to a noun's edges).
func (db *DB) deleteVerb(ctx context.Context, id string, creatorService string) error {
	v, ok := db.graph.GetVerb(id)
	if !ok {
		return nil
	}
	if !db.graph.DeleteVerb(id) {
		return nil
	}

	db.indexMu.RLock()
	verbIdx := db.verbIdx
	db.indexMu.RUnlock()
	if verbIdx != nil {
		verbIdx.Delete(id)
	}

	if err := storage.WithRetry(ctx, db.retryConfig(), func() error {
		return db.storage.DeleteVerb(ctx, id)
	}); err != nil {
		return err
	}

	creator := creatorService
	if creator == "" {
		creator = v.CreatedBy
	}
	db.stats.Increment(stats.VerbKind, creator, -1)
	db.stats.AppendNow(stats.OpDelete, stats.VerbKind, id, nil)
	return nil
}
