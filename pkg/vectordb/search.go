package vectordb

import (
	"context"
	"sort"

	"github.com/nounverb/nounverb/pkg/graph"
	"github.com/nounverb/nounverb/pkg/verrors"
)

// Search runs a k-nearest-neighbor query against a ready vector. opts.
// SearchMode other than Local is rejected: remote vector search is left
// undefined by this implementation (DESIGN.md's Open Question #3).
func (db *DB) Search(ctx context.Context, vec []float32, k int, opts SearchOptions) ([]SearchResult, error) {
	if err := db.checkWriteOnly(); err != nil {
		return nil, err
	}
	if opts.SearchMode != Local {
		return nil, verrors.InvalidInput("search_mode other than local is not supported")
	}
	if k <= 0 {
		return nil, verrors.InvalidInput("k must be positive")
	}
	if len(vec) == 0 {
		return nil, verrors.InvalidInput("empty query vector")
	}

	db.dimMu.RLock()
	dims := db.dimensions
	db.dimMu.RUnlock()
	if dims != 0 && len(vec) != dims {
		return nil, verrors.DimensionMismatch(dims, len(vec))
	}

	var results []SearchResult

	if opts.SearchVerbs {
		hits, err := db.searchIndex(ctx, db.verbIdx, vec, k)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			v, ok := db.graph.GetVerb(h.ID)
			if !ok {
				continue
			}
			if !verbKindAllowed(v.Kind, opts.VerbKinds) {
				continue
			}
			results = append(results, SearchResult{
				ID: h.ID, Score: h.Distance, Vector: v.Vector,
				Metadata: decodeMetadata(v.Metadata), IsVerb: true,
			})
		}
	}

	hits, err := db.searchIndex(ctx, db.index, vec, k)
	if err != nil {
		return nil, err
	}
	for _, h := range hits {
		n, ok := db.graph.GetNoun(h.ID)
		if !ok {
			continue
		}
		if !nounKindAllowed(n.Kind, opts.NounKinds) {
			continue
		}
		if opts.CreatorServiceFilter != "" && n.CreatedBy != opts.CreatorServiceFilter {
			continue
		}
		results = append(results, SearchResult{
			ID: h.ID, Score: h.Distance, Vector: n.Vector,
			Metadata: decodeMetadata(n.Metadata),
		})

		if opts.SearchConnectedNouns {
			for _, v := range db.graph.VerbsByNoun(n.ID, opts.VerbDirection) {
				other := v.Target
				if opts.VerbDirection == graph.In {
					other = v.Source
				}
				on, ok := db.graph.GetNoun(other)
				if !ok || !nounKindAllowed(on.Kind, opts.NounKinds) {
					continue
				}
				results = append(results, SearchResult{
					ID: on.ID, Score: h.Distance, Vector: on.Vector,
					Metadata: decodeMetadata(on.Metadata),
				})
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score < results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// SearchText embeds payload (or forces a re-embed of it if opts.ForceEmbed
// is set and payload happens to also carry a ready vector upstream) and
// runs Search against the result.
func (db *DB) SearchText(ctx context.Context, payload interface{}, k int, opts SearchOptions) ([]SearchResult, error) {
	if db.embed == nil {
		return nil, verrors.InvalidInput("no embed function configured")
	}
	vec, err := db.embed(ctx, payload)
	if err != nil {
		return nil, verrors.EmbeddingFailed(err)
	}
	return db.Search(ctx, vec, k, opts)
}

// FindSimilar returns nouns near id's own vector. When opts.RelationType is
// set, it instead follows that typed edge kind from id (a graph traversal,
// not a vector search) — the two are mutually exclusive query styles named
// by the same call per §4.9.
func (db *DB) FindSimilar(ctx context.Context, id string, k int, opts SearchOptions) ([]SearchResult, error) {
	if opts.RelationType != "" {
		var out []SearchResult
		for _, v := range db.graph.VerbsByNoun(id, opts.VerbDirection) {
			if v.Kind != opts.RelationType {
				continue
			}
			other := v.Target
			if opts.VerbDirection == graph.In {
				other = v.Source
			}
			n, ok := db.graph.GetNoun(other)
			if !ok || !nounKindAllowed(n.Kind, opts.NounKinds) {
				continue
			}
			out = append(out, SearchResult{ID: n.ID, Vector: n.Vector, Metadata: decodeMetadata(n.Metadata)})
			if len(out) == k {
				break
			}
		}
		return out, nil
	}

	n, ok := db.graph.GetNoun(id)
	if !ok {
		return nil, verrors.NotFound("noun", id)
	}
	results, err := db.Search(ctx, n.Vector, k+1, opts)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.ID == id {
			continue
		}
		out = append(out, r)
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (db *DB) searchIndex(ctx context.Context, idx annIndex, vec []float32, k int) ([]indexHit, error) {
	if idx == nil {
		return nil, nil
	}
	results, err := idx.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	hits := make([]indexHit, len(results))
	for i, r := range results {
		hits[i] = indexHit{ID: r.ID, Distance: r.Distance}
	}
	return hits, nil
}

type indexHit struct {
	ID       string
	Distance float32
}

func nounKindAllowed(kind graph.NounKind, allowed []graph.NounKind) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, k := range allowed {
		if k == kind {
			return true
		}
	}
	return false
}

func verbKindAllowed(kind string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, k := range allowed {
		if k == kind {
			return true
		}
	}
	return false
}
