package vectordb

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/nounverb/nounverb/pkg/graph"
)

// GenerateOptions configures Generate, the random-graph helper used by
// benchmarks and the end-to-end test scenarios to build a database of a
// given shape without a real embedding source.
type GenerateOptions struct {
	NounCount  int
	VerbCount  int
	Dimensions int
	NounKinds  []graph.NounKind
	VerbKinds  []string
	Rand       *rand.Rand
}

// Generate inserts NounCount random-vector nouns (cycling through
// opts.NounKinds, or untyped if empty) and VerbCount random edges between
// them (cycling through opts.VerbKinds), returning the generated noun ids.
func (db *DB) Generate(ctx context.Context, opts GenerateOptions) ([]string, error) {
	r := opts.Rand
	if r == nil {
		r = rand.New(rand.NewSource(1))
	}
	dims := opts.Dimensions
	if dims == 0 {
		dims = 512
	}

	ids := make([]string, 0, opts.NounCount)
	for i := 0; i < opts.NounCount; i++ {
		vec := randomVector(r, dims)
		var kind graph.NounKind
		if len(opts.NounKinds) > 0 {
			kind = opts.NounKinds[i%len(opts.NounKinds)]
		}
		id, err := db.Add(ctx, vec, nil, nil, AddOptions{Kind: kind})
		if err != nil {
			return nil, fmt.Errorf("generate noun %d: %w", i, err)
		}
		ids = append(ids, id)
	}

	if len(ids) < 2 {
		return ids, nil
	}

	for i := 0; i < opts.VerbCount; i++ {
		src := ids[r.Intn(len(ids))]
		tgt := ids[r.Intn(len(ids))]
		if src == tgt {
			continue
		}
		kind := "related_to"
		if len(opts.VerbKinds) > 0 {
			kind = opts.VerbKinds[i%len(opts.VerbKinds)]
		}
		if _, err := db.Relate(ctx, src, tgt, kind); err != nil {
			return ids, fmt.Errorf("generate verb %d: %w", i, err)
		}
	}

	return ids, nil
}

func randomVector(r *rand.Rand, dims int) []float32 {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = r.Float32()*2 - 1
	}
	return vec
}
