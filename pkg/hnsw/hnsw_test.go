package hnsw

import (
	"testing"

	"github.com/nounverb/nounverb/pkg/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func euclideanConfig() Config {
	cfg := DefaultConfig()
	cfg.Kernel = vector.Euclidean
	return cfg
}

func TestInsertSearchDeleteToy(t *testing.T) {
	idx := New(3, euclideanConfig())

	require.NoError(t, idx.Add("id1", []float32{1, 0, 0}))
	require.NoError(t, idx.Add("id2", []float32{0, 1, 0}))
	require.NoError(t, idx.Add("id3", []float32{0.9, 0.1, 0}))

	res, err := idx.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "id1", res[0].ID)
	assert.InDelta(t, 0, res[0].Distance, 1e-6)
	assert.Equal(t, "id3", res[1].ID)

	ok := idx.Delete("id1")
	assert.True(t, ok)

	res, err = idx.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	ids := []string{res[0].ID, res[1].ID}
	assert.ElementsMatch(t, []string{"id2", "id3"}, ids)
}

func TestDimensionMismatchRejected(t *testing.T) {
	idx := New(3, euclideanConfig())
	require.NoError(t, idx.Add("a", []float32{1, 2, 3}))

	err := idx.Add("b", []float32{1, 2})
	require.Error(t, err)
	assert.Equal(t, 1, idx.Size())

	_, err = idx.Search([]float32{1, 2}, 1)
	require.Error(t, err)
}

func TestEmptyIndexSearchReturnsEmptyNotError(t *testing.T) {
	idx := New(3, euclideanConfig())
	res, err := idx.Search([]float32{1, 2, 3}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSearchResultsSortedAndBounded(t *testing.T) {
	idx := New(2, euclideanConfig())
	for i := 0; i < 50; i++ {
		v := []float32{float32(i), float32(i)}
		require.NoError(t, idx.Add(string(rune('a'+i)), v))
	}

	res, err := idx.Search([]float32{0, 0}, 5)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res), 5)
	for i := 1; i < len(res); i++ {
		assert.LessOrEqual(t, res[i-1].Distance, res[i].Distance)
	}
	seen := map[string]bool{}
	for _, r := range res {
		assert.False(t, seen[r.ID], "duplicate id in results")
		seen[r.ID] = true
	}
}

func TestNeighborLevelInvariant(t *testing.T) {
	idx := New(2, euclideanConfig())
	for i := 0; i < 80; i++ {
		v := []float32{float32(i % 7), float32((i * 3) % 11)}
		require.NoError(t, idx.Add(string(rune('A'+i)), v))
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for id, n := range idx.nodes {
		for l, neighbors := range n.neighbors {
			for _, nbrID := range neighbors {
				assert.NotEqual(t, id, nbrID, "node must not be its own neighbor")
				nbr, ok := idx.nodes[nbrID]
				require.True(t, ok)
				assert.GreaterOrEqual(t, nbr.level, l)
			}
		}
	}
}

func TestEntryPointInvariant(t *testing.T) {
	idx := New(2, euclideanConfig())
	assert.Equal(t, "", idx.entryPoint)

	require.NoError(t, idx.Add("a", []float32{1, 1}))
	require.NoError(t, idx.Add("b", []float32{2, 2}))
	require.NoError(t, idx.Add("c", []float32{3, 3}))

	idx.mu.RLock()
	ep := idx.entryPoint
	maxLevel := idx.maxLevel
	epLevel := idx.nodes[ep].level
	idx.mu.RUnlock()

	assert.NotEmpty(t, ep)
	assert.Equal(t, maxLevel, epLevel)

	idx.Delete("a")
	idx.Delete("b")
	idx.Delete("c")
	assert.Equal(t, 0, idx.Size())
}
