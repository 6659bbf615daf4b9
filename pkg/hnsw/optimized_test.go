package hnsw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimizedAddSearchDelete(t *testing.T) {
	cfg := DefaultOptimizedConfig()
	cfg.Quantization = NoQuantization
	o := NewOptimized(3, cfg)

	require.NoError(t, o.Add("a", []float32{1, 0, 0}))
	require.NoError(t, o.Add("b", []float32{0, 1, 0}))

	res, err := o.Search([]float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a", res[0].ID)

	assert.True(t, o.Delete("a"))
	assert.Equal(t, 1, o.Size())
}

func TestOptimizedTrainScalarQuantization(t *testing.T) {
	cfg := DefaultOptimizedConfig()
	cfg.Quantization = ScalarQuantization
	cfg.HotMinLevel = 100 // force everything non-hot once trained
	o := NewOptimized(4, cfg)

	for i := 0; i < 20; i++ {
		v := []float32{float32(i), float32(i % 3), float32(i % 5), float32(-i)}
		require.NoError(t, o.Add(string(rune('a'+i)), v))
	}

	require.NoError(t, o.Train())
	assert.True(t, o.trained)

	res, err := o.Search([]float32{5, 2, 0, -5}, 3)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res), 3)
}

func TestOptimizedAdaptiveEfSearchAdjusts(t *testing.T) {
	cfg := DefaultOptimizedConfig()
	cfg.TargetLatencyMS = 0.0001 // force "too slow" branch
	cfg.AdjustStep = 4
	o := NewOptimized(2, cfg)
	require.NoError(t, o.Add("a", []float32{0, 0}))

	before := o.CurrentEfSearch()
	for i := 0; i < 10; i++ {
		_, err := o.Search([]float32{0, 0}, 1)
		require.NoError(t, err)
	}
	after := o.CurrentEfSearch()
	assert.LessOrEqual(t, after, before)
}
