package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 0},
		{"unit apart", []float32{0, 0, 0}, []float32{1, 0, 0}, 1},
		{"3-4-5", []float32{0, 0}, []float32{3, 4}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, EuclideanDistance(tt.a, tt.b), 1e-5)
		})
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 0},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 1},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, 2},
		{"zero vector a", []float32{0, 0, 0}, []float32{1, 0, 0}, 1},
		{"zero vector b", []float32{1, 0, 0}, []float32{0, 0, 0}, 1},
		{"both zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CosineDistance(tt.a, tt.b), 1e-5)
		})
	}
}

func TestManhattanDistance(t *testing.T) {
	assert.InDelta(t, 0, ManhattanDistance([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-6)
	assert.InDelta(t, 6, ManhattanDistance([]float32{0, 0, 0}, []float32{1, 2, 3}), 1e-6)
}

func TestNegativeDotDistance(t *testing.T) {
	assert.InDelta(t, -32, NegativeDotDistance([]float32{1, 2, 3}, []float32{4, 5, 6}), 1e-6)
}

func TestDistanceDispatch(t *testing.T) {
	a, b := []float32{1, 0, 0}, []float32{0, 1, 0}
	assert.Equal(t, EuclideanDistance(a, b), Distance(Euclidean, a, b))
	assert.Equal(t, CosineDistance(a, b), Distance(Cosine, a, b))
	assert.Equal(t, ManhattanDistance(a, b), Distance(Manhattan, a, b))
	assert.Equal(t, NegativeDotDistance(a, b), Distance(NegativeDot, a, b))
}

func TestNormalize(t *testing.T) {
	n := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, n[0], 1e-5)
	assert.InDelta(t, 0.8, n[1], 1e-5)

	z := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, z)
}

func TestMean(t *testing.T) {
	m := Mean([]float32{0, 0}, []float32{2, 4})
	assert.Equal(t, []float32{1, 2}, m)
}

func TestParseKernel(t *testing.T) {
	assert.Equal(t, Cosine, ParseKernel("cosine"))
	assert.Equal(t, Manhattan, ParseKernel("manhattan"))
	assert.Equal(t, NegativeDot, ParseKernel("dot"))
	assert.Equal(t, Euclidean, ParseKernel("nonsense"))
}
