package quantize

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarQuantizerRoundTrip(t *testing.T) {
	samples := [][]float32{
		{0, 0, 0},
		{10, -5, 2},
		{5, 5, 1},
	}
	q := TrainScalar(samples)
	input := []float32{5, 0, 1}
	code := q.Encode(input)
	decoded := q.Decode(code)
	require.Len(t, decoded, 3)
	for i := range decoded {
		assert.InDelta(t, input[i], decoded[i], 15, "decoded value should be close to the encoded input")
	}
}

func TestScalarQuantizerConstantDimension(t *testing.T) {
	samples := [][]float32{{1, 1}, {1, 1}, {1, 1}}
	q := TrainScalar(samples)
	code := q.Encode([]float32{1, 1})
	decoded := q.Decode(code)
	assert.Equal(t, []float32{1, 1}, decoded)
}

func TestProductQuantizerEncodeDecode(t *testing.T) {
	rand.Seed(1)
	samples := make([][]float32, 64)
	for i := range samples {
		samples[i] = []float32{float32(i % 8), float32(i % 4), float32(i % 2), float32(i)}
	}
	pq := TrainProductQuantizer(samples, 2, 8)

	v := samples[5]
	code := pq.Encode(v)
	require.Len(t, code, 2)

	decoded := pq.Decode(code)
	require.Len(t, decoded, 4)
}

func TestAsymmetricDistanceTableMatchesDecode(t *testing.T) {
	rand.Seed(2)
	samples := make([][]float32, 40)
	for i := range samples {
		samples[i] = []float32{float32(i), float32(i * 2), float32(i % 5), float32(i % 3)}
	}
	pq := TrainProductQuantizer(samples, 2, 8)

	query := []float32{3, 6, 1, 2}
	table := pq.BuildDistanceTable(query)

	code := pq.Encode(samples[10])
	est := table.EstimateDistance(code)
	assert.GreaterOrEqual(t, est, float32(0))
	assert.InDelta(t, sqDist(query, pq.Decode(code)), est, 1e-2)
}
