package quantize

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// ProductQuantizer splits a vector into nsub equal-width sub-vectors and
// quantizes each independently against its own codebook of ksub centroids,
// following the classic PQ scheme (Jegou et al.). Codes are stored as one
// byte per sub-vector, so ksub must be <= 256.
type ProductQuantizer struct {
	dim       int
	nsub      int
	subDim    int
	ksub      int
	codebooks [][][]float32 // codebooks[sub][centroid] -> subDim floats
}

// TrainProductQuantizer trains codebooks from samples. dim must be evenly
// divisible by nsub. ksub is the centroid count per sub-quantizer (typically
// 256 for a one-byte code); it is reduced automatically if there are fewer
// training samples than centroids requested.
func TrainProductQuantizer(samples [][]float32, nsub, ksub int) *ProductQuantizer {
	dim := len(samples[0])
	subDim := dim / nsub

	if ksub > len(samples) {
		ksub = len(samples)
	}
	if ksub < 1 {
		ksub = 1
	}

	pq := &ProductQuantizer{
		dim:       dim,
		nsub:      nsub,
		subDim:    subDim,
		ksub:      ksub,
		codebooks: make([][][]float32, nsub),
	}

	for s := 0; s < nsub; s++ {
		subvecs := make([][]float32, len(samples))
		for i, v := range samples {
			start := s * subDim
			subvecs[i] = v[start : start+subDim]
		}
		pq.codebooks[s] = kmeans(subvecs, ksub, subDim)
	}
	return pq
}

// kmeans runs Lloyd's algorithm over the given sub-vectors, returning k
// centroids. Centroid accumulation uses gonum/floats for the per-cluster
// running sums.
func kmeans(vecs [][]float32, k, dim int) [][]float32 {
	centroids := make([][]float32, k)
	for c := 0; c < k; c++ {
		centroids[c] = append([]float32{}, vecs[rand.Intn(len(vecs))]...)
	}

	const maxIterations = 20
	assign := make([]int, len(vecs))

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, v := range vecs {
			best, bestDist := 0, float32(math.MaxFloat32)
			for c, centroid := range centroids {
				d := sqDist(v, centroid)
				if d < bestDist {
					bestDist = d
					best = c
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := 0; c < k; c++ {
			sums[c] = make([]float64, dim)
		}
		for i, v := range vecs {
			c := assign[i]
			counts[c]++
			for d := 0; d < dim; d++ {
				sums[c][d] += float64(v[d])
			}
		}

		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			scaled := make([]float64, dim)
			floats.AddScaled(scaled, 1/float64(counts[c]), sums[c])
			newCentroid := make([]float32, dim)
			for d := 0; d < dim; d++ {
				newCentroid[d] = float32(scaled[d])
			}
			centroids[c] = newCentroid
		}

		if !changed {
			break
		}
	}
	return centroids
}

func sqDist(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(sum)
}

// Encode returns the one-byte-per-subvector PQ code for vec.
func (pq *ProductQuantizer) Encode(vec []float32) []byte {
	code := make([]byte, pq.nsub)
	for s := 0; s < pq.nsub; s++ {
		start := s * pq.subDim
		sub := vec[start : start+pq.subDim]
		best, bestDist := 0, float32(math.MaxFloat32)
		for c, centroid := range pq.codebooks[s] {
			d := sqDist(sub, centroid)
			if d < bestDist {
				bestDist = d
				best = c
			}
		}
		code[s] = byte(best)
	}
	return code
}

// Decode reconstructs an approximate vector from a PQ code.
func (pq *ProductQuantizer) Decode(code []byte) []float32 {
	out := make([]float32, pq.dim)
	for s := 0; s < pq.nsub; s++ {
		centroid := pq.codebooks[s][int(code[s])]
		copy(out[s*pq.subDim:(s+1)*pq.subDim], centroid)
	}
	return out
}

// AsymmetricDistanceTable precomputes, for the given query, the squared
// distance from each query sub-vector to every centroid in that
// sub-quantizer's codebook. EstimateDistance then sums table lookups
// instead of decoding + computing full distance, per node.
type AsymmetricDistanceTable struct {
	pq     *ProductQuantizer
	tables [][]float32 // tables[sub][centroid]
}

// BuildDistanceTable precomputes per-subvector distance tables for query.
func (pq *ProductQuantizer) BuildDistanceTable(query []float32) *AsymmetricDistanceTable {
	tables := make([][]float32, pq.nsub)
	for s := 0; s < pq.nsub; s++ {
		start := s * pq.subDim
		sub := query[start : start+pq.subDim]
		tables[s] = make([]float32, len(pq.codebooks[s]))
		for c, centroid := range pq.codebooks[s] {
			tables[s][c] = sqDist(sub, centroid)
		}
	}
	return &AsymmetricDistanceTable{pq: pq, tables: tables}
}

// EstimateDistance returns the asymmetric squared-distance estimate between
// the table's query and a quantized node code, without ever decoding it.
func (t *AsymmetricDistanceTable) EstimateDistance(code []byte) float32 {
	var sum float32
	for s, c := range code {
		sum += t.tables[s][int(c)]
	}
	return sum
}
