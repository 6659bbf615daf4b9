// Package quantize implements the vector compression schemes used by the
// optimized HNSW variant: an 8-bit per-dimension scalar quantizer and a
// product quantizer with k-means-trained codebooks.
package quantize

import "math"

// ScalarQuantizer maps each dimension independently onto an 8-bit code
// using a per-dimension [min, max] range learned from a training sample.
type ScalarQuantizer struct {
	min   []float32
	scale []float32 // (max-min)/255, 0 if the dimension is constant
}

// TrainScalar fits a ScalarQuantizer to the given sample of vectors, all of
// which must share the same dimension.
func TrainScalar(samples [][]float32) *ScalarQuantizer {
	if len(samples) == 0 {
		return &ScalarQuantizer{}
	}
	dim := len(samples[0])
	mn := make([]float32, dim)
	mx := make([]float32, dim)
	copy(mn, samples[0])
	copy(mx, samples[0])

	for _, v := range samples[1:] {
		for d := 0; d < dim; d++ {
			if v[d] < mn[d] {
				mn[d] = v[d]
			}
			if v[d] > mx[d] {
				mx[d] = v[d]
			}
		}
	}

	scale := make([]float32, dim)
	for d := 0; d < dim; d++ {
		r := mx[d] - mn[d]
		if r > 0 {
			scale[d] = r / 255
		}
	}
	return &ScalarQuantizer{min: mn, scale: scale}
}

// Encode quantizes vec to an 8-bit code per dimension.
func (q *ScalarQuantizer) Encode(vec []float32) []byte {
	code := make([]byte, len(vec))
	for d, v := range vec {
		if q.scale[d] == 0 {
			code[d] = 0
			continue
		}
		c := (v - q.min[d]) / q.scale[d]
		code[d] = clampByte(c)
	}
	return code
}

// Decode reconstructs an approximate vector from a quantized code.
func (q *ScalarQuantizer) Decode(code []byte) []float32 {
	out := make([]float32, len(code))
	for d, c := range code {
		out[d] = q.min[d] + float32(c)*q.scale[d]
	}
	return out
}

func clampByte(c float32) byte {
	if c <= 0 {
		return 0
	}
	if c >= 255 {
		return 255
	}
	return byte(math.Round(float64(c)))
}
