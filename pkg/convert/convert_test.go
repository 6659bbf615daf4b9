package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToFloat64(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected float64
		ok       bool
	}{
		{"float64", 3.14, 3.14, true},
		{"float32", float32(2.5), 2.5, true},
		{"int", 42, 42.0, true},
		{"int64", int64(99), 99.0, true},
		{"int32", int32(50), 50.0, true},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
		{"string", "3.14", 0, false},
		{"slice", []int{1, 2}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToFloat64(tt.input)
			assert.Equal(t, tt.ok, ok, "ok mismatch")
			if ok {
				assert.InDelta(t, tt.expected, got, 0.0001, "value mismatch")
			}
		})
	}
}

func TestToFloat32Slice(t *testing.T) {
	t.Run("[]float32", func(t *testing.T) {
		input := []float32{1.0, 2.0, 3.0}
		got := ToFloat32Slice(input)
		assert.Equal(t, input, got)
	})

	t.Run("[]float64", func(t *testing.T) {
		input := []float64{1.0, 2.0, 3.0}
		got := ToFloat32Slice(input)
		assert.Equal(t, []float32{1.0, 2.0, 3.0}, got)
	})

	t.Run("[]interface{} numeric, JSON-decoded shape", func(t *testing.T) {
		input := []interface{}{1.0, 2.5, 3.0}
		got := ToFloat32Slice(input)
		assert.Equal(t, []float32{1.0, 2.5, 3.0}, got)
	})

	t.Run("[]interface{} drops unconvertible elements", func(t *testing.T) {
		input := []interface{}{1.0, "nope", 3.0}
		got := ToFloat32Slice(input)
		assert.Equal(t, []float32{1.0, 3.0}, got)
	})

	t.Run("invalid type", func(t *testing.T) {
		got := ToFloat32Slice("not a slice")
		assert.Nil(t, got)
	})
}

func BenchmarkToFloat64Int(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ToFloat64(42)
	}
}

func BenchmarkToFloat32Slice(b *testing.B) {
	input := []interface{}{1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0, 8.0, 9.0, 10.0}
	for i := 0; i < b.N; i++ {
		ToFloat32Slice(input)
	}
}
