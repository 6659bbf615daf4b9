package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKalmanSmoothsNoisyMeasurements(t *testing.T) {
	k := NewKalman(LatencyConfig())

	measurements := []float64{10, 50, 12, 48, 11, 49, 10, 50}
	var last float64
	for _, m := range measurements {
		last = k.Process(m, 0)
	}
	// The smoothed estimate should sit well inside the oscillation band.
	assert.Greater(t, last, 5.0)
	assert.Less(t, last, 55.0)
}

func TestKalmanPredictUsesVelocity(t *testing.T) {
	k := NewKalmanWithInitial(DefaultConfig(), 10)
	for i := 0; i < 5; i++ {
		k.Process(10+float64(i+1)*2, 0)
	}
	assert.Greater(t, k.Velocity(), 0.0)
	assert.Greater(t, k.Predict(3), k.State())
}

func TestKalmanReset(t *testing.T) {
	k := NewKalman(DefaultConfig())
	k.Process(100, 0)
	assert.Equal(t, 1, k.Observations())
	k.Reset()
	assert.Equal(t, 0, k.Observations())
	assert.Equal(t, 0.0, k.State())
}
