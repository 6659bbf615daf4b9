// Package filter provides a lightweight scalar Kalman filter used to smooth
// noisy time series without matrix math. Based on the imu-f flight
// controller's filter (https://github.com/heliorc/imu-f), adapted here for
// tracking query latency instead of sensor readings.
package filter

import (
	"math"
	"sync"
)

// Config holds Kalman filter tuning parameters.
type Config struct {
	// ProcessNoise (Q): how much the true state is expected to drift between
	// measurements. Higher is more responsive, noisier.
	ProcessNoise float64
	// MeasurementNoise (R): how much an individual measurement is distrusted.
	// Higher is smoother, slower to respond.
	MeasurementNoise float64
	// InitialCovariance (P): starting uncertainty.
	InitialCovariance float64
	// VarianceScale: multiplier used by UpdateAdaptiveR.
	VarianceScale float64
}

// DefaultConfig returns general-purpose tuning, seeded from imu-f.
func DefaultConfig() Config {
	return Config{
		ProcessNoise:      0.1,
		MeasurementNoise:  88.0,
		InitialCovariance: 30.0,
		VarianceScale:     10.0,
	}
}

// LatencyConfig returns tuning for smoothing query latency measurements.
func LatencyConfig() Config {
	return Config{
		ProcessNoise:      0.15,
		MeasurementNoise:  60.0,
		InitialCovariance: 25.0,
		VarianceScale:     10.0,
	}
}

// Kalman is a scalar Kalman filter with velocity-based prediction: each
// update projects the state forward using the last observed rate of change,
// then blends that projection with the new measurement.
type Kalman struct {
	mu sync.RWMutex

	x     float64
	lastX float64
	p     float64
	p0    float64 // configured InitialCovariance, restored by Reset
	k     float64
	e     float64

	q             float64
	r             float64
	varianceScale float64

	observations int
	innovations  []float64
	maxHistory   int
}

// NewKalman creates a filter with the given configuration.
func NewKalman(cfg Config) *Kalman {
	return &Kalman{
		p:             cfg.InitialCovariance,
		p0:            cfg.InitialCovariance,
		e:             1.0,
		q:             cfg.ProcessNoise * 0.001,
		r:             cfg.MeasurementNoise,
		varianceScale: cfg.VarianceScale,
		innovations:   make([]float64, 0, 32),
		maxHistory:    32,
	}
}

// NewKalmanWithInitial creates a filter seeded with an initial state.
func NewKalmanWithInitial(cfg Config, initialState float64) *Kalman {
	k := NewKalman(cfg)
	k.x = initialState
	k.lastX = initialState
	return k
}

// Process updates the filter with a new measurement and an optional
// setpoint target (0 to disable setpoint-based error boosting), returning
// the smoothed estimate.
func (k *Kalman) Process(measurement, target float64) float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.processLocked(measurement, target)
}

func (k *Kalman) processLocked(measurement, target float64) float64 {
	velocity := k.x - k.lastX
	k.x += velocity
	k.lastX = k.x

	if target != 0.0 && k.lastX != 0.0 {
		k.e = math.Abs(1.0 - (target / k.lastX))
	} else {
		k.e = 1.0
	}

	k.p = k.p + (k.q * k.e)
	k.k = k.p / (k.p + k.r)

	innovation := measurement - k.x
	k.x += k.k * innovation
	k.p = (1.0 - k.k) * k.p

	k.trackInnovation(innovation)
	k.observations++
	return k.x
}

// ProcessBatch processes several measurements in sequence.
func (k *Kalman) ProcessBatch(measurements []float64, target float64) []float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]float64, len(measurements))
	for i, m := range measurements {
		out[i] = k.processLocked(m, target)
	}
	return out
}

// Predict projects the state `steps` measurements into the future using the
// current velocity. Does not mutate filter state.
func (k *Kalman) Predict(steps int) float64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	velocity := k.x - k.lastX
	return k.x + (float64(steps) * velocity)
}

// State returns the current smoothed estimate.
func (k *Kalman) State() float64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.x
}

// Velocity returns the current rate of change (positive = increasing).
func (k *Kalman) Velocity() float64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.x - k.lastX
}

// Covariance returns the current estimate uncertainty.
func (k *Kalman) Covariance() float64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.p
}

// Observations returns how many measurements have been processed.
func (k *Kalman) Observations() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.observations
}

// Reset returns the filter to its initial state.
func (k *Kalman) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.x = 0
	k.lastX = 0
	k.p = k.p0
	k.k = 0
	k.e = 1.0
	k.observations = 0
	k.innovations = k.innovations[:0]
}

func (k *Kalman) trackInnovation(innovation float64) {
	k.innovations = append(k.innovations, innovation)
	if len(k.innovations) > k.maxHistory {
		k.innovations = k.innovations[1:]
	}
}

// UpdateAdaptiveR recalculates measurement noise from recent innovation
// variance. Call periodically (every 10-20 observations).
func (k *Kalman) UpdateAdaptiveR() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.innovations) < 5 {
		return
	}
	var sum, sumSq float64
	n := float64(len(k.innovations))
	for _, inn := range k.innovations {
		sum += inn
		sumSq += inn * inn
	}
	mean := sum / n
	variance := math.Abs(sumSq/n - mean*mean)

	k.r = math.Sqrt(variance) * k.varianceScale
	if k.r < 1.0 {
		k.r = 1.0
	}
}

// Stats is a snapshot of filter state for diagnostics.
type Stats struct {
	State            float64
	Velocity         float64
	Covariance       float64
	Gain             float64
	MeasurementNoise float64
	Observations     int
}

// GetStats returns a snapshot of the filter's current state.
func (k *Kalman) GetStats() Stats {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return Stats{
		State:            k.x,
		Velocity:         k.x - k.lastX,
		Covariance:       k.p,
		Gain:             k.k,
		MeasurementNoise: k.r,
		Observations:     k.observations,
	}
}
