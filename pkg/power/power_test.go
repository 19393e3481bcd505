package power

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineWindow(n int, amplitude, offset float64) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = offset + amplitude*math.Sin(2*math.Pi*float64(i)/float64(n))
	}
	return v
}

func TestCompute_NoiseFloor(t *testing.T) {
	tests := []struct {
		name     string
		voltages []float64
	}{
		{"sine", sineWindow(100, 170, 0)},
		{"dc", []float64{120, 120, 120}},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Compute(tt.voltages, 0.3)
			assert.Equal(t, 0.0, r.CurrentRMS)
			assert.Equal(t, 0.0, r.Apparent)
			assert.Equal(t, 0.0, r.Active)
			assert.Equal(t, 0.0, r.Reactive)
		})
	}
}

func TestCompute_AtNoiseFloor(t *testing.T) {
	r := Compute([]float64{1, 1}, DefaultNoiseFloor)
	assert.Equal(t, DefaultNoiseFloor, r.CurrentRMS)
}

func TestCompute_ZeroApparent(t *testing.T) {
	tests := []struct {
		name     string
		voltages []float64
		current  float64
	}{
		{"no current", sineWindow(100, 1, 0), 0},
		{"no voltage", make([]float64, 50), 5},
		{"empty window", nil, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Compute(tt.voltages, tt.current)
			assert.Equal(t, 0.0, r.Apparent)
			assert.Equal(t, 0.0, r.PowerFactor)
			assert.Equal(t, math.Pi/2, r.PhaseAngle)
			assert.InDelta(t, 90, r.PhaseDegrees(), 1e-12)
		})
	}
}

func TestCompute_ReactiveTriangle(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for range 500 {
		n := 1 + rng.IntN(200)
		voltages := make([]float64, n)
		for i := range voltages {
			voltages[i] = (rng.Float64()*2 - 1) * 400
		}
		current := rng.Float64() * 50

		r := Compute(voltages, current)
		require.GreaterOrEqual(t, r.Reactive, 0.0)
		require.GreaterOrEqual(t, r.Apparent*(1+1e-12)+1e-12, math.Abs(r.Active))

		lhs := r.Reactive*r.Reactive + r.Active*r.Active
		rhs := r.Apparent * r.Apparent
		require.InDelta(t, rhs, lhs, 1e-9*math.Max(1, rhs))

		require.LessOrEqual(t, math.Abs(r.PowerFactor), 1+1e-12)
		require.False(t, math.IsNaN(r.PhaseAngle))
	}
}

func TestCompute_PureDC(t *testing.T) {
	// Constant voltage: P == S, PF rounds to 1, clamp keeps acos defined
	voltages := []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1}
	r := Compute(voltages, 7.3)

	assert.InDelta(t, 1, r.PowerFactor, 1e-12)
	assert.False(t, math.IsNaN(r.PhaseAngle))
	assert.InDelta(t, 0, r.PhaseAngle, 1e-6)
	assert.GreaterOrEqual(t, r.Reactive, 0.0)
	assert.InDelta(t, 0, r.Reactive, 1e-6)
}

func TestCompute_Sine(t *testing.T) {
	voltages := sineWindow(100, 1, 0)
	r := Compute(voltages, 5.0)

	assert.InDelta(t, 0.70710678, r.VoltageRMS, 1e-6)
	assert.Equal(t, 5.0, r.CurrentRMS)
	assert.InDelta(t, 3.5355339, r.Apparent, 1e-6)
	// Zero-mean window: active power vanishes up to rounding
	assert.InDelta(t, 0, r.PowerFactor, 1e-9)
	assert.LessOrEqual(t, r.PowerFactor, 1.0)
	assert.InDelta(t, r.Apparent, r.Reactive, 1e-6)
}

func TestCompute_Offset(t *testing.T) {
	// Unipolar ADC: waveform rides on a DC bias
	voltages := sineWindow(100, 1, 1)
	r := Compute(voltages, 2)

	assert.InDelta(t, math.Sqrt(1.5), r.VoltageRMS, 1e-9)
	assert.InDelta(t, 2, r.Active, 1e-9)
	assert.InDelta(t, 1/math.Sqrt(1.5), r.PowerFactor, 1e-9)
	assert.InDelta(t, math.Acos(1/math.Sqrt(1.5)), r.PhaseAngle, 1e-9)
}

func TestCalculator_CustomFloor(t *testing.T) {
	c := Calculator{NoiseFloor: 1}
	r := c.Compute([]float64{1, -1}, 0.5)
	assert.Equal(t, 0.0, r.CurrentRMS)

	z := Calculator{}
	r = z.Compute([]float64{1, -1}, 0.05)
	assert.Equal(t, 0.05, r.CurrentRMS)
	assert.InDelta(t, 0.05, r.Apparent, 1e-12)
}

func TestCompute_NonFiniteCurrent(t *testing.T) {
	tests := []struct {
		name    string
		current float64
	}{
		{"nan", math.NaN()},
		{"positive infinity", math.Inf(1)},
		{"negative infinity", math.Inf(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Compute([]float64{1, -1, 0.5}, tt.current)
			assert.Equal(t, 0.0, r.CurrentRMS)
			assert.Equal(t, 0.0, r.Apparent)
			assert.Equal(t, 0.0, r.Active)
			assert.Equal(t, 0.0, r.Reactive)
			assert.Equal(t, 0.0, r.PowerFactor)
			assert.Equal(t, math.Pi/2, r.PhaseAngle)
		})
	}
}

func TestCompute_NaNVoltage(t *testing.T) {
	r := Compute([]float64{1, math.NaN()}, 5)
	assert.Equal(t, 0.0, r.PowerFactor)
	assert.Equal(t, math.Pi/2, r.PhaseAngle)
}

func TestCompute_Pure(t *testing.T) {
	voltages := sineWindow(64, 2, 0.3)
	orig := append([]float64(nil), voltages...)

	a := Compute(voltages, 3)
	b := Compute(voltages, 3)
	assert.Equal(t, a, b)
	assert.Equal(t, orig, voltages)
}
