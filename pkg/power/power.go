// Package power derives single-phase AC power parameters from a window of
// instantaneous voltages and one RMS current value.
package power

import (
	"math"
	"time"
)

// DefaultNoiseFloor is the current (A) below which the load is treated as off.
const DefaultNoiseFloor = 0.4

// Reading is the full power-parameter tuple of one acquisition cycle.
type Reading struct {
	Timestamp   time.Time
	VoltageRMS  float64 // V
	CurrentRMS  float64 // A
	Apparent    float64 // VA
	Active      float64 // W
	Reactive    float64 // var
	PowerFactor float64
	PhaseAngle  float64 // Radians
}

// PhaseDegrees returns the phase angle in degrees.
func (r Reading) PhaseDegrees() float64 {
	return r.PhaseAngle * 180 / math.Pi
}

// Calculator computes readings. The zero value uses no noise floor; use
// NewCalculator for the default.
type Calculator struct {
	NoiseFloor float64
}

// NewCalculator returns a calculator with DefaultNoiseFloor.
func NewCalculator() Calculator {
	return Calculator{NoiseFloor: DefaultNoiseFloor}
}

// Compute derives power parameters using DefaultNoiseFloor.
func Compute(voltages []float64, currentRMS float64) Reading {
	return NewCalculator().Compute(voltages, currentRMS)
}

// Compute derives power parameters from voltages and currentRMS.
//
// The current is a single RMS value applied to every voltage sample, so the
// active power is only exact while the current is steady across the window.
func (c Calculator) Compute(voltages []float64, currentRMS float64) Reading {
	if currentRMS < c.NoiseFloor || math.IsNaN(currentRMS) || math.IsInf(currentRMS, 0) {
		currentRMS = 0
	}

	var sumSq, sumInst float64
	for _, v := range voltages {
		sumSq += v * v
		sumInst += v * currentRMS
	}

	var vRMS, active float64
	if n := float64(len(voltages)); n > 0 {
		vRMS = math.Sqrt(sumSq / n)
		active = sumInst / n
	}

	apparent := vRMS * currentRMS

	var pf float64
	if apparent != 0 {
		pf = active / apparent
	}
	if math.IsNaN(pf) {
		pf = 0
	}

	return Reading{
		VoltageRMS:  vRMS,
		CurrentRMS:  currentRMS,
		Apparent:    apparent,
		Active:      active,
		Reactive:    math.Sqrt(math.Max(apparent*apparent-active*active, 0)),
		PowerFactor: pf,
		PhaseAngle:  math.Acos(clamp(pf, -1, 1)),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
