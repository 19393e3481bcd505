package adc

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRange_Clamp(t *testing.T) {
	tests := []struct {
		name string
		r    Range
		in   float64
		want float64
	}{
		{"unipolar in range", Unipolar, 0.25, 0.25},
		{"unipolar below", Unipolar, -0.5, 0},
		{"unipolar above", Unipolar, 1.5, 1},
		{"bipolar in range", Bipolar, -0.75, -0.75},
		{"bipolar below", Bipolar, -2, -1},
		{"bipolar above", Bipolar, 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Clamp(tt.in))
		})
	}
}

func TestSine_Deterministic(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }

	s := NewSine(SineConfig{
		Offset:    0.5,
		Amplitude: 0.4,
		Frequency: 50,
		Range:     Unipolar,
	}, clock)

	// t = 0
	v, err := s.Read()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-12)

	// Quarter period at 50 Hz is 5 ms, sin = 1
	now = now.Add(5 * time.Millisecond)
	v, err = s.Read()
	require.NoError(t, err)
	assert.InDelta(t, 0.9, v, 1e-9)

	// Three quarters, sin = -1
	now = now.Add(10 * time.Millisecond)
	v, err = s.Read()
	require.NoError(t, err)
	assert.InDelta(t, 0.1, v, 1e-9)
}

func TestSine_NoiseBounded(t *testing.T) {
	now := time.Unix(0, 0)
	s := NewSine(SineConfig{
		Offset:     0.5,
		NoiseLevel: 0.01,
		Seed:       42,
		Range:      Unipolar,
	}, func() time.Time { return now })

	for range 1000 {
		v, err := s.Read()
		require.NoError(t, err)
		assert.InDelta(t, 0.5, v, 0.01)
	}
}

func TestSine_Clamped(t *testing.T) {
	now := time.Unix(0, 0).Add(5 * time.Millisecond)
	s := NewSine(SineConfig{
		Offset:    0.5,
		Amplitude: 2,
		Frequency: 50,
		Range:     Unipolar,
	}, func() time.Time { return time.Unix(0, 0) })
	s.now = func() time.Time { return now }

	v, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
	assert.False(t, math.IsNaN(v))
}

func TestConstant(t *testing.T) {
	c := &Constant{Value: 0.3, Rng: Unipolar}
	v, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, 0.3, v)
	assert.Equal(t, Unipolar, c.Range())
}

func TestSequence(t *testing.T) {
	s := &Sequence{Values: []float64{0, 0.5, 1}, Rng: Unipolar}

	var got []float64
	for range 5 {
		v, err := s.Read()
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []float64{0, 0.5, 1, 0, 0.5}, got)
	assert.Equal(t, 5, s.Reads())
}

func TestSequence_FailAfter(t *testing.T) {
	boom := errors.New("boom")
	s := &Sequence{Values: []float64{0.1}, FailAfter: 2, Err: boom}

	_, err := s.Read()
	require.NoError(t, err)
	_, err = s.Read()
	require.NoError(t, err)
	_, err = s.Read()
	assert.ErrorIs(t, err, boom)
	_, err = s.Read()
	assert.ErrorIs(t, err, boom)

	d := &Sequence{Values: []float64{0.1}, FailAfter: 1}
	_, err = d.Read()
	require.NoError(t, err)
	_, err = d.Read()
	assert.ErrorIs(t, err, ErrInjected)
}
