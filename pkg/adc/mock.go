package adc

import (
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// SineConfig describes a synthetic mains waveform as seen at the ADC pin.
type SineConfig struct {
	Offset     float64 // DC bias, fraction of full scale
	Amplitude  float64 // Peak deviation, fraction of full scale
	Frequency  float64 // Hz
	Phase      float64 // Radians
	NoiseLevel float64 // Peak uniform noise, fraction of full scale
	Seed       uint64
	Range      Range
}

// Sine simulates a transducer output for development and tests. The value
// depends on the time reported by now, so a fake clock yields a fully
// deterministic waveform.
type Sine struct {
	cfg   SineConfig
	now   func() time.Time
	start time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSine creates a synthetic sine channel. A nil now uses time.Now.
func NewSine(cfg SineConfig, now func() time.Time) *Sine {
	if now == nil {
		now = time.Now
	}
	return &Sine{
		cfg:   cfg,
		now:   now,
		start: now(),
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// Read returns the waveform value at the current time.
func (s *Sine) Read() (float64, error) {
	t := s.now().Sub(s.start).Seconds()
	v := s.cfg.Offset + s.cfg.Amplitude*math.Sin(2*math.Pi*s.cfg.Frequency*t+s.cfg.Phase)

	if s.cfg.NoiseLevel > 0 {
		s.mu.Lock()
		v += (s.rng.Float64()*2 - 1) * s.cfg.NoiseLevel
		s.mu.Unlock()
	}

	return s.cfg.Range.Clamp(v), nil
}

// Range returns the declared range.
func (s *Sine) Range() Range {
	return s.cfg.Range
}

// Constant always reads the same value.
type Constant struct {
	Value float64
	Rng   Range
}

// Read returns the constant value clamped to the range.
func (c *Constant) Read() (float64, error) {
	return c.Rng.Clamp(c.Value), nil
}

// Range returns the declared range.
func (c *Constant) Range() Range {
	return c.Rng
}

// ErrInjected is the default error returned by Sequence after FailAfter reads.
var ErrInjected = errors.New("injected read failure")

// Sequence replays fixed readings in order, wrapping around at the end.
type Sequence struct {
	Values []float64
	Rng    Range
	// FailAfter makes the read with this zero-based index, and every one after
	// it, fail. Zero disables failures.
	FailAfter int
	Err       error

	mu    sync.Mutex
	reads int
}

// Read returns the next value.
func (s *Sequence) Read() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.reads
	s.reads++

	if s.FailAfter > 0 && n >= s.FailAfter {
		if s.Err != nil {
			return 0, s.Err
		}
		return 0, ErrInjected
	}
	if len(s.Values) == 0 {
		return 0, nil
	}
	return s.Rng.Clamp(s.Values[n%len(s.Values)]), nil
}

// Range returns the declared range.
func (s *Sequence) Range() Range {
	return s.Rng
}

// Reads returns the number of Read calls so far.
func (s *Sequence) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}
