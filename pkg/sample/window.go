package sample

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/itohio/gopfm/pkg/adc"
)

// ErrInvalidCount is returned when a window is asked for fewer than one sample.
var ErrInvalidCount = errors.New("sample count must be at least 1")

// ReadError reports the channel failure that aborted a window.
type ReadError struct {
	Index int // Zero-based sample index that failed
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("channel read failed at sample %d: %v", e.Index, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Stats holds statistics of one window in raw channel units.
type Stats struct {
	Count int
	Mean  float64
	RMS   float64
}

// NewStats computes mean and RMS over exactly samples. Both use running
// means, so a constant window yields exactly that constant.
func NewStats(samples []float64) Stats {
	if len(samples) == 0 {
		return Stats{}
	}

	var mean, meanSq float64
	for i, v := range samples {
		k := float64(i + 1)
		mean += (v - mean) / k
		meanSq += (v*v - meanSq) / k
	}

	return Stats{
		Count: len(samples),
		Mean:  mean,
		RMS:   math.Sqrt(meanSq),
	}
}

// Window is a reusable description of how to take a batch of readings.
// Every Collect call produces a fresh batch; nothing is carried over.
type Window struct {
	Channel  adc.Channel
	Count    int
	Interval time.Duration
	Clock    Clock
}

// Collect draws one batch.
func (w Window) Collect(ctx context.Context) ([]float64, error) {
	return Collect(ctx, w.Channel, w.Count, w.Interval, w.Clock)
}

// Stats draws one batch and returns its statistics.
func (w Window) Stats(ctx context.Context) (Stats, error) {
	return CollectStats(ctx, w.Channel, w.Count, w.Interval, w.Clock)
}

// Collect draws exactly count samples from ch. Sample k is read no earlier
// than start + k*interval, where start is the time of the first read, so
// slow reads do not accumulate drift. A zero interval reads back to back.
// A nil clock uses SystemClock.
func Collect(ctx context.Context, ch adc.Channel, count int, interval time.Duration, clock Clock) ([]float64, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}
	if clock == nil {
		clock = SystemClock{}
	}

	samples := make([]float64, count)
	start := clock.Now()

	for k := range count {
		if k > 0 && interval > 0 {
			deadline := start.Add(time.Duration(k) * interval)
			if err := clock.SleepUntil(ctx, deadline); err != nil {
				return nil, err
			}
		} else if err := ctx.Err(); err != nil {
			return nil, err
		}

		v, err := ch.Read()
		if err != nil {
			return nil, &ReadError{Index: k, Err: err}
		}
		samples[k] = v
	}

	return samples, nil
}

// CollectStats draws one batch and computes its statistics.
func CollectStats(ctx context.Context, ch adc.Channel, count int, interval time.Duration, clock Clock) (Stats, error) {
	samples, err := Collect(ctx, ch, count, interval, clock)
	if err != nil {
		return Stats{}, err
	}
	return NewStats(samples), nil
}
