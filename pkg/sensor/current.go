package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/itohio/gopfm/pkg/adc"
	"github.com/itohio/gopfm/pkg/sample"
)

// CurrentMeter is anything that yields a calibrated (voltage, current) pair.
type CurrentMeter interface {
	Measure(ctx context.Context) (voltage, current float64, err error)
}

var (
	_ CurrentMeter = (*Current)(nil)
	_ CurrentMeter = (*Transducer)(nil)
)

// CurrentConfig holds the constants of a voltage-output current transformer
// (MagneLab SCT style).
type CurrentConfig struct {
	VRef               float64
	Samples            int
	Interval           time.Duration
	MaxRatedCurrent    float64 // A at rated output
	MaxSensorVoltage   float64 // V output at rated current
	VoltageCalibration float64
	CurrentCalibration float64
}

// Current is a current transformer read through one ADC channel.
type Current struct {
	cfg    CurrentConfig
	window sample.Window
}

// NewCurrent creates a current transformer sensor.
func NewCurrent(ch adc.Channel, cfg CurrentConfig, clock sample.Clock) (*Current, error) {
	if ch == nil {
		return nil, errNoChannel
	}
	if cfg.MaxRatedCurrent <= 0 {
		return nil, fmt.Errorf("max rated current must be positive, got %g", cfg.MaxRatedCurrent)
	}
	if cfg.MaxSensorVoltage <= 0 {
		return nil, fmt.Errorf("max sensor voltage must be positive, got %g", cfg.MaxSensorVoltage)
	}
	if cfg.VRef <= 0 {
		return nil, fmt.Errorf("vref must be positive, got %g", cfg.VRef)
	}
	if cfg.Samples < 1 {
		return nil, sample.ErrInvalidCount
	}
	if clock == nil {
		clock = sample.SystemClock{}
	}

	return &Current{
		cfg: cfg,
		window: sample.Window{
			Channel:  ch,
			Count:    cfg.Samples,
			Interval: cfg.Interval,
			Clock:    clock,
		},
	}, nil
}

// Measure samples one fresh window and returns the calibrated average
// voltage and RMS current.
func (c *Current) Measure(ctx context.Context) (voltage, current float64, err error) {
	s, err := c.window.Stats(ctx)
	if err != nil {
		return 0, 0, err
	}

	avgVoltage := s.Mean * c.cfg.VRef
	rmsVoltage := s.RMS * c.cfg.VRef
	rmsCurrent := rmsVoltage / c.cfg.MaxSensorVoltage * c.cfg.MaxRatedCurrent

	return avgVoltage * c.cfg.VoltageCalibration, rmsCurrent * c.cfg.CurrentCalibration, nil
}

var errNoChannel = errors.New("nil channel")

// Transducer is a linear current transducer: one reading, scaled.
type Transducer struct {
	ch     adc.Channel
	vref   float64
	factor float64 // A per volt
}

// NewTransducer creates a linear transducer sensor.
func NewTransducer(ch adc.Channel, vref, factor float64) (*Transducer, error) {
	if ch == nil {
		return nil, errNoChannel
	}
	if vref <= 0 || factor <= 0 {
		return nil, fmt.Errorf("vref and factor must be positive, got %g and %g", vref, factor)
	}
	return &Transducer{ch: ch, vref: vref, factor: factor}, nil
}

// Measure reads once and returns (pin voltage, current).
func (t *Transducer) Measure(ctx context.Context) (voltage, current float64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	v, err := t.ch.Read()
	if err != nil {
		return 0, 0, &sample.ReadError{Index: 0, Err: err}
	}

	voltage = v * t.vref
	return voltage, voltage * t.factor, nil
}
