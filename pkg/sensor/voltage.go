package sensor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/itohio/gopfm/pkg/adc"
	"github.com/itohio/gopfm/pkg/sample"
)

// ErrCalibration is returned when the startup calibration cannot produce a
// finite, positive factor.
var ErrCalibration = errors.New("voltage self-calibration failed")

// VoltageConfig holds the construction-time constants of a mains voltage
// transformer (ZMPT101B style) on one ADC channel.
type VoltageConfig struct {
	VRef              float64 // ADC reference voltage
	Samples           int
	Interval          time.Duration
	Calibration       float64 // Static hardware constant
	ExpectedMainsRMS  float64 // Reference RMS assumed present at startup
	MinCalibrationRMS float64 // Sensor RMS below this counts as no signal

	WaveformSamples  int
	WaveformInterval time.Duration
	WaveformScale    float64 // Extra gain applied to waveform samples, 1 if unset
}

// Voltage is a calibrated mains voltage sensor.
type Voltage struct {
	cfg      VoltageConfig
	window   sample.Window
	waveform sample.Window
	factor   float64
}

// NewVoltage creates the sensor and runs the one-time self-calibration
// against cfg.ExpectedMainsRMS. It fails if no usable signal is present.
func NewVoltage(ctx context.Context, ch adc.Channel, cfg VoltageConfig, clock sample.Clock) (*Voltage, error) {
	if ch == nil {
		return nil, errNoChannel
	}
	if cfg.VRef <= 0 || cfg.Calibration <= 0 {
		return nil, fmt.Errorf("%w: vref and calibration must be positive", ErrCalibration)
	}
	if cfg.ExpectedMainsRMS <= 0 || math.IsInf(cfg.ExpectedMainsRMS, 0) || math.IsNaN(cfg.ExpectedMainsRMS) {
		return nil, fmt.Errorf("%w: expected mains rms must be positive and finite, got %g", ErrCalibration, cfg.ExpectedMainsRMS)
	}
	if clock == nil {
		clock = sample.SystemClock{}
	}

	waveformSamples := cfg.WaveformSamples
	if waveformSamples <= 0 {
		waveformSamples = cfg.Samples
	}
	v := &Voltage{
		cfg: cfg,
		window: sample.Window{
			Channel:  ch,
			Count:    cfg.Samples,
			Interval: cfg.Interval,
			Clock:    clock,
		},
		waveform: sample.Window{
			Channel:  ch,
			Count:    waveformSamples,
			Interval: cfg.WaveformInterval,
			Clock:    clock,
		},
	}

	factor, err := v.calibrate(ctx)
	if err != nil {
		return nil, err
	}
	v.factor = factor

	return v, nil
}

// calibrate derives expected / sensor RMS from one window.
func (v *Voltage) calibrate(ctx context.Context) (float64, error) {
	sensorRMS, err := v.sensorRMS(ctx)
	if err != nil {
		return 0, fmt.Errorf("calibration window: %w", err)
	}

	if sensorRMS <= 0 || math.IsNaN(sensorRMS) || math.IsInf(sensorRMS, 0) {
		return 0, fmt.Errorf("%w: no signal on voltage channel (sensor rms %g)", ErrCalibration, sensorRMS)
	}
	if sensorRMS < v.cfg.MinCalibrationRMS {
		return 0, fmt.Errorf("%w: sensor rms %g below minimum %g", ErrCalibration, sensorRMS, v.cfg.MinCalibrationRMS)
	}

	factor := v.cfg.ExpectedMainsRMS / sensorRMS
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return 0, fmt.Errorf("%w: factor %g is not finite", ErrCalibration, factor)
	}

	return factor, nil
}

// sensorRMS is the sensor-side RMS voltage of one fresh window.
func (v *Voltage) sensorRMS(ctx context.Context) (float64, error) {
	s, err := v.window.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return s.RMS * v.cfg.VRef * v.cfg.Calibration / math.Sqrt2, nil
}

// Measure returns the calibrated mains peak and RMS voltage.
func (v *Voltage) Measure(ctx context.Context) (peak, rms float64, err error) {
	sensorRMS, err := v.sensorRMS(ctx)
	if err != nil {
		return 0, 0, err
	}

	rms = math.Abs(sensorRMS * v.factor)
	return rms * math.Sqrt2, rms, nil
}

// Waveform returns one high-rate window of calibrated instantaneous mains
// voltages. On the same signal its RMS equals the RMS reported by Measure.
func (v *Voltage) Waveform(ctx context.Context) ([]float64, error) {
	samples, err := v.waveform.Collect(ctx)
	if err != nil {
		return nil, err
	}

	scale := v.cfg.VRef * v.cfg.Calibration / math.Sqrt2 * v.factor * v.waveformScale()
	for i := range samples {
		samples[i] *= scale
	}
	return samples, nil
}

func (v *Voltage) waveformScale() float64 {
	if v.cfg.WaveformScale > 0 {
		return v.cfg.WaveformScale
	}
	return 1
}

// Factor returns the mains calibration factor fixed at construction.
func (v *Voltage) Factor() float64 {
	return v.factor
}
