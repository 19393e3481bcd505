package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/itohio/gopfm/pkg/adc"
	"github.com/itohio/gopfm/pkg/config"
	"github.com/itohio/gopfm/pkg/meter"
	"github.com/itohio/gopfm/pkg/power"
	"github.com/itohio/gopfm/pkg/sample"
	"github.com/itohio/gopfm/pkg/sensor"
	"github.com/itohio/gopfm/pkg/sink"
	"periph.io/x/conn/v3/physic"
)

// hardware holds the channels and whatever must be closed on exit.
type hardware struct {
	voltage adc.Channel
	current adc.Channel
	closer  io.Closer
}

func (h *hardware) Close() error {
	if h.closer == nil {
		return nil
	}
	return h.closer.Close()
}

// openHardware opens the configured converter, or builds synthetic channels
// when mock is set.
func openHardware(cfg *config.Config, mock bool) (*hardware, error) {
	if mock {
		return mockHardware(&cfg.Mock, nil), nil
	}

	if cfg.ADC.Driver == config.ADCDriverMCP3008 {
		m, err := adc.OpenMCP3008(cfg.ADC.SPIPort, physic.Frequency(cfg.ADC.SPIFrequency)*physic.Hertz)
		if err != nil {
			return nil, err
		}
		return &hardware{
			voltage: m.Channel(cfg.Voltage.Channel, adc.Unipolar),
			current: m.Channel(cfg.Current.Channel, adc.Unipolar),
			closer:  m,
		}, nil
	}

	bridge, err := adc.Open(cfg.ADC.Port, cfg.ADC.BaudRate, cfg.ADC.Bits, cfg.ADC.Timeout)
	if err != nil {
		return nil, err
	}

	return &hardware{
		voltage: bridge.Channel(cfg.Voltage.Channel, adc.Unipolar),
		current: bridge.Channel(cfg.Current.Channel, adc.Unipolar),
		closer:  bridge,
	}, nil
}

func mockHardware(cfg *config.MockConfig, clock sample.Clock) *hardware {
	var now func() time.Time
	if clock != nil {
		now = clock.Now
	}

	return &hardware{
		voltage: adc.NewSine(adc.SineConfig{
			Offset:     cfg.VoltageOffset,
			Amplitude:  cfg.VoltageAmplitude,
			Frequency:  cfg.Frequency,
			NoiseLevel: cfg.NoiseLevel,
			Seed:       1,
			Range:      adc.Unipolar,
		}, now),
		current: adc.NewSine(adc.SineConfig{
			Offset:     cfg.CurrentOffset,
			Amplitude:  cfg.CurrentAmplitude,
			Frequency:  cfg.Frequency,
			Phase:      -cfg.PhaseShift,
			NoiseLevel: cfg.NoiseLevel,
			Seed:       2,
			Range:      adc.Unipolar,
		}, now),
	}
}

// openOutput returns stdout for "-" or creates the file.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// voltageConfig maps the YAML section onto the sensor constants.
func voltageConfig(cfg *config.VoltageConfig) sensor.VoltageConfig {
	return sensor.VoltageConfig{
		VRef:              cfg.VRef,
		Samples:           cfg.Samples,
		Interval:          cfg.Interval,
		Calibration:       cfg.Calibration,
		ExpectedMainsRMS:  cfg.ExpectedMainsRMS,
		MinCalibrationRMS: cfg.MinCalibrationRMS,
		WaveformSamples:   cfg.Waveform.Samples,
		WaveformInterval:  cfg.Waveform.Interval,
		WaveformScale:     cfg.Waveform.Scale,
	}
}

func newCurrentMeter(cfg *config.CurrentConfig, ch adc.Channel, clock sample.Clock) (sensor.CurrentMeter, error) {
	if cfg.Kind == config.CurrentKindTransducer {
		return sensor.NewTransducer(ch, cfg.VRef, cfg.TransducerFactor)
	}

	return sensor.NewCurrent(ch, sensor.CurrentConfig{
		VRef:               cfg.VRef,
		Samples:            cfg.Samples,
		Interval:           cfg.Interval,
		MaxRatedCurrent:    cfg.MaxRatedCurrent,
		MaxSensorVoltage:   cfg.MaxSensorVoltage,
		VoltageCalibration: cfg.VoltageCalibration,
		CurrentCalibration: cfg.CurrentCalibration,
	}, clock)
}

// buildLoop constructs the sensors needed by mode and wires them into a loop.
// The voltage sensor calibrates here, so this blocks for one window.
func buildLoop(ctx context.Context, cfg *config.Config, mode sink.Mode, hw *hardware, out sink.Sink, clock sample.Clock, logger *slog.Logger) (*meter.Loop, error) {
	var voltage meter.VoltageSource
	if mode != sink.ModeCurrent {
		v, err := sensor.NewVoltage(ctx, hw.voltage, voltageConfig(&cfg.Voltage), clock)
		if err != nil {
			return nil, &meter.SensorError{Sensor: meter.SensorVoltage, Err: err}
		}
		logger.Info("voltage sensor calibrated", slog.Float64("factor", v.Factor()))
		voltage = v
	}

	current, err := newCurrentMeter(&cfg.Current, hw.current, clock)
	if err != nil {
		return nil, &meter.SensorError{Sensor: meter.SensorCurrent, Err: err}
	}

	return meter.New(voltage, current, out,
		meter.WithPeriod(cfg.Power.Period),
		meter.WithClock(clock),
		meter.WithLogger(logger),
		meter.WithCalculator(power.Calculator{NoiseFloor: cfg.Power.NoiseFloor}),
	), nil
}

// runMode dispatches to the loop entry point for mode.
func runMode(ctx context.Context, loop *meter.Loop, mode sink.Mode) error {
	switch mode {
	case sink.ModeVoltage:
		return loop.RunVoltage(ctx)
	case sink.ModeCurrent:
		return loop.RunCurrent(ctx)
	default:
		return loop.Run(ctx)
	}
}
