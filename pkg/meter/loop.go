package meter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/itohio/gopfm/pkg/power"
	"github.com/itohio/gopfm/pkg/sample"
	"github.com/itohio/gopfm/pkg/sensor"
	"github.com/itohio/gopfm/pkg/sink"
)

// DefaultPeriod is the output cadence.
const DefaultPeriod = time.Second

// Sensor names reported in SensorError.
const (
	SensorVoltage = "voltage"
	SensorCurrent = "current"
	SensorOutput  = "output"
)

// ErrAlreadyStarted is returned when Run is called on a loop that has run before.
var ErrAlreadyStarted = errors.New("acquisition loop already started")

// SensorError identifies which part of the pipeline failed.
type SensorError struct {
	Sensor string
	Err    error
}

func (e *SensorError) Error() string {
	return fmt.Sprintf("%s sensor: %v", e.Sensor, e.Err)
}

func (e *SensorError) Unwrap() error {
	return e.Err
}

// VoltageSource is the voltage side of the loop.
type VoltageSource interface {
	Measure(ctx context.Context) (peak, rms float64, err error)
	Waveform(ctx context.Context) ([]float64, error)
}

var _ VoltageSource = (*sensor.Voltage)(nil)

// WithPeriod sets the output cadence.
func WithPeriod(period time.Duration) func(l *Loop) {
	return func(l *Loop) {
		if period > 0 {
			l.period = period
		}
	}
}

// WithClock sets the clock used for pacing and timestamps.
func WithClock(clock sample.Clock) func(l *Loop) {
	return func(l *Loop) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithLogger sets the logger for the loop.
func WithLogger(logger *slog.Logger) func(l *Loop) {
	return func(l *Loop) {
		l.logger = logger.With(slog.String("component", "meter"))
	}
}

// WithCalculator sets the power calculator.
func WithCalculator(calc power.Calculator) func(l *Loop) {
	return func(l *Loop) {
		l.calc = calc
	}
}

// Loop owns one voltage and one current sensor and runs acquisition cycles
// at a fixed cadence, one at a time.
type Loop struct {
	voltage VoltageSource
	current sensor.CurrentMeter
	out     sink.Sink

	calc   power.Calculator
	period time.Duration
	clock  sample.Clock
	logger *slog.Logger

	state  atomic.Int32
	cycles atomic.Uint64
}

// New creates a loop in the Uninitialized state.
func New(voltage VoltageSource, current sensor.CurrentMeter, out sink.Sink, options ...func(l *Loop)) *Loop {
	l := &Loop{
		voltage: voltage,
		current: current,
		out:     out,
		calc:    power.NewCalculator(),
		period:  DefaultPeriod,
		clock:   sample.SystemClock{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(l)
	}

	return l
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Cycles returns the number of records emitted.
func (l *Loop) Cycles() uint64 {
	return l.cycles.Load()
}

// Run emits one power reading per period until ctx is cancelled (returns
// nil) or a sensor fails (returns *SensorError).
func (l *Loop) Run(ctx context.Context) error {
	return l.run(ctx, "power", l.powerCycle)
}

// RunVoltage emits (timestamp, peak, rms) mains voltage records.
func (l *Loop) RunVoltage(ctx context.Context) error {
	return l.run(ctx, "voltage", l.voltageCycle)
}

// RunCurrent emits (timestamp, voltage, current) records.
func (l *Loop) RunCurrent(ctx context.Context) error {
	return l.run(ctx, "current", l.currentCycle)
}

func (l *Loop) powerCycle(ctx context.Context) error {
	voltages, err := l.voltage.Waveform(ctx)
	if err != nil {
		return &SensorError{Sensor: SensorVoltage, Err: err}
	}

	_, current, err := l.current.Measure(ctx)
	if err != nil {
		return &SensorError{Sensor: SensorCurrent, Err: err}
	}

	r := l.calc.Compute(voltages, current)
	r.Timestamp = l.clock.Now()

	l.logger.Debug("power reading",
		slog.String("apparent", humanize.SIWithDigits(r.Apparent, 3, "VA")),
		slog.String("active", humanize.SIWithDigits(r.Active, 3, "W")),
		slog.String("reactive", humanize.SIWithDigits(r.Reactive, 3, "var")),
		slog.Float64("pf", r.PowerFactor),
	)

	if err := l.out.WritePower(r); err != nil {
		return &SensorError{Sensor: SensorOutput, Err: err}
	}
	if w, ok := l.out.(sink.WaveformWriter); ok {
		if err := w.WriteWaveform(voltages); err != nil {
			return &SensorError{Sensor: SensorOutput, Err: err}
		}
	}
	return nil
}

func (l *Loop) voltageCycle(ctx context.Context) error {
	peak, rms, err := l.voltage.Measure(ctx)
	if err != nil {
		return &SensorError{Sensor: SensorVoltage, Err: err}
	}

	if err := l.out.WriteBasic(l.clock.Now(), peak, rms); err != nil {
		return &SensorError{Sensor: SensorOutput, Err: err}
	}
	return nil
}

func (l *Loop) currentCycle(ctx context.Context) error {
	voltage, current, err := l.current.Measure(ctx)
	if err != nil {
		return &SensorError{Sensor: SensorCurrent, Err: err}
	}

	if err := l.out.WriteBasic(l.clock.Now(), voltage, current); err != nil {
		return &SensorError{Sensor: SensorOutput, Err: err}
	}
	return nil
}

// run drives cycle on the period grid epoch + n*period.
func (l *Loop) run(ctx context.Context, mode string, cycle func(ctx context.Context) error) (err error) {
	if !l.state.CompareAndSwap(int32(Uninitialized), int32(Running)) {
		return ErrAlreadyStarted
	}

	logger := l.logger.With(slog.String("mode", mode))
	logger.Info("acquisition started", slog.Duration("period", l.period))

	defer func() {
		if flushErr := l.out.Flush(); flushErr != nil && err == nil {
			err = &SensorError{Sensor: SensorOutput, Err: flushErr}
		}

		cycles := humanize.Comma(int64(l.cycles.Load()))
		if err != nil {
			l.state.Store(int32(Aborted))
			logger.Error("acquisition aborted", slog.Any("error", err), slog.String("cycles", cycles))
			return
		}
		l.state.Store(int32(Stopped))
		logger.Info("acquisition stopped", slog.String("cycles", cycles))
	}()

	epoch := l.clock.Now()
	var boundary int64

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := cycle(ctx); err != nil {
			if ctx.Err() != nil {
				// Cancelled mid-window: nothing was emitted for this cycle
				return nil
			}
			return err
		}
		l.cycles.Add(1)

		boundary++
		next := epoch.Add(time.Duration(boundary) * l.period)
		if now := l.clock.Now(); next.Before(now) {
			behind := int64(now.Sub(epoch)/l.period) + 1
			logger.Warn("cycle overran period", slog.Int64("skipped", behind-boundary))
			boundary = behind
			next = epoch.Add(time.Duration(boundary) * l.period)
		}

		if err := l.clock.SleepUntil(ctx, next); err != nil {
			return nil
		}
	}
}
