package meter

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/itohio/gopfm/pkg/power"
	"github.com/itohio/gopfm/pkg/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink collects records and can cancel after a number of them.
type recordingSink struct {
	mu       sync.Mutex
	readings []power.Reading
	basic    [][3]float64
	times    []time.Time
	flushes  int
	err      error

	cancelAfter int
	cancel      context.CancelFunc
}

func (s *recordingSink) WritePower(r power.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.readings = append(s.readings, r)
	s.times = append(s.times, r.Timestamp)
	s.maybeCancel(len(s.readings))
	return nil
}

func (s *recordingSink) WriteBasic(ts time.Time, a, b float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.basic = append(s.basic, [3]float64{float64(ts.Unix()), a, b})
	s.times = append(s.times, ts)
	s.maybeCancel(len(s.basic))
	return nil
}

func (s *recordingSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *recordingSink) maybeCancel(n int) {
	if s.cancel != nil && n >= s.cancelAfter {
		s.cancel()
	}
}

// stubVoltage returns a fixed waveform; cost models the window duration.
type stubVoltage struct {
	clock    *sample.FakeClock
	cost     time.Duration
	waveform []float64
	peak     float64
	rms      float64
	err      error
	calls    int

	// cancelOn cancels ctx during the given call and reports ctx.Err().
	cancelOn int
	cancel   context.CancelFunc
}

func (v *stubVoltage) Waveform(ctx context.Context) ([]float64, error) {
	v.calls++
	if v.cancel != nil && v.calls == v.cancelOn {
		v.cancel()
		return nil, ctx.Err()
	}
	if v.err != nil {
		return nil, v.err
	}
	if v.clock != nil {
		v.clock.Advance(v.cost)
	}
	return append([]float64(nil), v.waveform...), nil
}

func (v *stubVoltage) Measure(ctx context.Context) (float64, float64, error) {
	if _, err := v.Waveform(ctx); err != nil {
		return 0, 0, err
	}
	return v.peak, v.rms, nil
}

type stubCurrent struct {
	voltage float64
	current float64
	err     error
}

func (c *stubCurrent) Measure(context.Context) (float64, float64, error) {
	return c.voltage, c.current, c.err
}

func sineWindow(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = math.Sin(2 * math.Pi * float64(i) / float64(n))
	}
	return v
}

func TestLoop_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Unix(1000, 0)
	clock := sample.NewFakeClock(start)
	out := &recordingSink{cancelAfter: 3, cancel: cancel}
	voltage := &stubVoltage{clock: clock, cost: 100 * time.Millisecond, waveform: sineWindow(100)}

	loop := New(voltage, &stubCurrent{current: 5}, out, WithClock(clock))
	assert.Equal(t, Uninitialized, loop.State())

	err := loop.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stopped, loop.State())
	assert.Equal(t, uint64(3), loop.Cycles())

	require.Len(t, out.readings, 3)
	for _, r := range out.readings {
		assert.InDelta(t, 0.7071, r.VoltageRMS, 1e-3)
		assert.Equal(t, 5.0, r.CurrentRMS)
		assert.InDelta(t, 3.54, r.Apparent, 0.01)
	}
	assert.GreaterOrEqual(t, out.flushes, 1)

	// Cycle boundaries measured from the first cycle start
	assert.Equal(t, []time.Time{
		start.Add(100 * time.Millisecond),
		start.Add(1100 * time.Millisecond),
		start.Add(2100 * time.Millisecond),
	}, out.times)
	assert.Equal(t, []time.Time{
		start.Add(1 * time.Second),
		start.Add(2 * time.Second),
	}, clock.Deadlines())
}

func TestLoop_Overrun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Unix(0, 0)
	clock := sample.NewFakeClock(start)
	out := &recordingSink{cancelAfter: 3, cancel: cancel}
	voltage := &stubVoltage{clock: clock, cost: 1500 * time.Millisecond, waveform: []float64{1}}

	loop := New(voltage, &stubCurrent{current: 1}, out, WithClock(clock), WithPeriod(time.Second))
	require.NoError(t, loop.Run(ctx))

	// 1.5s cycles on a 1s grid land on every other boundary
	assert.Equal(t, []time.Time{
		start.Add(2 * time.Second),
		start.Add(4 * time.Second),
	}, clock.Deadlines())
}

func TestLoop_NoiseFloor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &recordingSink{cancelAfter: 1, cancel: cancel}
	voltage := &stubVoltage{waveform: sineWindow(100)}
	loop := New(voltage, &stubCurrent{current: 0.3}, out, WithClock(sample.NewFakeClock(time.Unix(0, 0))))

	require.NoError(t, loop.Run(ctx))
	require.Len(t, out.readings, 1)
	assert.Equal(t, 0.0, out.readings[0].CurrentRMS)
	assert.Equal(t, 0.0, out.readings[0].Apparent)
	assert.Equal(t, math.Pi/2, out.readings[0].PhaseAngle)
}

func TestLoop_CustomCalculator(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &recordingSink{cancelAfter: 1, cancel: cancel}
	loop := New(&stubVoltage{waveform: []float64{1, -1}}, &stubCurrent{current: 0.3}, out,
		WithClock(sample.NewFakeClock(time.Unix(0, 0))),
		WithCalculator(power.Calculator{NoiseFloor: 0.1}),
	)

	require.NoError(t, loop.Run(ctx))
	assert.Equal(t, 0.3, out.readings[0].CurrentRMS)
}

func TestLoop_VoltageFailure(t *testing.T) {
	boom := errors.New("adc unplugged")
	out := &recordingSink{}
	loop := New(&stubVoltage{err: boom}, &stubCurrent{current: 5}, out, WithClock(sample.NewFakeClock(time.Unix(0, 0))))

	err := loop.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var sensorErr *SensorError
	require.ErrorAs(t, err, &sensorErr)
	assert.Equal(t, SensorVoltage, sensorErr.Sensor)
	assert.Contains(t, err.Error(), "voltage sensor")
	assert.Equal(t, Aborted, loop.State())
	assert.Empty(t, out.readings)
	assert.Equal(t, 1, out.flushes)
}

func TestLoop_CurrentFailure(t *testing.T) {
	boom := errors.New("ct open")
	out := &recordingSink{}
	loop := New(&stubVoltage{waveform: []float64{1}}, &stubCurrent{err: boom}, out, WithClock(sample.NewFakeClock(time.Unix(0, 0))))

	err := loop.Run(context.Background())
	var sensorErr *SensorError
	require.ErrorAs(t, err, &sensorErr)
	assert.Equal(t, SensorCurrent, sensorErr.Sensor)
	assert.Equal(t, Aborted, loop.State())
	assert.Empty(t, out.readings)
}

func TestLoop_SinkFailure(t *testing.T) {
	out := &recordingSink{err: errors.New("pipe closed")}
	loop := New(&stubVoltage{waveform: []float64{1}}, &stubCurrent{current: 1}, out, WithClock(sample.NewFakeClock(time.Unix(0, 0))))

	err := loop.Run(context.Background())
	var sensorErr *SensorError
	require.ErrorAs(t, err, &sensorErr)
	assert.Equal(t, SensorOutput, sensorErr.Sensor)
}

func TestLoop_CancelMidWindow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &recordingSink{}
	voltage := &stubVoltage{waveform: []float64{1}, cancelOn: 3, cancel: cancel}
	loop := New(voltage, &stubCurrent{current: 1}, out, WithClock(sample.NewFakeClock(time.Unix(0, 0))))

	require.NoError(t, loop.Run(ctx))
	assert.Equal(t, Stopped, loop.State())
	assert.Len(t, out.readings, 2, "partial window must not be emitted")
	assert.Equal(t, 1, out.flushes)
}

func TestLoop_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	voltage := &stubVoltage{waveform: []float64{1}}
	out := &recordingSink{}
	loop := New(voltage, &stubCurrent{current: 1}, out)

	require.NoError(t, loop.Run(ctx))
	assert.Equal(t, 0, voltage.calls)
	assert.Equal(t, Stopped, loop.State())
}

func TestLoop_AlreadyStarted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop := New(&stubVoltage{}, &stubCurrent{}, &recordingSink{})
	require.NoError(t, loop.Run(ctx))
	assert.ErrorIs(t, loop.Run(ctx), ErrAlreadyStarted)
	assert.ErrorIs(t, loop.RunVoltage(ctx), ErrAlreadyStarted)
}

func TestLoop_RunVoltage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &recordingSink{cancelAfter: 2, cancel: cancel}
	voltage := &stubVoltage{waveform: []float64{1}, peak: 169.7, rms: 120}
	loop := New(voltage, &stubCurrent{}, out, WithClock(sample.NewFakeClock(time.Unix(0, 0))))

	require.NoError(t, loop.RunVoltage(ctx))
	require.Len(t, out.basic, 2)
	assert.Equal(t, 169.7, out.basic[0][1])
	assert.Equal(t, 120.0, out.basic[0][2])
	assert.Empty(t, out.readings)
}

func TestLoop_RunCurrent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &recordingSink{cancelAfter: 2, cancel: cancel}
	voltage := &stubVoltage{}
	loop := New(voltage, &stubCurrent{voltage: 2.5, current: 12.5}, out, WithClock(sample.NewFakeClock(time.Unix(0, 0))))

	require.NoError(t, loop.RunCurrent(ctx))
	require.Len(t, out.basic, 2)
	assert.Equal(t, 2.5, out.basic[1][1])
	assert.Equal(t, 12.5, out.basic[1][2])
	assert.Equal(t, 0, voltage.calls)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", Uninitialized.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "aborted", Aborted.String())
	assert.Equal(t, "unknown", State(42).String())
}

// waveformSink also records the voltage window of each power cycle.
type waveformSink struct {
	recordingSink
	windows [][]float64
	err     error
}

func (s *waveformSink) WriteWaveform(v []float64) error {
	if s.err != nil {
		return s.err
	}
	s.windows = append(s.windows, v)
	return nil
}

func TestLoop_WaveformWriter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &waveformSink{recordingSink: recordingSink{cancelAfter: 2, cancel: cancel}}
	voltage := &stubVoltage{waveform: []float64{1, -1, 0.5}}
	loop := New(voltage, &stubCurrent{current: 1}, out, WithClock(sample.NewFakeClock(time.Unix(0, 0))))

	require.NoError(t, loop.Run(ctx))
	require.Len(t, out.windows, 2)
	assert.Equal(t, []float64{1, -1, 0.5}, out.windows[1])
}

func TestLoop_WaveformWriterFailure(t *testing.T) {
	out := &waveformSink{err: errors.New("display gone")}
	loop := New(&stubVoltage{waveform: []float64{1}}, &stubCurrent{current: 1}, out, WithClock(sample.NewFakeClock(time.Unix(0, 0))))

	err := loop.Run(context.Background())
	var sensorErr *SensorError
	require.ErrorAs(t, err, &sensorErr)
	assert.Equal(t, SensorOutput, sensorErr.Sensor)
	assert.Len(t, out.readings, 1)
}

func TestLoop_VoltageModeSkipsWaveform(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &waveformSink{recordingSink: recordingSink{cancelAfter: 1, cancel: cancel}}
	loop := New(&stubVoltage{waveform: []float64{1}}, &stubCurrent{}, out, WithClock(sample.NewFakeClock(time.Unix(0, 0))))

	require.NoError(t, loop.RunVoltage(ctx))
	assert.Empty(t, out.windows)
}
