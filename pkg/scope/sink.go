package scope

import (
	"time"

	"fyne.io/fyne/v2"
	"github.com/itohio/gopfm/pkg/power"
	"github.com/itohio/gopfm/pkg/sink"
)

var (
	_ sink.Sink           = (*Sink)(nil)
	_ sink.WaveformWriter = (*Sink)(nil)
)

// WithDispatcher sets how widget updates reach the UI thread. The default is
// fyne.Do.
func WithDispatcher(do func(func())) func(s *Sink) {
	return func(s *Sink) {
		if do != nil {
			s.do = do
		}
	}
}

// Sink forwards records to next and mirrors them onto a ScopeWidget.
type Sink struct {
	next  sink.Sink
	scope *ScopeWidget
	do    func(func())
}

// NewSink wraps next, which may be nil for a display-only sink.
func NewSink(next sink.Sink, scope *ScopeWidget, options ...func(s *Sink)) *Sink {
	s := &Sink{
		next:  next,
		scope: scope,
		do:    fyne.Do,
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// WritePower plots V_rms, active power and power factor.
func (s *Sink) WritePower(r power.Reading) error {
	s.add(Point{Time: r.Timestamp, Values: []float64{r.VoltageRMS, r.Active, r.PowerFactor}})
	if s.next == nil {
		return nil
	}
	return s.next.WritePower(r)
}

// WriteBasic plots the two values of a voltage or current record.
func (s *Sink) WriteBasic(ts time.Time, a, b float64) error {
	s.add(Point{Time: ts, Values: []float64{a, b}})
	if s.next == nil {
		return nil
	}
	return s.next.WriteBasic(ts, a, b)
}

// WriteWaveform shows the voltage window of the last power cycle.
func (s *Sink) WriteWaveform(voltages []float64) error {
	samples := append([]float64(nil), voltages...)
	s.do(func() {
		s.scope.SetWaveform(samples)
	})

	if w, ok := s.next.(sink.WaveformWriter); ok {
		return w.WriteWaveform(voltages)
	}
	return nil
}

// Flush flushes next.
func (s *Sink) Flush() error {
	if s.next == nil {
		return nil
	}
	return s.next.Flush()
}

func (s *Sink) add(p Point) {
	s.do(func() {
		s.scope.Add(p)
	})
}
