package scope

import (
	"math"
	"time"

	"github.com/itohio/gopfm/pkg/sink"
)

// DefaultHistory is the number of records kept when none is configured.
const DefaultHistory = 300

// Series names one plotted quantity.
type Series struct {
	Name string
	Unit string // SI unit for labels, empty for dimensionless
}

// Point is one record, one value per series.
type Point struct {
	Time   time.Time
	Values []float64
}

// SeriesFor returns the plotted quantities of mode.
func SeriesFor(mode sink.Mode) []Series {
	switch mode {
	case sink.ModeVoltage:
		return []Series{{"Peak", "V"}, {"RMS", "V"}}
	case sink.ModeCurrent:
		return []Series{{"Voltage", "V"}, {"Current", "A"}}
	default:
		return []Series{{"V_rms", "V"}, {"P", "W"}, {"PF", ""}}
	}
}

// Trend is a bounded history of points plus the most recent voltage window.
// It is not safe for concurrent use.
type Trend struct {
	series   []Series
	capacity int
	points   []Point
	waveform []float64
}

// NewTrend creates a trend keeping at most capacity points.
func NewTrend(series []Series, capacity int) *Trend {
	if capacity < 2 {
		capacity = DefaultHistory
	}
	return &Trend{
		series:   series,
		capacity: capacity,
		points:   make([]Point, 0, capacity),
	}
}

// Add appends p, dropping the oldest point when full. Missing values are
// padded with zero.
func (t *Trend) Add(p Point) {
	values := make([]float64, len(t.series))
	copy(values, p.Values)
	p.Values = values

	if len(t.points) == t.capacity {
		copy(t.points, t.points[1:])
		t.points = t.points[:len(t.points)-1]
	}
	t.points = append(t.points, p)
}

// SetWaveform replaces the stored voltage window with a copy of samples.
func (t *Trend) SetWaveform(samples []float64) {
	t.waveform = append(t.waveform[:0], samples...)
}

// Series returns the plotted quantities.
func (t *Trend) Series() []Series {
	return t.series
}

// Points returns the stored points, oldest first.
func (t *Trend) Points() []Point {
	return t.points
}

// Waveform returns the last voltage window.
func (t *Trend) Waveform() []float64 {
	return t.waveform
}

// Column returns the values of series i, oldest first.
func (t *Trend) Column(i int) []float64 {
	col := make([]float64, len(t.points))
	for k, p := range t.points {
		col[k] = p.Values[i]
	}
	return col
}

// Span returns the time range covered, at least minSpan wide.
func (t *Trend) Span(minSpan time.Duration) (from, to time.Time) {
	if len(t.points) == 0 {
		return time.Time{}, time.Time{}.Add(minSpan)
	}
	from = t.points[0].Time
	to = t.points[len(t.points)-1].Time
	if to.Sub(from) < minSpan {
		to = from.Add(minSpan)
	}
	return from, to
}

// bounds returns the finite min and max of values with a 10% margin.
func bounds(values []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return 0, 1
	}

	span := hi - lo
	if span == 0 {
		span = math.Max(math.Abs(hi), 1)
	}
	margin := span * 0.1
	return lo - margin, hi + margin
}

// project maps v in [lo, hi] onto a vertical pixel span starting at top.
func project(v, lo, hi float64, top, height float32) float32 {
	if hi == lo || math.IsNaN(v) || math.IsInf(v, 0) {
		return top + height/2
	}
	return top + height - float32((v-lo)/(hi-lo))*height
}
