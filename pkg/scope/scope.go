// Package scope is a live fyne display of meter records: one trend strip per
// quantity over time and the most recent voltage window underneath.
package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
)

// minSpan keeps the time axis from collapsing before enough records exist.
const minSpan = 10 * time.Second

// ScopeWidget is a custom Fyne widget that plots meter records.
type ScopeWidget struct {
	widget.BaseWidget

	// Data (protected by mu)
	mu    sync.RWMutex
	trend *Trend
}

// New creates a widget plotting series, keeping history records.
func New(series []Series, history int) *ScopeWidget {
	s := &ScopeWidget{
		trend: NewTrend(series, history),
	}
	s.ExtendBaseWidget(s)
	return s
}

// Add appends one record. Call it on the fyne main thread (fyne.Do).
func (s *ScopeWidget) Add(p Point) {
	s.mu.Lock()
	s.trend.Add(p)
	s.mu.Unlock()

	// Refresh outside the lock, the renderer takes a read lock
	s.Refresh()
}

// SetWaveform replaces the displayed voltage window.
func (s *ScopeWidget) SetWaveform(samples []float64) {
	s.mu.Lock()
	s.trend.SetWaveform(samples)
	s.mu.Unlock()

	s.Refresh()
}

// snapshot copies what the renderer needs.
func (s *ScopeWidget) snapshot() (series []Series, columns [][]float64, times []time.Time, waveform []float64, from, to time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series = s.trend.Series()
	columns = make([][]float64, len(series))
	for i := range series {
		columns[i] = s.trend.Column(i)
	}

	points := s.trend.Points()
	times = make([]time.Time, len(points))
	for i, p := range points {
		times[i] = p.Time
	}

	waveform = append([]float64(nil), s.trend.Waveform()...)
	from, to = s.trend.Span(minSpan)
	return series, columns, times, waveform, from, to
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	background := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:      s,
		background: background,
		objects:    []fyne.CanvasObject{background},
	}
}
