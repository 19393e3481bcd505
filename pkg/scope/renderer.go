package scope

import (
	"image/color"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/dustin/go-humanize"
)

var (
	gridColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	palette    = []color.Color{
		color.RGBA{R: 255, G: 165, B: 0, A: 255},   // Orange
		color.RGBA{R: 100, G: 200, B: 255, A: 255}, // Light blue
		color.RGBA{R: 120, G: 220, B: 120, A: 255}, // Green
	}
	waveformColor = color.RGBA{R: 230, G: 230, B: 90, A: 255}
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	background *canvas.Rectangle

	// Objects list for Fyne
	objects []fyne.CanvasObject

	// Track last size to detect changes
	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.background.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.Refresh()
	}
}

// Refresh rebuilds the plot from the current trend.
func (r *scopeRenderer) Refresh() {
	series, columns, times, waveform, from, to := r.scope.snapshot()

	r.objects = []fyne.CanvasObject{r.background}

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	marginLeft := float32(90.0)
	marginRight := float32(20.0)
	marginTop := float32(20.0)
	marginBottom := float32(30.0)
	gap := float32(30.0)

	plotX := marginLeft
	plotWidth := size.Width - marginLeft - marginRight
	usable := size.Height - marginTop - marginBottom - gap
	if plotWidth <= 0 || usable <= 0 {
		return
	}

	trendHeight := usable * 0.65
	waveTop := marginTop + trendHeight + gap
	waveHeight := usable - trendHeight

	r.drawTimeGrid(plotX, marginTop, plotWidth, trendHeight, from, to)

	if n := len(series); n > 0 {
		stripHeight := trendHeight / float32(n)
		for i, s := range series {
			top := marginTop + float32(i)*stripHeight
			r.drawStrip(plotX, top, plotWidth, stripHeight, s, palette[i%len(palette)], columns[i], times, from, to)
		}
	}

	r.drawWaveform(plotX, waveTop, plotWidth, waveHeight, waveform)
}

// drawTimeGrid draws vertical grid lines with offsets from the first record.
func (r *scopeRenderer) drawTimeGrid(plotX, plotY, plotWidth, plotHeight float32, from, to time.Time) {
	numVLines := 10
	span := to.Sub(from)
	for i := range numVLines + 1 {
		x := plotX + float32(i)*plotWidth/float32(numVLines)
		r.line(gridColor, 1, fyne.NewPos(x, plotY), fyne.NewPos(x, plotY+plotHeight))

		offset := time.Duration(int64(span) * int64(i) / int64(numVLines))
		r.text(formatTime(offset), labelColor, 10, fyne.TextAlignCenter, fyne.NewPos(x-20, plotY+plotHeight+5))
	}
}

// drawStrip draws one quantity autoscaled into its own horizontal band.
func (r *scopeRenderer) drawStrip(plotX, top, plotWidth, height float32, s Series, c color.Color, values []float64, times []time.Time, from, to time.Time) {
	inner := height - 8
	innerTop := top + 4
	r.line(gridColor, 1, fyne.NewPos(plotX, top+height), fyne.NewPos(plotX+plotWidth, top+height))

	lo, hi := bounds(values)
	r.text(formatValue(hi, s.Unit), labelColor, 10, fyne.TextAlignTrailing, fyne.NewPos(plotX-5, innerTop-6))
	r.text(formatValue(lo, s.Unit), labelColor, 10, fyne.TextAlignTrailing, fyne.NewPos(plotX-5, innerTop+inner-6))

	label := s.Name
	if len(values) > 0 {
		label += " " + formatValue(values[len(values)-1], s.Unit)
	}
	r.text(label, c, 12, fyne.TextAlignLeading, fyne.NewPos(plotX+8, innerTop))

	span := to.Sub(from).Seconds()
	if len(values) < 2 || span <= 0 {
		return
	}

	prev := fyne.NewPos(plotX+float32(times[0].Sub(from).Seconds()/span)*plotWidth, project(values[0], lo, hi, innerTop, inner))
	for i := 1; i < len(values); i++ {
		next := fyne.NewPos(plotX+float32(times[i].Sub(from).Seconds()/span)*plotWidth, project(values[i], lo, hi, innerTop, inner))
		r.line(c, 1.5, prev, next)
		prev = next
	}
}

// drawWaveform draws the last voltage window against sample index.
func (r *scopeRenderer) drawWaveform(plotX, top, plotWidth, height float32, samples []float64) {
	r.line(gridColor, 1, fyne.NewPos(plotX, top), fyne.NewPos(plotX+plotWidth, top))
	r.line(gridColor, 1, fyne.NewPos(plotX, top+height), fyne.NewPos(plotX+plotWidth, top+height))

	lo, hi := bounds(samples)
	r.text(formatValue(hi, "V"), labelColor, 10, fyne.TextAlignTrailing, fyne.NewPos(plotX-5, top-6))
	r.text(formatValue(lo, "V"), labelColor, 10, fyne.TextAlignTrailing, fyne.NewPos(plotX-5, top+height-6))
	r.text("Waveform", waveformColor, 12, fyne.TextAlignLeading, fyne.NewPos(plotX+8, top+4))

	if len(samples) < 2 {
		return
	}

	step := plotWidth / float32(len(samples)-1)
	prev := fyne.NewPos(plotX, project(samples[0], lo, hi, top, height))
	for i := 1; i < len(samples); i++ {
		next := fyne.NewPos(plotX+float32(i)*step, project(samples[i], lo, hi, top, height))
		r.line(waveformColor, 1, prev, next)
		prev = next
	}
}

func (r *scopeRenderer) line(c color.Color, width float32, from, to fyne.Position) {
	line := canvas.NewLine(c)
	line.Position1 = from
	line.Position2 = to
	line.StrokeWidth = width
	r.objects = append(r.objects, line)
}

func (r *scopeRenderer) text(s string, c color.Color, size float32, align fyne.TextAlign, pos fyne.Position) {
	text := canvas.NewText(s, c)
	text.TextSize = size
	text.Alignment = align
	text.Move(pos)
	r.objects = append(r.objects, text)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}

func formatValue(v float64, unit string) string {
	if unit == "" {
		return strconv.FormatFloat(v, 'f', 3, 64)
	}
	return humanize.SIWithDigits(v, 3, unit)
}

func formatTime(d time.Duration) string {
	if d < time.Second {
		return strconv.FormatFloat(d.Seconds(), 'f', 2, 64) + "s"
	}
	return strconv.FormatFloat(d.Seconds(), 'f', 1, 64) + "s"
}
