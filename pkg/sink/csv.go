package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/itohio/gopfm/pkg/power"
)

// Mode selects the CSV layout.
type Mode int

const (
	// ModePower logs full power parameters with 8 decimals.
	ModePower Mode = iota
	// ModeVoltage logs peak and RMS mains voltage with 3 decimals.
	ModeVoltage
	// ModeCurrent logs calibrated voltage and RMS current with 3 decimals.
	ModeCurrent
)

const (
	basicTimeLayout = "2006-01-02 15:04:05.000"
	powerTimeLayout = "15:04:05"

	basicPrecision = 3
	powerPrecision = 8
)

// Sink consumes one record per acquisition cycle.
type Sink interface {
	WritePower(r power.Reading) error
	WriteBasic(ts time.Time, a, b float64) error
	Flush() error
}

// WaveformWriter is implemented by sinks that also display the voltage
// window of each power cycle.
type WaveformWriter interface {
	WriteWaveform(voltages []float64) error
}

var _ Sink = (*CSV)(nil)

// ParseMode maps a mode name to a Mode.
func ParseMode(name string) (Mode, error) {
	switch name {
	case "power", "":
		return ModePower, nil
	case "voltage":
		return ModeVoltage, nil
	case "current":
		return ModeCurrent, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", name)
	}
}

func (m Mode) String() string {
	switch m {
	case ModePower:
		return "power"
	case ModeVoltage:
		return "voltage"
	case ModeCurrent:
		return "current"
	default:
		return "unknown"
	}
}

func (m Mode) header() []string {
	switch m {
	case ModeVoltage:
		return []string{"Timestamp", "Peak Voltage", "RMS Voltage"}
	case ModeCurrent:
		return []string{"Timestamp", "Voltage", "Current"}
	default:
		return []string{"Timestamp", "V_RMS", "I_RMS", "Apparent Power", "Active Power", "Reactive Power", "Power Factor", "Phase Angle"}
	}
}

// WithFlushEachRow flushes the writer after every record.
func WithFlushEachRow(flush bool) func(c *CSV) {
	return func(c *CSV) {
		c.flushEachRow = flush
	}
}

// WithLogger sets the logger used for warnings.
func WithLogger(logger *slog.Logger) func(c *CSV) {
	return func(c *CSV) {
		c.logger = logger
	}
}

// CSV writes records with fixed decimal precision.
type CSV struct {
	w            *csv.Writer
	mode         Mode
	flushEachRow bool
	logger       *slog.Logger
}

// NewCSV writes the header for mode and returns the sink.
func NewCSV(w io.Writer, mode Mode, options ...func(c *CSV)) (*CSV, error) {
	c := &CSV{
		w:      csv.NewWriter(w),
		mode:   mode,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(c)
	}

	if err := c.w.Write(mode.header()); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := c.Flush(); err != nil {
		return nil, err
	}

	return c, nil
}

// WritePower writes one power-parameter row, phase angle in degrees.
func (c *CSV) WritePower(r power.Reading) error {
	values := []float64{
		r.VoltageRMS,
		r.CurrentRMS,
		r.Apparent,
		r.Active,
		r.Reactive,
		r.PowerFactor,
		r.PhaseDegrees(),
	}

	row := make([]string, 0, len(values)+1)
	row = append(row, r.Timestamp.Format(powerTimeLayout))
	for _, v := range values {
		row = append(row, c.format(v, powerPrecision))
	}

	return c.write(row)
}

// WriteBasic writes a (timestamp, a, b) row.
func (c *CSV) WriteBasic(ts time.Time, a, b float64) error {
	return c.write([]string{
		ts.Format(basicTimeLayout),
		c.format(a, basicPrecision),
		c.format(b, basicPrecision),
	})
}

// Flush writes any buffered data to the underlying writer.
func (c *CSV) Flush() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

func (c *CSV) write(row []string) error {
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("failed to write csv row: %w", err)
	}
	if c.flushEachRow {
		return c.Flush()
	}
	return nil
}

// format renders v with fixed precision; non-finite values become zero.
func (c *CSV) format(v float64, precision int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		c.logger.Warn("non-finite value in output", slog.Float64("value", v))
		v = 0
	}
	return strconv.FormatFloat(v, 'f', precision, 64)
}
