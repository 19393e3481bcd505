package adc

// Range is the declared dynamic range of a channel.
type Range int

const (
	// Unipolar channels read in [0, 1].
	Unipolar Range = iota
	// Bipolar channels read in [-1, 1].
	Bipolar
)

// Channel is one analog input producing normalized readings on demand.
type Channel interface {
	// Read blocks until one sample is converted and returns it as a fraction
	// of full scale within Range.
	Read() (float64, error)
	Range() Range
}

// Ensure the hardware channels implement Channel.
var (
	_ Channel = (*SerialChannel)(nil)
	_ Channel = (*MCP3008Channel)(nil)
)

// Ensure mocked channels implement Channel.
var (
	_ Channel = (*Sine)(nil)
	_ Channel = (*Constant)(nil)
	_ Channel = (*Sequence)(nil)
)

func (r Range) String() string {
	switch r {
	case Unipolar:
		return "unipolar"
	case Bipolar:
		return "bipolar"
	default:
		return "unknown"
	}
}

// Bounds returns the inclusive limits of the range.
func (r Range) Bounds() (lo, hi float64) {
	if r == Bipolar {
		return -1, 1
	}
	return 0, 1
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	lo, hi := r.Bounds()
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
