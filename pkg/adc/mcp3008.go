package adc

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// MCP3008Channels is the number of single-ended inputs.
	MCP3008Channels = 8
	// MCP3008MaxCode is the full-scale 10-bit code.
	MCP3008MaxCode = 1023
)

// MCP3008 is an 8-channel 10-bit SPI converter wired directly to the host.
type MCP3008 struct {
	mu     sync.Mutex
	conn   spi.Conn
	closer spi.PortCloser
}

// OpenMCP3008 initializes the host drivers and opens the converter on the
// named SPI port. An empty name selects the first port found.
func OpenMCP3008(name string, freq physic.Frequency) (*MCP3008, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}

	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open spi port %q: %w", name, err)
	}

	conn, err := port.Connect(freq, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to connect to mcp3008 on %s: %w", port, err)
	}

	m := NewMCP3008(conn)
	m.closer = port
	return m, nil
}

// NewMCP3008 wraps an already connected SPI device.
func NewMCP3008(conn spi.Conn) *MCP3008 {
	return &MCP3008{conn: conn}
}

// Channel returns the single-ended input index.
func (m *MCP3008) Channel(index int, r Range) *MCP3008Channel {
	return &MCP3008Channel{adc: m, index: index, rng: r}
}

// Close releases the SPI port if this converter opened it.
func (m *MCP3008) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closer == nil {
		return nil
	}
	err := m.closer.Close()
	m.closer = nil
	m.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close spi port: %w", err)
	}
	return nil
}

// readCode runs one single-ended conversion.
//
//	tx: 0x01, (0x8|ch)<<4, 0x00
//	rx: xx,   ....__DD,    DDDDDDDD
func (m *MCP3008) readCode(index int) (uint64, error) {
	if index < 0 || index >= MCP3008Channels {
		return 0, fmt.Errorf("mcp3008 channel %d out of range", index)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return 0, ErrNotConnected
	}

	w := []byte{0x01, byte(0x08|index) << 4, 0x00}
	r := make([]byte, len(w))
	if err := m.conn.Tx(w, r); err != nil {
		return 0, fmt.Errorf("mcp3008 transfer on channel %d: %w", index, err)
	}

	return uint64(r[1]&0x03)<<8 | uint64(r[2]), nil
}

// MCP3008Channel is one input of an MCP3008.
type MCP3008Channel struct {
	adc   *MCP3008
	index int
	rng   Range
}

// Read converts once and normalizes the code to full scale.
func (c *MCP3008Channel) Read() (float64, error) {
	code, err := c.adc.readCode(c.index)
	if err != nil {
		return 0, err
	}

	v := float64(code) / MCP3008MaxCode
	if c.rng == Bipolar {
		v = 2*v - 1
	}
	return c.rng.Clamp(v), nil
}

// Range returns the declared range.
func (c *MCP3008Channel) Range() Range {
	return c.rng
}
