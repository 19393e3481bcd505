package adc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the standard baud rate of the ADC bridge firmware.
	DefaultBaudRate = 115200
	// DefaultBits is the MCP3008 resolution.
	DefaultBits = 10
	// DefaultTimeout is the serial read timeout. A reply that does not
	// arrive within it fails the exchange.
	DefaultTimeout = 100 * time.Millisecond
)

var (
	// ErrNotConnected is returned by reads on a closed bridge.
	ErrNotConnected = errors.New("adc bridge not connected")
	// ErrTimeout is returned when the bridge does not answer in time.
	ErrTimeout = errors.New("adc bridge read timed out")
)

// timeoutReader turns the (0, nil) result of a timed-out serial read into
// ErrTimeout so a stalled bridge fails on the first empty read.
type timeoutReader struct {
	r io.Reader
}

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == nil && len(p) > 0 {
		return 0, ErrTimeout
	}
	return n, err
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Bridge is a connection to an MCU that converts ADC channels on request.
//
// Protocol, one exchange per sample:
//
//	host: R<channel>\n
//	mcu:  <channel>,<code>\n
//
// where code is the raw converter output in [0, 2^bits-1].
type Bridge struct {
	bits    int
	maxCode uint64

	mu        sync.Mutex
	conn      io.ReadWriteCloser
	reader    *bufio.Reader
	connected bool
	logger    *slog.Logger
}

// Open opens the serial port and returns a bridge bound to it.
func Open(port string, baudRate, bits int, timeout time.Duration) (*Bridge, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	conn, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	if err := conn.SetReadTimeout(timeout); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", port, err)
	}

	return NewBridge(conn, bits), nil
}

// NewBridge wraps an already open connection.
func NewBridge(conn io.ReadWriteCloser, bits int) *Bridge {
	if bits <= 0 {
		bits = DefaultBits
	}
	return &Bridge{
		bits:      bits,
		maxCode:   (uint64(1) << bits) - 1,
		conn:      conn,
		reader:    bufio.NewReader(timeoutReader{conn}),
		connected: true,
		logger:    slog.Default(),
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Channel returns a channel handle multiplexed over this bridge.
func (b *Bridge) Channel(index int, r Range) *SerialChannel {
	return &SerialChannel{bridge: b, index: index, rng: r}
}

// Close closes the underlying connection.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return nil
	}
	b.connected = false

	if err := b.conn.Close(); err != nil {
		b.logger.Warn("error closing adc bridge", slog.Any("error", err))
		return fmt.Errorf("failed to close adc bridge: %w", err)
	}
	return nil
}

// IsConnected returns whether the bridge is currently connected.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// readCode performs one request/response exchange.
func (b *Bridge) readCode(index int) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return 0, ErrNotConnected
	}

	if _, err := fmt.Fprintf(b.conn, "R%d\n", index); err != nil {
		return 0, fmt.Errorf("failed to send read request for channel %d: %w", index, err)
	}

	line, err := b.reader.ReadString('\n')
	if err != nil {
		// Drop any partial reply so the next exchange starts on a line boundary
		b.reader.Reset(timeoutReader{b.conn})
		return 0, fmt.Errorf("failed to read reply for channel %d: %w", index, err)
	}

	ch, code, err := parseLine(strings.TrimSpace(line), b.maxCode)
	if err != nil {
		return 0, err
	}
	if ch != index {
		return 0, fmt.Errorf("reply for channel %d while reading channel %d", ch, index)
	}

	return code, nil
}

// parseLine parses a bridge reply.
// Format: channel,code
// Example: 1,512
func parseLine(line string, maxCode uint64) (int, uint64, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid reply format: expected 2 comma-separated values, got %d", len(parts))
	}

	ch, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid channel: %w", err)
	}

	code, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid code: %w", err)
	}
	if code > maxCode {
		return 0, 0, fmt.Errorf("code out of range: %d (max %d)", code, maxCode)
	}

	return ch, code, nil
}

// SerialChannel is one input of a Bridge.
type SerialChannel struct {
	bridge *Bridge
	index  int
	rng    Range
}

// Read requests one conversion and normalizes it.
func (c *SerialChannel) Read() (float64, error) {
	code, err := c.bridge.readCode(c.index)
	if err != nil {
		return 0, err
	}

	v := float64(code) / float64(c.bridge.maxCode)
	if c.rng == Bipolar {
		v = 2*v - 1
	}
	return c.rng.Clamp(v), nil
}

// Range returns the declared range.
func (c *SerialChannel) Range() Range {
	return c.rng
}

// Index returns the bridge channel number.
func (c *SerialChannel) Index() int {
	return c.index
}
