//go:build tinygo

package main

import "machine"

const (
	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 10   // Reported resolution in bits, matches adc.DefaultBits on the host

	// Serial configuration
	// Request "R<n>\n" is 3-4 bytes, reply "<n>,<code>\n" at most 7 bytes.
	// At 1 kHz sampling that is ~11,000 bytes/sec both ways; 115200 baud
	// gives 11,520 bytes/sec, so fast windows need a USB CDC link.
	UART_BAUD_RATE = 115200
)

// Analog inputs indexed by channel number in the request.
var adcPins = [...]machine.Pin{
	machine.A0, // Current transformer
	machine.A1, // Voltage transformer
	machine.A2,
	machine.A3,
}
