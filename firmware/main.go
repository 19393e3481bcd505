//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"strconv"
)

var (
	adcs    [len(adcPins)]machine.ADC
	console = machine.Serial

	// Serial buffer for reading request lines
	serialBuffer [8]byte
	serialPos    int

	reply []byte
)

func main() {
	adcConfig := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: 12,
	}

	for i, pin := range adcPins {
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
		adcs[i] = machine.ADC{Pin: pin}
		adcs[i].Configure(adcConfig)
	}

	console.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	reply = make([]byte, 0, 16)

	for {
		processSerial()
	}
}

// processSerial consumes request bytes and answers complete lines.
func processSerial() {
	for console.Buffered() > 0 {
		data, err := console.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos > 1 && serialBuffer[0] == 'R' {
				handleRead(serialBuffer[1:serialPos])
			}
			serialPos = 0
			continue
		}

		if data == ' ' || data == '\t' {
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			// Overlong line, drop it
			serialPos = 0
		}
	}
}

// handleRead converts one channel and writes "<channel>,<code>\n".
func handleRead(arg []byte) {
	ch, err := strconv.Atoi(string(arg))
	if err != nil || ch < 0 || ch >= len(adcs) {
		return
	}

	// TinyGo returns a left-aligned 16-bit value regardless of resolution
	code := adcs[ch].Get() >> (16 - ADC_RESOLUTION)

	reply = reply[:0]
	reply = strconv.AppendInt(reply, int64(ch), 10)
	reply = append(reply, ',')
	reply = strconv.AppendUint(reply, uint64(code), 10)
	reply = append(reply, '\n')
	console.Write(reply)
}
