package dispatch

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// WatchdogWindow is the controller-side deadline: silence past this
// interval forces all four PWM outputs to zero on the receiving end.
const WatchdogWindow = 150 * time.Millisecond

// Dispatcher owns the actuator serial descriptor exclusively once Open
// returns; only the dispatch goroutine touches port thereafter.
type Dispatcher struct {
	port serial.Port
}

// Open configures the actuator link at the given baud, 8-N-1, and arms the
// controller with the "@s!" handshake.
func Open(portName string, baud int) (*Dispatcher, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open actuator port %s: %w", portName, err)
	}
	port.SetReadTimeout(WatchdogWindow)

	d := &Dispatcher{port: port}
	if err := d.writeAcked([]byte("@s!")); err != nil {
		port.Close()
		return nil, fmt.Errorf("actuator handshake: %w", err)
	}
	return d, nil
}

// WriteFrame sends one 6-byte PWM command, acking each byte individually.
func (d *Dispatcher) WriteFrame(pwm [4]uint16) error {
	frame := packFrame(pwm)
	return d.writeAcked(frame[:])
}

// writeAcked writes bytes one at a time, blocking after each for a
// single-byte '!' acknowledgement.
func (d *Dispatcher) writeAcked(data []byte) error {
	ack := make([]byte, 1)
	for i, b := range data {
		if _, err := d.port.Write([]byte{b}); err != nil {
			return fmt.Errorf("write byte %d: %w", i, err)
		}
		if _, err := io.ReadFull(d.port, ack); err != nil {
			return fmt.Errorf("ack for byte %d: %w", i, err)
		}
		if ack[0] != '!' {
			return fmt.Errorf("byte %d: expected ack '!', got %q", i, ack[0])
		}
	}
	return nil
}

// Reset sends the "@e!" shutdown sequence; the controller resets after a
// brief delay and resumes accepting PWM frames once re-armed.
func (d *Dispatcher) Reset() error {
	return d.writeAcked([]byte("@e!"))
}

// Close releases the serial descriptor.
func (d *Dispatcher) Close() error {
	return d.port.Close()
}
