// Package imu maintains the framed binary stream from the attitude sensor
// and publishes the latest decoded sample, following the same
// open-then-frame-then-publish discipline the teacher's serial actuator
// link uses for its own wire protocol.
package imu

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"go.bug.st/serial"

	"github.com/relabs-gnc/rocketgnc/internal/pubsub"
)

const (
	frameBytes = 24
	syncToken  = "#S"
)

// RawSample is one decoded 24-byte frame plus the host arrival time.
type RawSample struct {
	TimestampUS int64
	Yaw         float64
	Pitch       float64
	Roll        float64
	AccelX      float64
	AccelY      float64
	AccelZ      float64
}

// Reader owns the serial descriptor for the attitude sensor. Only the
// reader goroutine touches port after Open returns.
type Reader struct {
	port        serial.Port
	syncRetries int
	Samples     pubsub.Snapshot[RawSample]
}

// Open configures the link at the given baud, 8-N-1, then runs the sync
// handshake before returning.
func Open(portName string, baud int, syncRetries int) (*Reader, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open imu port %s: %w", portName, err)
	}

	r := &Reader{port: port, syncRetries: syncRetries}
	if err := r.sync(); err != nil {
		port.Close()
		return nil, err
	}
	return r, nil
}

// sync issues the host commands that put the sensor into binary-continuous
// mode and scans for the "#S" reply, retrying up to syncRetries times
// before giving up.
func (r *Reader) sync() error {
	var lastErr error
	for attempt := 0; attempt <= r.syncRetries; attempt++ {
		if attempt > 0 {
			r.port.ResetInputBuffer()
		}
		if _, err := r.port.Write([]byte("#ob#o1#oe0#s")); err != nil {
			lastErr = fmt.Errorf("write sync request: %w", err)
			continue
		}
		r.port.SetReadTimeout(500 * time.Millisecond)
		buf := make([]byte, 2)
		if _, err := io.ReadFull(r.port, buf); err != nil {
			lastErr = fmt.Errorf("read sync reply: %w", err)
			continue
		}
		if bytes.Equal(buf, []byte(syncToken)) {
			r.port.SetReadTimeout(serial.NoTimeout)
			return nil
		}
		lastErr = fmt.Errorf("unexpected sync reply %q", buf)
	}
	return fmt.Errorf("imu sync failed after %d attempts: %w", r.syncRetries+1, lastErr)
}

// ReadOnce blocks for exactly one 24-byte frame, decodes it, publishes it,
// and returns it. A short read is returned as an error for the caller to
// classify as transient or, after repeated sync loss, fatal.
func (r *Reader) ReadOnce(now int64) (RawSample, error) {
	buf := make([]byte, frameBytes)
	if _, err := io.ReadFull(r.port, buf); err != nil {
		return RawSample{}, fmt.Errorf("short imu read: %w", err)
	}

	floats := make([]float64, 6)
	for i := 0; i < 6; i++ {
		bits := binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
		floats[i] = float64(math.Float32frombits(bits))
	}

	s := RawSample{
		TimestampUS: now,
		Yaw:         floats[0],
		Pitch:       floats[1],
		Roll:        floats[2],
		AccelX:      floats[3],
		AccelY:      floats[4],
		AccelZ:      floats[5],
	}
	r.Samples.Publish(s)
	return s, nil
}

// Resync drops the current framing and re-runs the handshake, used after
// a persistent run of short reads.
func (r *Reader) Resync() error {
	r.port.ResetInputBuffer()
	return r.sync()
}

// Close unblocks any in-flight read and releases the descriptor.
func (r *Reader) Close() error {
	return r.port.Close()
}
