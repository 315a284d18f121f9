package imu

import (
	"encoding/binary"
	"math"
	"testing"
)

func encodeFrame(yaw, pitch, roll, ax, ay, az float32) []byte {
	buf := make([]byte, frameBytes)
	vals := []float32{yaw, pitch, roll, ax, ay, az}
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf
}

func TestDecodeFrameOrderAndUnits(t *testing.T) {
	raw := encodeFrame(0.1, -0.2, 0.3, 1.0, 2.0, -9.8)

	floats := make([]float64, 6)
	for i := 0; i < 6; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		floats[i] = float64(math.Float32frombits(bits))
	}

	want := []float64{0.1, -0.2, 0.3, 1.0, 2.0, -9.8}
	for i := range want {
		got := floats[i]
		if math.Abs(got-want[i]) > 1e-5 {
			t.Fatalf("field %d: got %v want %v", i, got, want[i])
		}
	}
}

func TestSyncTokenRecognition(t *testing.T) {
	if syncToken != "#S" {
		t.Fatalf("sync token changed: %q", syncToken)
	}
}
