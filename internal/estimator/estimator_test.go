package estimator

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/relabs-gnc/rocketgnc/internal/imu"
)

func TestUnwrapIdempotence(t *testing.T) {
	prev := 3.10
	angle := 3.103
	first := unwrap(angle, prev)
	second := unwrap(first, first)
	if math.Abs(first-second) > 1e-12 {
		t.Fatalf("unwrap not idempotent: %v vs %v", first, second)
	}
}

func TestUnwrapEdgeCase(t *testing.T) {
	// raw ψ sequence [3.10, -3.18] should unwrap to roughly [3.10, 3.103]
	u := unwrap(-3.18, 3.10)
	want := 3.103
	if math.Abs(u-want) > 0.01 {
		t.Fatalf("unwrap(-3.18, prev=3.10) = %v, want ~%v", u, want)
	}
}

func TestZeroingAtCalibrationMean(t *testing.T) {
	samples := make([]imu.RawSample, 0, 250)
	for i := 0; i < 250; i++ {
		samples = append(samples, imu.RawSample{Yaw: 0.10, Pitch: -0.05, Roll: 0.02})
	}
	cal, err := Calibrate(samples, 100)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}

	d := buildDCM(0.10, -0.05, 0.02)
	var dPrime mat.Dense
	dPrime.Mul(cal.R0, d)
	psi, theta, phi := recoverEuler(&dPrime)
	if math.Abs(psi) > 1e-9 || math.Abs(theta) > 1e-9 || math.Abs(phi) > 1e-9 {
		t.Fatalf("zeroed angles not ~0: psi=%v theta=%v phi=%v", psi, theta, phi)
	}
}

func TestCalibrationFailsBelowMinimum(t *testing.T) {
	samples := make([]imu.RawSample, 5)
	if _, err := Calibrate(samples, 100); err == nil {
		t.Fatal("expected calibration failure with too few samples")
	}
}

func TestScalarKalmanCovarianceStaysFiniteNonNegative(t *testing.T) {
	k := NewScalarKalman(0.001, 0.001, 0.01)
	for i := 0; i < 500; i++ {
		if err := k.Step(0.1, 0.02); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		p0, p1 := k.CovarianceDiag()
		if math.IsNaN(p0) || math.IsNaN(p1) || math.IsInf(p0, 0) || math.IsInf(p1, 0) {
			t.Fatalf("covariance diag not finite at step %d: %v %v", i, p0, p1)
		}
		if p0 < 0 || p1 < 0 {
			t.Fatalf("covariance diag negative at step %d: %v %v", i, p0, p1)
		}
	}
}

func TestScalarKalmanConverges(t *testing.T) {
	k := NewScalarKalman(0.001, 0.001, 0.01)
	for i := 0; i < 200; i++ {
		if err := k.Step(0.5, 0.02); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if math.Abs(k.Value()-0.5) > 0.01 {
		t.Fatalf("filter did not converge to constant measurement: got %v", k.Value())
	}
}

func TestEstimatorDropsOnNonPositiveDt(t *testing.T) {
	samples := make([]imu.RawSample, 200)
	for i := range samples {
		samples[i] = imu.RawSample{}
	}
	cal, err := Calibrate(samples, 100)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	noise := SignalNoise{Qv: 0.001, Qr: 0.001, R: 0.01}
	e := New(cal, noise, noise, noise, noise, noise, noise, 20)

	if err := e.Process(imu.RawSample{TimestampUS: 1000}); err != nil {
		t.Fatalf("first sample should seed prev, got err: %v", err)
	}
	if err := e.Process(imu.RawSample{TimestampUS: 900}); err == nil {
		t.Fatal("expected drop on non-positive dt")
	}
}
