package allocate

import (
	"math"
	"testing"

	"github.com/relabs-gnc/rocketgnc/internal/control"
)

func testValveTable() ValveTable {
	return ValveTable{
		Thrust: []float64{0, 0.05, 0.1, 0.15, 0.2},
		PWM:    []uint16{0, 256, 512, 768, 1023},
	}
}

// reconstruct recomputes (F_theta, F_psi, M_phi) from an assignment and
// the roll angle used to build the coupling table, per the allocator
// exactness law.
func reconstruct(r [numNozzles]float64, phi, d float64) (ftheta, fpsi, mphi float64) {
	cphi, sphi := math.Cos(phi), math.Sin(phi)
	ftheta = cphi*r[0] - sphi*r[1] - cphi*r[2] + sphi*r[3]
	fpsi = sphi*r[0] + cphi*r[1] - sphi*r[2] - cphi*r[3]
	mphi = d*r[0] - d*r[1] + d*r[2] - d*r[3]
	return
}

func TestAllocatorExactnessAtZeroRoll(t *testing.T) {
	a := New(0.2, testValveTable())
	d := 0.005
	demand := control.Demand{Ftheta: 0.1, Fpsi: 0, Mphi: 0, Phi: 0}

	out, err := a.Allocate(demand, d)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if out.Status != StatusOptimal {
		t.Fatalf("expected optimal, got %v", out.Status)
	}

	ftheta, fpsi, mphi := reconstruct(out.R, 0, d)
	if math.Abs(ftheta-0.1) > 1e-6 {
		t.Fatalf("F_theta not reproduced: got %v want 0.1", ftheta)
	}
	if math.Abs(fpsi) > 1e-6 || math.Abs(mphi) > 1e-6 {
		t.Fatalf("F_psi/M_phi should stay 0: got %v %v", fpsi, mphi)
	}

	zeroCount := 0
	for _, r := range out.R {
		if r == 0 {
			zeroCount++
		}
	}
	if zeroCount == 0 {
		t.Fatal("expected at least one R_i == 0")
	}
	if math.Abs(out.R[0]-0.1) > 1e-6 {
		t.Fatalf("R1 should carry the pitch demand at phi=0: got %v", out.R[0])
	}
}

func TestAllocatorRoutesToR2R4AtHalfPi(t *testing.T) {
	a := New(0.2, testValveTable())
	d := 0.005
	demand := control.Demand{Ftheta: 0.1, Fpsi: 0, Mphi: 0, Phi: math.Pi / 2}

	out, err := a.Allocate(demand, d)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if out.Status != StatusOptimal {
		t.Fatalf("expected optimal, got %v", out.Status)
	}

	ftheta, fpsi, mphi := reconstruct(out.R, math.Pi/2, d)
	if math.Abs(ftheta-0.1) > 1e-6 {
		t.Fatalf("F_theta not reproduced: got %v", ftheta)
	}
	if math.Abs(fpsi) > 1e-6 || math.Abs(mphi) > 1e-6 {
		t.Fatalf("F_psi/M_phi should stay 0: got %v %v", fpsi, mphi)
	}
	if out.R[1] == 0 && out.R[3] == 0 {
		t.Fatal("pitch demand at phi=pi/2 should route through R2/R4, both zero")
	}
}

func TestAllocatorBoundsAndSparsity(t *testing.T) {
	a := New(0.2, testValveTable())
	demand := control.Demand{Ftheta: 0.12, Fpsi: -0.08, Mphi: 0.0005, Phi: 0.3}
	out, err := a.Allocate(demand, 0.005)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if out.Status != StatusOptimal {
		t.Fatalf("expected optimal, got %v", out.Status)
	}
	zero := false
	for _, r := range out.R {
		if r < -1e-9 || r > a.TMax+1e-9 {
			t.Fatalf("R out of bounds: %v", r)
		}
		if r == 0 {
			zero = true
		}
	}
	if !zero {
		t.Fatal("expected at least one R_i == 0")
	}
}

func TestAllocatorInfeasibleDemandZerosPWM(t *testing.T) {
	a := New(0.2, testValveTable())
	demand := control.Demand{Ftheta: 10, Fpsi: 10, Mphi: 10, Phi: 0}
	out, err := a.Allocate(demand, 0.005)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusInfeasible {
		t.Fatalf("expected infeasible, got %v", out.Status)
	}
	for _, pwm := range out.PWM {
		if pwm != 0 {
			t.Fatalf("expected all-zero PWM on infeasible, got %v", out.PWM)
		}
	}
}

func TestValveLinearisation(t *testing.T) {
	v := testValveTable()
	if got := v.linearise(0); got != 0 {
		t.Fatalf("R=0 should map to PWM=0, got %v", got)
	}
	if got := v.linearise(0.2); got != 1023 {
		t.Fatalf("R>=thrust_last should map to pwm_last, got %v", got)
	}
	if got := v.linearise(0.075); got != 384 {
		t.Fatalf("midpoint of segment should interpolate linearly, got %v", got)
	}
}

func TestValveLinearityWithinSegment(t *testing.T) {
	v := testValveTable()
	ra, rb := 0.06, 0.09
	alpha := 0.3
	mix := alpha*ra + (1-alpha)*rb
	pa, pb, pm := float64(v.linearise(ra)), float64(v.linearise(rb)), float64(v.linearise(mix))
	want := alpha*pa + (1-alpha)*pb
	if math.Abs(pm-want) > 1.0 {
		t.Fatalf("PWM linearity violated: got %v want ~%v", pm, want)
	}
}
