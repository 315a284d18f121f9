package control

import (
	"math"
	"testing"

	"github.com/relabs-gnc/rocketgnc/internal/estimator"
)

// Scenario 2 from the end-to-end set: pure pitch error at phi=0.
func TestPurePitchErrorSaturates(t *testing.T) {
	l := New(Gains{Ktheta: 5, TdTheta: 3, Kpsi: 5, TdPsi: 3, Kphi: 1, TMax: 0.2, D: 0.005})

	att := estimator.Attitude{Theta: 0.3491, Psi: 0, OmegaX: 0}
	d := l.Evaluate(att)

	if math.Abs(d.Ftheta-0.2) > 1e-9 {
		t.Fatalf("F_theta should clip to T_max=0.2, got %v", d.Ftheta)
	}
	if d.Fpsi != 0 {
		t.Fatalf("F_psi should be 0, got %v", d.Fpsi)
	}
	if d.Mphi != 0 {
		t.Fatalf("M_phi should be 0, got %v", d.Mphi)
	}
}

func TestMomentClampedToRollLimit(t *testing.T) {
	l := New(Gains{Kphi: 100, TMax: 0.2, D: 0.005})
	d := l.Evaluate(estimator.Attitude{OmegaX: 1.0})
	limit := 2 * 0.005 * 0.2
	if math.Abs(d.Mphi-limit) > 1e-9 {
		t.Fatalf("M_phi should clip to %v, got %v", limit, d.Mphi)
	}
}

func TestUnsaturatedDemandPassesThrough(t *testing.T) {
	l := New(Gains{Ktheta: 5, TdTheta: 3, Kpsi: 5, TdPsi: 3, Kphi: 1, TMax: 0.2, D: 0.005})
	d := l.Evaluate(estimator.Attitude{Theta: 0.01, ThetaDot: 0})
	want := 5 * 0.01
	if math.Abs(d.Ftheta-want) > 1e-9 {
		t.Fatalf("expected unsaturated F_theta=%v, got %v", want, d.Ftheta)
	}
}
