// Package control computes the PD/P attitude control law at a fixed
// cadence from the latest attitude snapshot.
package control

import (
	"github.com/relabs-gnc/rocketgnc/internal/estimator"
	"github.com/relabs-gnc/rocketgnc/internal/pubsub"
)

// Gains holds the PD gains for pitch/yaw and the P gain for roll, plus the
// saturation parameters shared with the allocator.
type Gains struct {
	Ktheta, TdTheta float64
	Kpsi, TdPsi     float64
	Kphi            float64
	TMax            float64
	D               float64
}

// Demand is the coherent control output published once per tick.
type Demand struct {
	TimestampUS int64
	Ftheta      float64
	Fpsi        float64
	Mphi        float64
	Phi         float64 // instantaneous roll estimate, passed through for the allocator's coupling table
}

// Law evaluates the control law against a gain set.
type Law struct {
	gains Gains
	Latest pubsub.Snapshot[Demand]
}

// New builds a control law with fixed gains and references nominally zero.
func New(gains Gains) *Law {
	return &Law{gains: gains}
}

// Evaluate computes F_theta, F_psi, M_phi from a coherent attitude
// snapshot and clamps each to its pre-allocator bound.
func (l *Law) Evaluate(att estimator.Attitude) Demand {
	g := l.gains

	ftheta := g.Ktheta*att.Theta + g.TdTheta*att.ThetaDot
	fpsi := g.Kpsi*att.Psi + g.TdPsi*att.PsiDot
	mphi := g.Kphi * att.OmegaX

	ftheta = clamp(ftheta, g.TMax)
	fpsi = clamp(fpsi, g.TMax)
	mphi = clamp(mphi, 2*g.D*g.TMax)

	d := Demand{
		TimestampUS: att.TimestampUS,
		Ftheta:      ftheta,
		Fpsi:        fpsi,
		Mphi:        mphi,
		Phi:         att.Phi,
	}
	l.Latest.Publish(d)
	return d
}

func clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
