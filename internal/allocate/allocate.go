// Package allocate solves the 4-variable thrust allocation and linearises
// the result through a calibrated valve table into PWM commands.
package allocate

import (
	"math"

	"github.com/relabs-gnc/rocketgnc/internal/control"
	"github.com/relabs-gnc/rocketgnc/internal/obsmetrics"
	"github.com/relabs-gnc/rocketgnc/internal/pubsub"
)

const (
	numNozzles     = 4
	numConstraints = 3
)

// ValveTable is the strictly monotone (thrust, pwm) calibration curve.
// Thrust[0] must be 0 and PWM[0] must be 0; the last thrust entry is
// T_max.
type ValveTable struct {
	Thrust []float64
	PWM    []uint16
}

// Assignment is the allocator's published output for one control tick.
type Assignment struct {
	TimestampUS int64
	Status      Status
	R           [numNozzles]float64
	PWM         [numNozzles]uint16
	ZeroIndex   int // index of a nozzle driven to exactly zero, -1 if none
}

// Allocator owns the valve table and saturation limit; stateless beyond
// that, so a single instance is safe for the control thread to reuse tick
// after tick.
type Allocator struct {
	TMax  float64
	Valve ValveTable
	Latest pubsub.Snapshot[Assignment]
}

// New builds an allocator around a fixed saturation limit and calibration
// table.
func New(tMax float64, valve ValveTable) *Allocator {
	return &Allocator{TMax: tMax, Valve: valve}
}

// Allocate solves the simplex for one control demand and maps the result
// through the valve table. On infeasible it publishes all-zero PWM; on
// unbounded it returns an error the caller must treat as fatal.
func (a *Allocator) Allocate(d control.Demand, d_nozzle float64) (Assignment, error) {
	rows, rhs := buildCoupling(d.Ftheta, d.Fpsi, d.Mphi, d.Phi, d_nozzle)

	res := solveSimplex(rows, rhs)
	// The minimum-thrust vertex also minimises the largest nozzle thrust, so
	// if it needs more than TMax on any nozzle no valve setting can produce
	// the demand: treat it as infeasible.
	if res.status == StatusOptimal {
		for _, r := range res.x {
			if r > a.TMax+pivotTolerance {
				res.status = StatusInfeasible
				break
			}
		}
	}
	obsmetrics.Get().AllocatorStatus.WithLabelValues(res.status.String()).Inc()

	out := Assignment{TimestampUS: d.TimestampUS, Status: res.status, ZeroIndex: -1}

	switch res.status {
	case StatusUnbounded:
		a.Latest.Publish(out)
		return out, errUnbounded

	case StatusInfeasible:
		a.Latest.Publish(out)
		return out, nil

	default: // optimal
		for i := 0; i < numNozzles; i++ {
			r := res.x[i]
			if r < 0 {
				r = 0
			}
			if r > a.TMax {
				r = a.TMax
			}
			out.R[i] = r
			out.PWM[i] = a.Valve.linearise(r)
			if r == 0 && out.ZeroIndex == -1 {
				out.ZeroIndex = i
			}
		}
		a.Latest.Publish(out)
		return out, nil
	}
}

// errUnbounded is returned when the simplex reports an unbounded solution,
// which the spec treats as a fatal software error.
var errUnbounded = &unboundedErr{}

type unboundedErr struct{}

func (e *unboundedErr) Error() string { return "simplex allocator reported unbounded" }

// buildCoupling fills the three-row coupling table from the instantaneous
// roll estimate, negating a row (and taking the RHS magnitude) whenever
// its demand is negative so every RHS the simplex sees is non-negative.
func buildCoupling(ftheta, fpsi, mphi, phi, d float64) ([numConstraints][numNozzles]float64, [numConstraints]float64) {
	cphi, sphi := math.Cos(phi), math.Sin(phi)

	rows := [numConstraints][numNozzles]float64{
		{cphi, -sphi, -cphi, sphi},
		{sphi, cphi, -sphi, -cphi},
		{d, -d, d, -d},
	}
	demands := [numConstraints]float64{ftheta, fpsi, mphi}
	var rhs [numConstraints]float64

	for i, v := range demands {
		if v < 0 {
			for j := range rows[i] {
				rows[i][j] = -rows[i][j]
			}
			rhs[i] = -v
		} else {
			rhs[i] = v
		}
	}
	return rows, rhs
}

// linearise maps a thrust value to its PWM integer via piecewise-linear
// interpolation on the calibrated table.
func (v ValveTable) linearise(r float64) uint16 {
	if r <= 0 {
		return 0
	}
	k := len(v.Thrust)
	if r >= v.Thrust[k-1] {
		return v.PWM[k-1]
	}
	for i := 1; i < k; i++ {
		if r < v.Thrust[i] {
			lo, hi := v.Thrust[i-1], v.Thrust[i]
			frac := (r - lo) / (hi - lo)
			pwm := float64(v.PWM[i-1]) + frac*(float64(v.PWM[i])-float64(v.PWM[i-1]))
			return uint16(math.Round(pwm))
		}
	}
	return v.PWM[k-1]
}
