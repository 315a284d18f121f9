package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ScalarKalman is the two-state (value, rate) filter of one signal. Six
// independent instances run in parallel, one per signal named in the
// estimator's per-sample pipeline; none shares state with another.
type ScalarKalman struct {
	x *mat.VecDense // [value, rate]
	p *mat.Dense    // 2x2 covariance
	q *mat.Dense    // 2x2 process noise, diag(qv, qr)
	r float64       // measurement noise
}

// NewScalarKalman builds a filter seeded at value 0, rate 0, with a
// generous initial covariance so the first few updates converge quickly.
func NewScalarKalman(qv, qr, r float64) *ScalarKalman {
	return &ScalarKalman{
		x: mat.NewVecDense(2, []float64{0, 0}),
		p: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		q: mat.NewDense(2, 2, []float64{qv, 0, 0, qr}),
		r: r,
	}
}

// Value returns the filter's current value estimate.
func (k *ScalarKalman) Value() float64 { return k.x.AtVec(0) }

// Rate returns the filter's current rate estimate (its own internal
// derivative, not necessarily the same quantity as a sibling filter's
// measured rate).
func (k *ScalarKalman) Rate() float64 { return k.x.AtVec(1) }

// Reset reseeds value/rate and the covariance without discarding the tuned
// Q/R.
func (k *ScalarKalman) Reset(value, rate float64) {
	k.x = mat.NewVecDense(2, []float64{value, rate})
	k.p = mat.NewDense(2, 2, []float64{1, 0, 0, 1})
}

// Step runs one predict/update cycle against measurement z over interval
// dt. Returns an error for a non-positive innovation covariance S, which
// the caller must treat as a transient per-tick fault.
func (k *ScalarKalman) Step(z, dt float64) error {
	a := mat.NewDense(2, 2, []float64{1, dt, 0, 1})

	var xPred mat.VecDense
	xPred.MulVec(a, k.x)

	var ap mat.Dense
	ap.Mul(a, k.p)
	var apAt mat.Dense
	apAt.Mul(&ap, a.T())
	var pPred mat.Dense
	pPred.Add(&apAt, k.q)

	// C = [1, 0]
	s := pPred.At(0, 0) + k.r
	if s <= 0 || math.IsNaN(s) {
		return fmt.Errorf("non-positive innovation covariance S=%v", s)
	}

	innovation := z - xPred.AtVec(0)
	gain0 := pPred.At(0, 0) / s
	gain1 := pPred.At(1, 0) / s

	newValue := xPred.AtVec(0) + gain0*innovation
	newRate := xPred.AtVec(1) + gain1*innovation
	if math.IsNaN(newValue) || math.IsNaN(newRate) {
		return fmt.Errorf("filter produced NaN state")
	}
	k.x = mat.NewVecDense(2, []float64{newValue, newRate})

	// P <- (I - K*C) * Ppred, where K*C has rows [gain0,0;gain1,0].
	p00 := (1 - gain0) * pPred.At(0, 0)
	p01 := (1 - gain0) * pPred.At(0, 1)
	p10 := pPred.At(1, 0) - gain1*pPred.At(0, 0)
	p11 := pPred.At(1, 1) - gain1*pPred.At(0, 1)
	k.p = mat.NewDense(2, 2, []float64{p00, p01, p10, p11})

	return nil
}

// CovarianceDiag returns the two diagonal covariance entries, exposed for
// the invariant check that P stays finite with a non-negative diagonal.
func (k *ScalarKalman) CovarianceDiag() (float64, float64) {
	return k.p.At(0, 0), k.p.At(1, 1)
}
