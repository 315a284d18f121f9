package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/relabs-gnc/rocketgnc/internal/imu"
	"github.com/relabs-gnc/rocketgnc/internal/pubsub"
)

// Attitude is the coherent, atomically-published result of one estimator
// tick: filtered Euler angles and rates plus derived body rates.
type Attitude struct {
	TimestampUS int64
	Psi, Theta, Phi             float64
	PsiDot, ThetaDot, PhiDot    float64
	OmegaX, OmegaY, OmegaZ      float64
	DtUS                        int64
}

// Estimator owns the six scalar Kalman filters and the unwrap/diff state.
// Only the estimator goroutine mutates it; consumers read only through
// Latest.
type Estimator struct {
	cal *Calibration

	kPsi, kTheta, kPhi          *ScalarKalman
	kPsiDot, kThetaDot, kPhiDot *ScalarKalman

	prevPsi, prevTheta, prevPhi float64
	prevTimestampUS             int64
	havePrev                    bool

	consecutiveDrops int
	maxDrops         int

	Latest pubsub.Snapshot[Attitude]
}

// SignalNoise is one (Qv, Qr, R) tuning triple for a scalar Kalman filter.
type SignalNoise struct {
	Qv, Qr, R float64
}

// New builds an estimator around a completed calibration and the six
// per-signal noise tunings.
func New(cal *Calibration, psi, theta, phi, psiDot, thetaDot, phiDot SignalNoise, maxConsecutiveDrops int) *Estimator {
	return &Estimator{
		cal:      cal,
		kPsi:     NewScalarKalman(psi.Qv, psi.Qr, psi.R),
		kTheta:   NewScalarKalman(theta.Qv, theta.Qr, theta.R),
		kPhi:     NewScalarKalman(phi.Qv, phi.Qr, phi.R),
		kPsiDot:  NewScalarKalman(psiDot.Qv, psiDot.Qr, psiDot.R),
		kThetaDot: NewScalarKalman(thetaDot.Qv, thetaDot.Qr, thetaDot.R),
		kPhiDot:  NewScalarKalman(phiDot.Qv, phiDot.Qr, phiDot.R),
		maxDrops: maxConsecutiveDrops,
	}
}

// droppedErr marks a transient per-tick fault: the sample is skipped and
// the previous snapshot remains current.
type droppedErr struct{ reason string }

func (e *droppedErr) Error() string { return e.reason }

// FatalErr marks a persistent fault threshold crossed.
type FatalErr struct{ Reason string }

func (e *FatalErr) Error() string { return e.Reason }

// Process runs one raw sample through the zeroing/unwrap/differentiate/
// Kalman pipeline. On a transient fault it returns a *droppedErr and
// leaves Latest unchanged; on exceeding the consecutive-drop threshold it
// returns *FatalErr.
func (e *Estimator) Process(raw imu.RawSample) error {
	d := buildDCM(raw.Yaw, raw.Pitch, raw.Roll)

	var dPrime mat.Dense
	dPrime.Mul(e.cal.R0, d)
	if dcmHasNaN(&dPrime) {
		return e.drop("NaN in zeroed DCM")
	}

	psi, theta, phi := recoverEuler(&dPrime)

	if !e.havePrev {
		e.prevPsi, e.prevTheta, e.prevPhi = psi, theta, phi
		e.prevTimestampUS = raw.TimestampUS
		e.havePrev = true
		e.consecutiveDrops = 0
		e.Latest.Publish(Attitude{TimestampUS: raw.TimestampUS})
		return nil
	}

	psiU := unwrap(psi, e.prevPsi)
	thetaU := unwrap(theta, e.prevTheta)
	phiU := unwrap(phi, e.prevPhi)

	dtUS := raw.TimestampUS - e.prevTimestampUS
	if dtUS <= 0 {
		return e.drop(fmt.Sprintf("non-positive dt=%dus", dtUS))
	}
	dt := float64(dtUS) / 1e6

	psiDot := (psiU - e.prevPsi) / dt
	thetaDot := (thetaU - e.prevTheta) / dt
	phiDot := (phiU - e.prevPhi) / dt

	if err := e.kPsi.Step(psiU, dt); err != nil {
		return e.drop(err.Error())
	}
	if err := e.kTheta.Step(thetaU, dt); err != nil {
		return e.drop(err.Error())
	}
	if err := e.kPhi.Step(phiU, dt); err != nil {
		return e.drop(err.Error())
	}
	if err := e.kPsiDot.Step(psiDot, dt); err != nil {
		return e.drop(err.Error())
	}
	if err := e.kThetaDot.Step(thetaDot, dt); err != nil {
		return e.drop(err.Error())
	}
	if err := e.kPhiDot.Step(phiDot, dt); err != nil {
		return e.drop(err.Error())
	}

	psiF, thetaF, phiF := e.kPsi.Value(), e.kTheta.Value(), e.kPhi.Value()
	psiDotF, thetaDotF, phiDotF := e.kPsiDot.Value(), e.kThetaDot.Value(), e.kPhiDot.Value()

	omegaX := phiDotF - psiDotF*math.Sin(thetaF)
	omegaY := thetaDotF*math.Cos(phiF) + psiDotF*math.Cos(thetaF)*math.Sin(phiF)
	omegaZ := psiDotF*math.Cos(thetaF)*math.Cos(phiF) - thetaDotF*math.Sin(phiF)

	e.prevPsi, e.prevTheta, e.prevPhi = psiU, thetaU, phiU
	e.prevTimestampUS = raw.TimestampUS
	e.consecutiveDrops = 0

	e.Latest.Publish(Attitude{
		TimestampUS: raw.TimestampUS,
		Psi:         psiF, Theta: thetaF, Phi: phiF,
		PsiDot: psiDotF, ThetaDot: thetaDotF, PhiDot: phiDotF,
		OmegaX: omegaX, OmegaY: omegaY, OmegaZ: omegaZ,
		DtUS: dtUS,
	})
	return nil
}

// drop counts a transient fault and escalates to fatal past the
// configured threshold. The previous snapshot (already published) stands
// in for this tick.
func (e *Estimator) drop(reason string) error {
	e.consecutiveDrops++
	if e.consecutiveDrops >= e.maxDrops {
		return &FatalErr{Reason: fmt.Sprintf("%d consecutive estimator drops, last: %s", e.consecutiveDrops, reason)}
	}
	return &droppedErr{reason: reason}
}
