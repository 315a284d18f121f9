package estimator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/relabs-gnc/rocketgnc/internal/imu"
)

// Calibration is the immutable zeroing transform computed once on the pad:
// R0 maps the raw pad-orientation frame to the identity.
type Calibration struct {
	R0        *mat.Dense
	PsiMean   float64
	ThetaMean float64
	PhiMean   float64
	Samples   int
}

// Calibrate accumulates raw samples, forms their means, and builds R0 as
// the transpose of the mean-orientation DCM (its inverse, since a DCM is
// orthogonal). Fewer than minSamples is a fatal calibration failure.
func Calibrate(samples []imu.RawSample, minSamples int) (*Calibration, error) {
	if len(samples) < minSamples {
		return nil, fmt.Errorf("calibration: got %d samples, need at least %d", len(samples), minSamples)
	}

	var sumYaw, sumPitch, sumRoll float64
	for _, s := range samples {
		sumYaw += s.Yaw
		sumPitch += s.Pitch
		sumRoll += s.Roll
	}
	n := float64(len(samples))
	meanYaw, meanPitch, meanRoll := sumYaw/n, sumPitch/n, sumRoll/n

	d := buildDCM(meanYaw, meanPitch, meanRoll)
	var r0 mat.Dense
	r0.CloneFrom(d.T())

	return &Calibration{
		R0:        &r0,
		PsiMean:   meanYaw,
		ThetaMean: meanPitch,
		PhiMean:   meanRoll,
		Samples:   len(samples),
	}, nil
}
