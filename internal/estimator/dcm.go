package estimator

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// buildDCM forms the body-to-world direction cosine matrix from the
// Tait-Bryan ZYX triple (yaw about Z, pitch about Y, roll about X; x is
// the nose axis): D = Rz(yaw) * Ry(pitch) * Rx(roll).
func buildDCM(yaw, pitch, roll float64) *mat.Dense {
	cy, sy := math.Cos(yaw), math.Sin(yaw)
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	cr, sr := math.Cos(roll), math.Sin(roll)

	return mat.NewDense(3, 3, []float64{
		cy * cp, cy*sp*sr - sy*cr, cy*sp*cr + sy*sr,
		sy * cp, sy*sp*sr + cy*cr, sy*sp*cr - cy*sr,
		-sp, cp * sr, cp * cr,
	})
}

// recoverEuler extracts the ZYX triple back out of a DCM built by
// buildDCM, per the same row/column convention.
func recoverEuler(d *mat.Dense) (yaw, pitch, roll float64) {
	pitch = -math.Asin(d.At(2, 0))
	yaw = math.Atan2(d.At(1, 0), d.At(0, 0))
	roll = math.Atan2(d.At(2, 1), d.At(2, 2))
	return
}

// dcmHasNaN reports whether any entry of d is NaN.
func dcmHasNaN(d *mat.Dense) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.IsNaN(d.At(i, j)) {
				return true
			}
		}
	}
	return false
}

// unwrap picks the representative of angle (mod 2π) nearest to previous,
// so that no ±π discontinuity reaches the filters.
func unwrap(angle, previous float64) float64 {
	k := math.Round((previous - angle) / (2 * math.Pi))
	return angle + 2*math.Pi*k
}
