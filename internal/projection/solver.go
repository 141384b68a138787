package projection

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wayline-gg/wayline/internal/worldmap"
)

// FitMode records which solve path produced a transform.
type FitMode string

const (
	// FitAffine is the full six-coefficient least-squares fit.
	FitAffine FitMode = "affine"
	// FitAxisAligned is the degraded four-coefficient fit used when the
	// normal equations are singular (collinear inputs, or exactly two
	// correspondences).
	FitAxisAligned FitMode = "axis-aligned"
	// FitFallback is the identity-like transform used when fewer than two
	// correspondences exist or every solve path degenerates.
	FitFallback FitMode = "fallback"
)

// FitReport carries the residual diagnostics of one solve. Logging and the
// monitor UI consume it; nothing branches on it.
type FitReport struct {
	Mode        FitMode
	Points      int
	PointErrors []float64 // pixel distance per calibration point
	Mean        float64
	Max         float64
	RMS         float64
}

// Solve fits an affine transform to the calibration table. Fewer than two
// points returns the provided fallback; singular systems degrade to an
// axis-aligned fit. Never fails: some usable transform always comes back,
// with the report saying how it was obtained.
func Solve(points []worldmap.CalibrationPoint, fallback Affine) (Affine, FitReport) {
	if len(points) < 2 {
		return fallback, reportFor(fallback, points, FitFallback)
	}

	// Accumulate the shared normal-equation sums. Both targets (pixelX and
	// pixelY) see the same design matrix, so the 3x3 left-hand side is built
	// once.
	var sx, sz, sxx, szz, sxz float64
	var sxp, szp, sp float64 // cross terms with pixelX
	var sxq, szq, sq float64 // cross terms with pixelY
	for _, p := range points {
		sx += p.GameX
		sz += p.GameZ
		sxx += p.GameX * p.GameX
		szz += p.GameZ * p.GameZ
		sxz += p.GameX * p.GameZ
		sxp += p.GameX * p.PixelX
		szp += p.GameZ * p.PixelX
		sp += p.PixelX
		sxq += p.GameX * p.PixelY
		szq += p.GameZ * p.PixelY
		sq += p.PixelY
	}
	n := float64(len(points))

	lhs := [3][3]float64{
		{sxx, sxz, sx},
		{sxz, szz, sz},
		{sx, sz, n},
	}

	abc, okX := solve3(lhs, [3]float64{sxp, szp, sp})
	def, okY := solve3(lhs, [3]float64{sxq, szq, sq})
	if okX && okY {
		t := Affine{A: abc[0], B: abc[1], C: abc[2], D: def[0], E: def[1], F: def[2]}
		return t, reportFor(t, points, FitAffine)
	}

	if t, ok := solveAxisAligned(points); ok {
		return t, reportFor(t, points, FitAxisAligned)
	}
	return fallback, reportFor(fallback, points, FitFallback)
}

// solve3 performs Gaussian elimination with partial pivoting on a 3x3 system.
// Reports ok=false when a pivot is negligible relative to the matrix scale,
// i.e. the system is singular.
func solve3(m [3][3]float64, rhs [3]float64) ([3]float64, bool) {
	// Augmented matrix.
	var a [3][4]float64
	scale := 0.0
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			a[i][j] = m[i][j]
			if v := math.Abs(m[i][j]); v > scale {
				scale = v
			}
		}
		a[i][3] = rhs[i]
	}
	if scale == 0 {
		return [3]float64{}, false
	}
	eps := 1e-9 * scale

	for col := 0; col < 3; col++ {
		// Partial pivot: swap in the row with the largest magnitude in this
		// column.
		pivot := col
		for row := col + 1; row < 3; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < eps {
			return [3]float64{}, false
		}
		a[col], a[pivot] = a[pivot], a[col]

		for row := col + 1; row < 3; row++ {
			f := a[row][col] / a[col][col]
			for k := col; k < 4; k++ {
				a[row][k] -= f * a[col][k]
			}
		}
	}

	// Back substitution.
	var out [3]float64
	for i := 2; i >= 0; i-- {
		v := a[i][3]
		for j := i + 1; j < 3; j++ {
			v -= a[i][j] * out[j]
		}
		out[i] = v / a[i][i]
	}
	return out, true
}

// solveAxisAligned fits pixelX = A*gameX + C and pixelY = E*gameZ + F by
// one-dimensional least squares. Exact for two distinct correspondences.
func solveAxisAligned(points []worldmap.CalibrationPoint) (Affine, bool) {
	var sx, sz, sxx, szz, sxp, szq, sp, sq float64
	for _, p := range points {
		sx += p.GameX
		sz += p.GameZ
		sxx += p.GameX * p.GameX
		szz += p.GameZ * p.GameZ
		sxp += p.GameX * p.PixelX
		szq += p.GameZ * p.PixelY
		sp += p.PixelX
		sq += p.PixelY
	}
	n := float64(len(points))

	denX := n*sxx - sx*sx
	denZ := n*szz - sz*sz
	if denX == 0 || denZ == 0 {
		return Affine{}, false
	}
	a := (n*sxp - sx*sp) / denX
	c := (sp - a*sx) / n
	e := (n*szq - sz*sq) / denZ
	f := (sq - e*sz) / n
	return Affine{A: a, C: c, E: e, F: f}, true
}

func reportFor(t Affine, points []worldmap.CalibrationPoint, mode FitMode) FitReport {
	rep := FitReport{Mode: mode, Points: len(points)}
	if len(points) == 0 {
		return rep
	}

	rep.PointErrors = make([]float64, len(points))
	squares := make([]float64, len(points))
	for i, p := range points {
		px, py := t.Apply(p.GameX, p.GameZ)
		err := math.Hypot(px-p.PixelX, py-p.PixelY)
		rep.PointErrors[i] = err
		squares[i] = err * err
		if err > rep.Max {
			rep.Max = err
		}
	}
	rep.Mean = stat.Mean(rep.PointErrors, nil)
	rep.RMS = math.Sqrt(stat.Mean(squares, nil))
	return rep
}
