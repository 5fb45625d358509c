package gerber

import (
	"math"

	"github.com/akavel/polyclip-go"
	"github.com/go-gl/mathgl/mgl64"
)

// defaultRadiusTolerance is used when the active format's decimal
// digit count is unknown (FS not yet declared).
const defaultRadiusTolerance = 1e-6

// radiusTolerance implements §4.5's format-dependent single-quadrant
// arc tolerance: 10^-(decimalDigits+1), one order of magnitude finer
// than the format's own coordinate resolution. decimalDigits <= 0
// means the format hasn't been established yet, so the fixed fallback
// is used instead.
func radiusTolerance(decimalDigits int) float64 {
	if decimalDigits <= 0 {
		return defaultRadiusTolerance
	}
	return math.Pow(10, -(float64(decimalDigits) + 1))
}

// resolveSingleQuadrantCenter implements §4.5's single-quadrant arc
// sign resolution: I and J arrive as unsigned magnitudes, and the true
// center is whichever of the four (±I, ±J) combinations both puts
// start and end equidistant from the center (within tolerance) and
// produces a sweep of at most 90 degrees (mgl64.RadToDeg keeps the
// comparison in the same units the rest of this package logs in).
// Exactly one combination should satisfy both; zero or more than one
// is reported to the caller as ambiguous. decimalDigits is the active
// CoordinateFormat's decimal digit count, used to scale the tolerance.
func resolveSingleQuadrantCenter(start, end polyclip.Point, iMag, jMag float64, clockwise bool, decimalDigits int) (polyclip.Point, error) {
	tol := radiusTolerance(decimalDigits)
	var candidates []polyclip.Point
	for _, si := range []float64{1, -1} {
		for _, sj := range []float64{1, -1} {
			center := polyclip.Point{X: start.X + si*iMag, Y: start.Y + sj*jMag}
			r1 := math.Hypot(start.X-center.X, start.Y-center.Y)
			r2 := math.Hypot(end.X-center.X, end.Y-center.Y)
			if math.Abs(r1-r2) > tol {
				continue
			}
			sweep := arcSweepDegrees(center, start, end, clockwise)
			if sweep <= 90.0+1e-6 && !hasCenter(candidates, center, tol) {
				candidates = append(candidates, center)
			}
		}
	}
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	default:
		return polyclip.Point{}, errAmbiguousArc
	}
}

// hasCenter reports whether center already appears in candidates
// (within tol). A zero I or J magnitude makes two of the four sign
// combinations coincide, which is a valid unique center, not an
// ambiguity.
func hasCenter(candidates []polyclip.Point, center polyclip.Point, tol float64) bool {
	for _, c := range candidates {
		if math.Abs(c.X-center.X) < tol && math.Abs(c.Y-center.Y) < tol {
			return true
		}
	}
	return false
}

// arcSweepDegrees returns the angular distance traveled from start to
// end around center, going clockwise or counter-clockwise as
// requested, in the 0..360 range.
func arcSweepDegrees(center, start, end polyclip.Point, clockwise bool) float64 {
	a0 := math.Atan2(start.Y-center.Y, start.X-center.X)
	a1 := math.Atan2(end.Y-center.Y, end.X-center.X)
	var delta float64
	if clockwise {
		delta = a0 - a1
	} else {
		delta = a1 - a0
	}
	deg := mgl64.RadToDeg(delta)
	for deg < 0 {
		deg += 360
	}
	for deg > 360 {
		deg -= 360
	}
	if deg == 0 {
		deg = 360 // a full circle expressed as a "zero" sweep is still a 360 degree arc
	}
	return deg
}

var errAmbiguousArc = &ambiguousArcErr{}

type ambiguousArcErr struct{}

func (e *ambiguousArcErr) Error() string { return "no unique single-quadrant center" }
