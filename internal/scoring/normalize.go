// Package scoring holds the piecewise normalization curves shared by the
// ORB engine's confidence score, the priority ranker, and the 0DTE
// contract-selection scorer — all three "map a raw metric into [0,1] with
// a floor and a ceiling" in the same shape, so the curve itself lives in
// one place instead of being re-derived per caller.
package scoring

// Piecewise linearly interpolates x from [loX, hiX] into [loY, hiY],
// clamping outside the domain. Used for every "floor at A, 1.0 at B"
// normalization curve in this package.
func Piecewise(x, loX, hiX, loY, hiY float64) float64 {
	if hiX == loX {
		return hiY
	}
	if x <= loX {
		return loY
	}
	if x >= hiX {
		return hiY
	}
	frac := (x - loX) / (hiX - loX)
	return loY + frac*(hiY-loY)
}

// BreakoutPctScore normalizes "% beyond the ORB extreme": 0.15 below
// 0.2%, ramping to 1.0 at >= 5%.
func BreakoutPctScore(pct float64) float64 {
	return Piecewise(pct, 0.002, 0.05, 0.15, 1.0)
}

// ORBRangePctScore normalizes orb_range/orb_low: 0.30
// below 0.15%, ramping to 1.0 at >= 0.50%.
func ORBRangePctScore(pct float64) float64 {
	return Piecewise(pct, 0.0015, 0.0050, 0.30, 1.0)
}

// VolumeRatioScore normalizes current/ORB-average volume: 0.25 below
// 1.2x, ramping to 1.0 at >= 3.0x.
func VolumeRatioScore(ratio float64) float64 {
	return Piecewise(ratio, 1.2, 3.0, 0.25, 1.0)
}

// MomentumScore normalizes directional momentum beyond the ORB extreme:
// 0.30 below 0.2%, ramping to 1.0 at >= 2.0%.
func MomentumScore(pct float64) float64 {
	return Piecewise(pct, 0.002, 0.02, 0.30, 1.0)
}

// Clamp01 clamps x into [0,1].
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
