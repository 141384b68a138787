// Package projection fits and applies the per-map affine transform from game
// world coordinates to map image pixels.
//
// A transform is fitted once per map from its calibration table by linear
// least squares and memoized by the Mapper for the process lifetime. The fit
// is diagnostic-friendly: every solve produces a residual report for logging
// and the monitor UI, never for control flow.
package projection

import "github.com/wayline-gg/wayline/internal/worldmap"

// Affine carries the six transform coefficients:
//
//	pixelX = A*gameX + B*gameZ + C
//	pixelY = D*gameX + E*gameZ + F
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// Apply maps a game-plane position to pixel coordinates.
func (t Affine) Apply(gameX, gameZ float64) (px, py float64) {
	px = t.A*gameX + t.B*gameZ + t.C
	py = t.D*gameX + t.E*gameZ + t.F
	return
}

// FallbackFor is the documented identity-like transform used when a map's
// calibration is underdetermined: unit scale, origin centered on the map's
// pixel dimensions.
func FallbackFor(mc worldmap.MapConfig) Affine {
	return Affine{
		A: 1, B: 0, C: float64(mc.WidthPx) / 2,
		D: 0, E: 1, F: float64(mc.HeightPx) / 2,
	}
}
