// Package route derives renderable views from one channel's ordered point
// sequence: maximal same-map segments and the discontinuities between
// consecutive samples (same-map teleports and cross-map transitions).
//
// Everything here is a pure function over an already-ordered slice; ordering
// and de-duplication are the stream package's job.
package route

import (
	"math"
	"time"

	"github.com/wayline-gg/wayline/internal/worldmap"
)

// Point is one world-position sample as reported by a capture client.
// TimestampMs is the capture-side recording clock and is the sole ordering
// key; ServerReceivedAt is informational.
type Point struct {
	LocalX  float64 `json:"localX"`
	LocalY  float64 `json:"localY"`
	LocalZ  float64 `json:"localZ"`
	GlobalX float64 `json:"globalX"`
	GlobalY float64 `json:"globalY"`
	GlobalZ float64 `json:"globalZ"`

	RawAreaID     uint32 `json:"rawAreaId"`
	TextualAreaID string `json:"textualAreaId"`
	// WorldLayer is the explicit layer byte when the capture side knows it;
	// zero means absent.
	WorldLayer uint8 `json:"worldLayer,omitempty"`

	TimestampMs      int64      `json:"timestampMs"`
	ServerReceivedAt *time.Time `json:"serverReceivedAt,omitempty"`
}

// DisplayMap resolves which display map this point belongs to.
func (p Point) DisplayMap() worldmap.MapID {
	return worldmap.DisplayMapFor(p.WorldLayer, p.TextualAreaID)
}

// Valid reports whether the point carries a usable position.
func (p Point) Valid() bool {
	return worldmap.ValidSample(p.GlobalX, p.GlobalZ, p.RawAreaID)
}

// Finite reports whether every coordinate is a finite number. Capture bugs
// occasionally produce NaN positions; they are dropped at merge time.
func (p Point) Finite() bool {
	for _, v := range []float64{p.LocalX, p.LocalY, p.LocalZ, p.GlobalX, p.GlobalY, p.GlobalZ} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// PlanarDistance is the map-plane distance between two points on their
// global (x,z) coordinates. Height (y) never participates: the display maps
// are top-down.
func PlanarDistance(a, b Point) float64 {
	return math.Hypot(b.GlobalX-a.GlobalX, b.GlobalZ-a.GlobalZ)
}
