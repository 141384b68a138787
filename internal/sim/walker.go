// Package sim generates synthetic position streams for demos and load
// tests. A RouteWalker produces the same batches a capture client would
// push, exercising every derivation downstream: smooth segments, same-map
// teleports, cross-map transitions, and dropped invalid samples.
package sim

import (
	"math"
	"math/rand"
	"time"

	"github.com/wayline-gg/wayline/internal/route"
	"github.com/wayline-gg/wayline/internal/worldmap"
)

// RouteWalker generates synthetic route points for testing and demos.
type RouteWalker struct {
	sampleIdx int
	clockMs   int64
	heading   float64
	x, z      float64
	area      uint8
	layer     uint8

	// Configuration
	SampleHz        float64 // position samples per second
	SpeedUnits      float64 // world units per second while walking
	TurnJitterRad   float64 // max per-sample heading change
	TeleportEvery   int     // samples between same-map teleports (0 disables)
	TransitionEvery int     // samples between map transitions (0 disables)
	TeleportRange   float64 // world units covered by one teleport
	InvalidRate     float64 // fraction of samples emitted as the sentinel

	// Internal state
	rng *rand.Rand
}

// NewRouteWalker creates a walker starting mid-overworld with a recording
// clock pinned to now.
func NewRouteWalker() *RouteWalker {
	return &RouteWalker{
		clockMs:         time.Now().UnixMilli(),
		x:               8000,
		z:               8000,
		area:            worldmap.LayerOverworld,
		layer:           worldmap.LayerOverworld,
		SampleHz:        4.0,
		SpeedUnits:      180.0,
		TurnJitterRad:   0.4,
		TeleportEvery:   40,
		TransitionEvery: 100,
		TeleportRange:   2000.0,
		InvalidRate:     0,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NextPoint advances the walk by one sample and returns it. Transition and
// teleport cadences are checked in that order, so when both land on the same
// sample the transition wins, matching how the jump classifier prioritises.
func (w *RouteWalker) NextPoint() route.Point {
	w.sampleIdx++
	w.clockMs += int64(1000.0 / w.SampleHz)

	if w.InvalidRate > 0 && w.rng.Float64() < w.InvalidRate {
		return w.invalidSample()
	}

	switch {
	case w.TransitionEvery > 0 && w.sampleIdx%w.TransitionEvery == 0:
		w.crossMap()
	case w.TeleportEvery > 0 && w.sampleIdx%w.TeleportEvery == 0:
		w.teleport()
	default:
		w.walk()
	}

	return w.point()
}

// NextBatch advances the walk by n samples and returns them in order.
func (w *RouteWalker) NextBatch(n int) []route.Point {
	batch := make([]route.Point, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, w.NextPoint())
	}
	return batch
}

// walk takes one smooth step: jitter the heading, then move at walking speed.
func (w *RouteWalker) walk() {
	w.heading += (w.rng.Float64()*2 - 1) * w.TurnJitterRad
	step := w.SpeedUnits / w.SampleHz
	w.x += step * math.Cos(w.heading)
	w.z += step * math.Sin(w.heading)
	w.clampPosition()
}

// teleport relocates far enough that the jump classifier must flag it.
func (w *RouteWalker) teleport() {
	angle := w.rng.Float64() * 2 * math.Pi
	dist := w.TeleportRange * (1 + w.rng.Float64())
	w.x += dist * math.Cos(angle)
	w.z += dist * math.Sin(angle)
	w.heading = w.rng.Float64() * 2 * math.Pi
	w.clampPosition()
}

// crossMap toggles between the overworld and the underworld, keeping the
// position: transition doors can land anywhere.
func (w *RouteWalker) crossMap() {
	if w.area == worldmap.LayerOverworld {
		// Underground samples carry no explicit layer byte; classification
		// falls back to the area prefix.
		w.area = 12
		w.layer = 0
	} else {
		w.area = worldmap.LayerOverworld
		w.layer = worldmap.LayerOverworld
	}
}

// clampPosition keeps the walk inside the coordinate range the grid bytes
// can express.
func (w *RouteWalker) clampPosition() {
	max := 255 * worldmap.GridSpan
	if w.x < worldmap.GridSpan {
		w.x = worldmap.GridSpan
	}
	if w.z < worldmap.GridSpan {
		w.z = worldmap.GridSpan
	}
	if w.x > max {
		w.x = max
	}
	if w.z > max {
		w.z = max
	}
}

func (w *RouteWalker) point() route.Point {
	raw := worldmap.AreaIDAt(w.area, w.x, w.z, 0)
	return route.Point{
		LocalX:        math.Mod(w.x, worldmap.GridSpan),
		LocalY:        60 + w.rng.Float64()*4,
		LocalZ:        math.Mod(w.z, worldmap.GridSpan),
		GlobalX:       w.x,
		GlobalY:       60 + w.rng.Float64()*4,
		GlobalZ:       w.z,
		RawAreaID:     raw,
		TextualAreaID: worldmap.FormatAreaID(raw),
		WorldLayer:    w.layer,
		TimestampMs:   w.clockMs,
	}
}

// invalidSample is the out-of-bounds sentinel a capture client emits during
// loading screens. The merge layer drops it; emitting some keeps the dropped
// counters honest under load.
func (w *RouteWalker) invalidSample() route.Point {
	return route.Point{
		RawAreaID:     worldmap.AreaInvalid,
		TextualAreaID: "m255_255_255_255",
		TimestampMs:   w.clockMs,
	}
}
