package route

import (
	"testing"

	"github.com/wayline-gg/wayline/internal/worldmap"
)

// pt builds a valid overworld-layer point at the given position.
func pt(ms int64, layer uint8, x, z float64) Point {
	return Point{
		GlobalX:       x,
		GlobalY:       100,
		GlobalZ:       z,
		RawAreaID:     worldmap.AreaIDAt(layer, x, z, 0),
		TextualAreaID: worldmap.FormatAreaID(worldmap.AreaIDAt(layer, x, z, 0)),
		WorldLayer:    layer,
		TimestampMs:   ms,
	}
}

// invalidPt builds a sentinel sample the capture side emits when the game
// has no position (zero coordinates, out-of-bounds area).
func invalidPt(ms int64) Point {
	return Point{RawAreaID: worldmap.AreaInvalid, TimestampMs: ms}
}

func TestJumpsMapChangeAlwaysTransitions(t *testing.T) {
	// Same world position on both sides: the map-id difference must still
	// dominate at distance zero.
	points := []Point{
		pt(0, worldmap.LayerOverworld, 5000, 5000),
		pt(100, worldmap.LayerShadowlands, 5000, 5000),
	}
	jumps := Jumps("route-a", points)
	if len(jumps) != 1 {
		t.Fatalf("got %d jumps, want 1", len(jumps))
	}
	j := jumps[0]
	if !j.Transition {
		t.Errorf("Transition = false, want true for a map change at distance 0")
	}
	if j.FromMap != worldmap.MapOverworld || j.ToMap != worldmap.MapShadowlands {
		t.Errorf("maps = %s->%s, want overworld->shadowlands", j.FromMap, j.ToMap)
	}
	if j.ChannelID != "route-a" {
		t.Errorf("ChannelID = %q, want %q", j.ChannelID, "route-a")
	}
}

func TestJumpsTeleportThreshold(t *testing.T) {
	tests := []struct {
		name     string
		dist     float64
		wantJump bool
	}{
		{"well under threshold", 30, false},
		{"just under threshold", 499.99, false},
		{"exactly at threshold", 500, true},
		{"over threshold", 2500, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points := []Point{
				pt(0, worldmap.LayerOverworld, 5000, 5000),
				pt(100, worldmap.LayerOverworld, 5000+tt.dist, 5000),
			}
			jumps := Jumps("r", points)
			if got := len(jumps) == 1; got != tt.wantJump {
				t.Fatalf("distance %v: got %d jumps, want jump=%v", tt.dist, len(jumps), tt.wantJump)
			}
			if tt.wantJump && jumps[0].Transition {
				t.Errorf("distance %v: Transition = true, want false for a same-map teleport", tt.dist)
			}
		})
	}
}

func TestJumpsHeightDoesNotCount(t *testing.T) {
	// A 600-unit drop with no planar movement is not a teleport: distance is
	// measured on the map plane.
	a := pt(0, worldmap.LayerOverworld, 5000, 5000)
	b := pt(100, worldmap.LayerOverworld, 5000, 5000)
	a.GlobalY = 700
	b.GlobalY = 100
	if jumps := Jumps("r", []Point{a, b}); len(jumps) != 0 {
		t.Errorf("got %d jumps for a pure height change, want 0", len(jumps))
	}
}

func TestJumpsSkipInvalidKeepsAnchor(t *testing.T) {
	// The sentinel sample in the middle must not reset the comparison
	// anchor: the teleport from (5000,5000) to (9000,5000) still registers
	// as one jump across it.
	points := []Point{
		pt(0, worldmap.LayerOverworld, 5000, 5000),
		invalidPt(50),
		pt(100, worldmap.LayerOverworld, 9000, 5000),
	}
	jumps := Jumps("r", points)
	if len(jumps) != 1 {
		t.Fatalf("got %d jumps, want 1", len(jumps))
	}
	if jumps[0].From.TimestampMs != 0 || jumps[0].To.TimestampMs != 100 {
		t.Errorf("jump spans %d->%d, want 0->100 (anchored on last valid point)",
			jumps[0].From.TimestampMs, jumps[0].To.TimestampMs)
	}
}

func TestJumpsLeadingInvalidPoints(t *testing.T) {
	points := []Point{
		invalidPt(0),
		invalidPt(10),
		pt(20, worldmap.LayerOverworld, 5000, 5000),
		pt(30, worldmap.LayerOverworld, 5020, 5000),
	}
	if jumps := Jumps("r", points); len(jumps) != 0 {
		t.Errorf("got %d jumps, want 0: leading sentinels must not pair with the first valid point", len(jumps))
	}
}

func TestJumpsSequence(t *testing.T) {
	// Walk, teleport, walk, transition, walk back. Expect exactly two jumps
	// in order.
	points := []Point{
		pt(0, worldmap.LayerOverworld, 5000, 5000),
		pt(100, worldmap.LayerOverworld, 5030, 5010),
		pt(200, worldmap.LayerOverworld, 8000, 5010), // teleport
		pt(300, worldmap.LayerOverworld, 8020, 5030),
		pt(400, worldmap.LayerShadowlands, 2000, 2000), // transition
		pt(500, worldmap.LayerShadowlands, 2040, 2010),
	}
	jumps := Jumps("r", points)
	if len(jumps) != 2 {
		t.Fatalf("got %d jumps, want 2", len(jumps))
	}
	if jumps[0].Transition {
		t.Errorf("first jump Transition = true, want false (teleport)")
	}
	if !jumps[1].Transition {
		t.Errorf("second jump Transition = false, want true (map change)")
	}
	if jumps[0].To.TimestampMs != 200 || jumps[1].To.TimestampMs != 400 {
		t.Errorf("jump arrivals at %d and %d, want 200 and 400",
			jumps[0].To.TimestampMs, jumps[1].To.TimestampMs)
	}
}

func TestJumpsEmptyAndSingle(t *testing.T) {
	if jumps := Jumps("r", nil); len(jumps) != 0 {
		t.Errorf("nil input: got %d jumps, want 0", len(jumps))
	}
	single := []Point{pt(0, worldmap.LayerOverworld, 5000, 5000)}
	if jumps := Jumps("r", single); len(jumps) != 0 {
		t.Errorf("single point: got %d jumps, want 0", len(jumps))
	}
}
