package route

import "github.com/wayline-gg/wayline/internal/worldmap"

// Segment is a maximal contiguous run of valid points sharing one display
// map. StartIndex and EndIndex are inclusive positions in the input slice
// (so a renderer can correlate segments back to the raw sequence); Points
// holds only the valid points of the run.
type Segment struct {
	MapID      worldmap.MapID `json:"mapId"`
	StartIndex int            `json:"startIndex"`
	EndIndex   int            `json:"endIndex"`
	Points     []Point        `json:"points"`
}

// SegmentsByMap partitions an ordered point sequence into same-map runs,
// preserving order. It groups purely by display-map classification, the
// same classification Jumps uses, so segment boundaries and transition
// jumps agree by construction. Invalid points never open, close, or join a
// run; a run continues across them when the surrounding valid points share
// a map.
func SegmentsByMap(points []Point) []Segment {
	var segs []Segment
	var cur *Segment

	for i, p := range points {
		if !p.Valid() {
			continue
		}
		m := p.DisplayMap()
		if cur == nil || cur.MapID != m {
			segs = append(segs, Segment{MapID: m, StartIndex: i, EndIndex: i})
			cur = &segs[len(segs)-1]
		}
		cur.EndIndex = i
		cur.Points = append(cur.Points, p)
	}
	return segs
}

// FilterByMap returns the valid points classified onto the given map,
// preserving order. Convenience view for renderers that draw one map at a
// time.
func FilterByMap(points []Point, id worldmap.MapID) []Point {
	var out []Point
	for _, p := range points {
		if p.Valid() && p.DisplayMap() == id {
			out = append(out, p)
		}
	}
	return out
}
