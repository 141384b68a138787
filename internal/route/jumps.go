package route

import "github.com/wayline-gg/wayline/internal/worldmap"

// TeleportThreshold is the planar distance, in world units, at or beyond
// which two consecutive same-map samples count as a teleport rather than
// ordinary movement. Sprint speed covers well under 100 units between
// samples at the capture cadence, so 500 leaves a wide margin.
const TeleportThreshold = 500.0

// Jump is a discontinuity between two consecutive valid samples. Transition
// marks a cross-map move; otherwise the jump is a same-map teleport. Jumps
// carry their channel id so overlays showing several channels at once stay
// distinguishable.
type Jump struct {
	ChannelID  string         `json:"channelId"`
	From       Point          `json:"from"`
	To         Point          `json:"to"`
	FromMap    worldmap.MapID `json:"fromMap"`
	ToMap      worldmap.MapID `json:"toMap"`
	Transition bool           `json:"transition"`
}

// Jumps classifies the discontinuities in a chronologically ordered point
// sequence. Invalid points are skipped without breaking the walk: the last
// valid point stays the comparison anchor, so a sentinel sample in the
// middle of a teleport still yields one jump across it.
//
// Classification per consecutive valid pair, in priority order: differing
// display maps yield Transition=true regardless of distance (a transition
// door can land at the same world position); a planar distance at or above
// TeleportThreshold yields Transition=false; anything else is no jump.
func Jumps(channelID string, points []Point) []Jump {
	var jumps []Jump
	havePrev := false
	var prev Point

	for _, p := range points {
		if !p.Valid() {
			continue
		}
		if !havePrev {
			prev, havePrev = p, true
			continue
		}

		fromMap, toMap := prev.DisplayMap(), p.DisplayMap()
		switch {
		case fromMap != toMap:
			jumps = append(jumps, Jump{
				ChannelID:  channelID,
				From:       prev,
				To:         p,
				FromMap:    fromMap,
				ToMap:      toMap,
				Transition: true,
			})
		case PlanarDistance(prev, p) >= TeleportThreshold:
			jumps = append(jumps, Jump{
				ChannelID: channelID,
				From:      prev,
				To:        p,
				FromMap:   fromMap,
				ToMap:     toMap,
			})
		}
		prev = p
	}
	return jumps
}
