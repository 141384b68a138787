package worldmap

import (
	"fmt"
	"strconv"
	"strings"
)

// A raw area id packs four bytes 0xAAXXYYSS: area (world layer), grid X,
// grid Z, sub-region. Its textual form is "mAA_XX_YY_SS", e.g. "m60_42_38_00".
// World grid tiles span 256 game units per step on the two overworld layers.

// AreaInvalid is the out-of-bounds sentinel the capture side emits when the
// game has no position to report.
const AreaInvalid uint32 = 0xFFFFFFFF

// GridSpan is the world-unit extent of one grid step in an area id.
const GridSpan = 256.0

// SplitAreaID unpacks a raw area id into its four bytes.
func SplitAreaID(raw uint32) (area, gridX, gridZ, sub uint8) {
	area = uint8(raw >> 24)
	gridX = uint8(raw >> 16)
	gridZ = uint8(raw >> 8)
	sub = uint8(raw)
	return
}

// PackAreaID packs four bytes into a raw area id.
func PackAreaID(area, gridX, gridZ, sub uint8) uint32 {
	return uint32(area)<<24 | uint32(gridX)<<16 | uint32(gridZ)<<8 | uint32(sub)
}

// FormatAreaID renders a raw area id in its textual "mAA_XX_YY_SS" form.
func FormatAreaID(raw uint32) string {
	area, gridX, gridZ, sub := SplitAreaID(raw)
	return fmt.Sprintf("m%02d_%02d_%02d_%02d", area, gridX, gridZ, sub)
}

// ParseAreaID parses the strict textual form back into a raw area id.
// Returns ok=false on any shape or range violation.
func ParseAreaID(s string) (raw uint32, ok bool) {
	if !strings.HasPrefix(s, "m") {
		return 0, false
	}
	parts := strings.Split(s[1:], "_")
	if len(parts) != 4 {
		return 0, false
	}
	var bytes [4]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return 0, false
		}
		bytes[i] = uint8(v)
	}
	return PackAreaID(bytes[0], bytes[1], bytes[2], bytes[3]), true
}

// AreaPrefix extracts the leading numeric area from a textual id, tolerating
// truncated or partially malformed tails ("m61", "m12_xx" both yield their
// prefix). Returns ok=false when no digits follow the leading marker.
func AreaPrefix(s string) (area uint8, ok bool) {
	if !strings.HasPrefix(s, "m") {
		return 0, false
	}
	rest := s[1:]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.ParseUint(rest[:end], 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}

// AreaIDAt fabricates a raw area id for a global position on the given world
// layer, deriving the grid bytes from the position. Used by the synthetic
// route generator; capture clients report the real id from the game.
func AreaIDAt(area uint8, globalX, globalZ float64, sub uint8) uint32 {
	gx := int(globalX / GridSpan)
	gz := int(globalZ / GridSpan)
	if gx < 0 {
		gx = 0
	}
	if gz < 0 {
		gz = 0
	}
	if gx > 255 {
		gx = 255
	}
	if gz > 255 {
		gz = 255
	}
	return PackAreaID(area, uint8(gx), uint8(gz), sub)
}
