package worldmap

// World-layer bytes the capture side reports explicitly.
const (
	LayerOverworld   uint8 = 60
	LayerShadowlands uint8 = 61
)

// layerMaps resolves known world-layer bytes (and the matching area
// prefixes) to display maps.
var layerMaps = map[uint8]MapID{
	LayerOverworld:   MapOverworld,
	LayerShadowlands: MapShadowlands,
}

// undergroundAreas are the grid-less regions displayed on the underworld map.
var undergroundAreas = map[uint8]bool{
	12: true,
	13: true,
}

// DisplayMapFor resolves which display map a sample belongs to, in priority
// order: the explicit world-layer byte when present and known, then the
// numeric prefix of the textual area id, then DefaultMap. Total: any input
// resolves to some map.
func DisplayMapFor(worldLayer uint8, textualAreaID string) MapID {
	if m, ok := layerMaps[worldLayer]; ok {
		return m
	}
	if area, ok := AreaPrefix(textualAreaID); ok {
		if m, ok := layerMaps[area]; ok {
			return m
		}
		if undergroundAreas[area] {
			return MapUnderworld
		}
	}
	return DefaultMap
}

// ValidSample reports whether a sample carries a usable position: the global
// (x,z) pair must not be the zero sentinel and the raw area id must not be
// the out-of-bounds sentinel.
func ValidSample(globalX, globalZ float64, rawAreaID uint32) bool {
	if globalX == 0 && globalZ == 0 {
		return false
	}
	return rawAreaID != AreaInvalid
}
