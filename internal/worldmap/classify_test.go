package worldmap

import "testing"

func TestDisplayMapForPriority(t *testing.T) {
	tests := []struct {
		name       string
		worldLayer uint8
		textual    string
		want       MapID
	}{
		{"explicit overworld layer", LayerOverworld, "", MapOverworld},
		{"explicit shadowlands layer", LayerShadowlands, "", MapShadowlands},
		{"layer wins over contradicting textual id", LayerShadowlands, "m60_10_10_00", MapShadowlands},
		{"unknown layer falls through to textual", 99, "m61_09_05_00", MapShadowlands},
		{"absent layer resolves textual overworld", 0, "m60_42_38_00", MapOverworld},
		{"underground area prefix", 0, "m12_00_00_00", MapUnderworld},
		{"second underground area prefix", 0, "m13_01_00_00", MapUnderworld},
		{"unrecognized prefix defaults", 0, "m47_00_00_00", DefaultMap},
		{"malformed textual defaults", 0, "garbage", DefaultMap},
		{"nothing at all defaults", 0, "", DefaultMap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DisplayMapFor(tt.worldLayer, tt.textual); got != tt.want {
				t.Errorf("DisplayMapFor(%d, %q) = %q, want %q", tt.worldLayer, tt.textual, got, tt.want)
			}
		})
	}
}

func TestValidSample(t *testing.T) {
	tests := []struct {
		name    string
		x, z    float64
		rawArea uint32
		want    bool
	}{
		{"normal sample", 10739.17, 9161.5, PackAreaID(60, 42, 38, 0), true},
		{"zero coordinate pair is sentinel", 0, 0, PackAreaID(60, 42, 38, 0), false},
		{"zero x alone is fine", 0, 9161.5, PackAreaID(60, 42, 38, 0), true},
		{"zero z alone is fine", 10739.17, 0, PackAreaID(60, 42, 38, 0), true},
		{"out of bounds area sentinel", 10739.17, 9161.5, AreaInvalid, false},
		{"both sentinels", 0, 0, AreaInvalid, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidSample(tt.x, tt.z, tt.rawArea); got != tt.want {
				t.Errorf("ValidSample(%v, %v, %#x) = %v, want %v", tt.x, tt.z, tt.rawArea, got, tt.want)
			}
		})
	}
}
