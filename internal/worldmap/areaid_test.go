package worldmap

import "testing"

func TestPackSplitRoundTrip(t *testing.T) {
	raw := PackAreaID(60, 42, 38, 0)
	area, gridX, gridZ, sub := SplitAreaID(raw)
	if area != 60 || gridX != 42 || gridZ != 38 || sub != 0 {
		t.Errorf("SplitAreaID(PackAreaID(60,42,38,0)) = (%d,%d,%d,%d)", area, gridX, gridZ, sub)
	}
}

func TestFormatAreaID(t *testing.T) {
	tests := []struct {
		raw  uint32
		want string
	}{
		{PackAreaID(60, 42, 38, 0), "m60_42_38_00"},
		{PackAreaID(61, 9, 5, 2), "m61_09_05_02"},
		{PackAreaID(12, 0, 0, 0), "m12_00_00_00"},
		{AreaInvalid, "m255_255_255_255"},
	}
	for _, tt := range tests {
		if got := FormatAreaID(tt.raw); got != tt.want {
			t.Errorf("FormatAreaID(%#x) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseAreaID(t *testing.T) {
	tests := []struct {
		in     string
		want   uint32
		wantOK bool
	}{
		{"m60_42_38_00", PackAreaID(60, 42, 38, 0), true},
		{"m61_09_05_02", PackAreaID(61, 9, 5, 2), true},
		{"m12_00_00_00", PackAreaID(12, 0, 0, 0), true},
		{"60_42_38_00", 0, false},  // no leading marker
		{"m60_42_38", 0, false},    // too few parts
		{"m60_42_38_xx", 0, false}, // non-numeric part
		{"m60_42_38_00_01", 0, false},
		{"m300_00_00_00", 0, false}, // byte overflow
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAreaID(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseAreaID(%q) = (%#x, %v), want (%#x, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, raw := range []uint32{0, PackAreaID(60, 42, 38, 0), PackAreaID(61, 255, 1, 9)} {
		back, ok := ParseAreaID(FormatAreaID(raw))
		if !ok || back != raw {
			t.Errorf("round trip of %#x gave (%#x, %v)", raw, back, ok)
		}
	}
}

func TestAreaPrefix(t *testing.T) {
	tests := []struct {
		in     string
		want   uint8
		wantOK bool
	}{
		{"m60_42_38_00", 60, true},
		{"m61", 61, true},
		{"m12_xx", 12, true}, // tolerant of malformed tails
		{"m_42", 0, false},
		{"x60_42", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := AreaPrefix(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("AreaPrefix(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestAreaIDAt(t *testing.T) {
	raw := AreaIDAt(LayerOverworld, 10800.0, 9700.0, 0)
	area, gridX, gridZ, _ := SplitAreaID(raw)
	if area != LayerOverworld {
		t.Errorf("area = %d, want %d", area, LayerOverworld)
	}
	if gridX != 42 { // 10800 / 256 = 42.18
		t.Errorf("gridX = %d, want 42", gridX)
	}
	if gridZ != 37 { // 9700 / 256 = 37.89
		t.Errorf("gridZ = %d, want 37", gridZ)
	}

	// Out-of-range positions clamp instead of wrapping.
	raw = AreaIDAt(LayerOverworld, -500, 1e6, 0)
	_, gridX, gridZ, _ = SplitAreaID(raw)
	if gridX != 0 || gridZ != 255 {
		t.Errorf("clamped grid = (%d,%d), want (0,255)", gridX, gridZ)
	}
}
