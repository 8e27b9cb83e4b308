package pixel

import "testing"

func within(a, b, eps float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

func TestSRGBRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		color [3]float32
	}{
		{"black", [3]float32{0, 0, 0}},
		{"white", [3]float32{1, 1, 1}},
		{"mid gray", [3]float32{0.5, 0.5, 0.5}},
		{"near black below cutoff", [3]float32{0.01, 0.02, 0.03}},
		{"saturated red", [3]float32{1, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			linear := ToLinear(tt.color)
			back := ToSRGB(linear)

			for i := range tt.color {
				if !within(back[i], tt.color[i], 0.001) {
					t.Errorf("channel %d: round trip = %v, want %v", i, back[i], tt.color[i])
				}
			}
		})
	}
}

func TestToLinearMonotonic(t *testing.T) {
	prev := ToLinear([3]float32{0, 0, 0})[0]
	for i := 1; i <= 10; i++ {
		x := float32(i) / 10
		cur := ToLinear([3]float32{x, x, x})[0]
		if cur < prev {
			t.Fatalf("ToLinear not monotonic at x=%v: prev=%v cur=%v", x, prev, cur)
		}
		prev = cur
	}
}

func TestFormatChannelPackUnpack(t *testing.T) {
	formats := []Format{A1R5G5B5, R5G6B5, A8R8G8B8}

	for _, f := range formats {
		srgb := [3]float32{0.25, 0.5, 0.75}
		packed := FromFloatSRGB(f, srgb)
		unpacked := ToFloatSRGB(f, packed)

		for i := range srgb {
			mask := f.Channels[i].Mask()
			tolerance := float32(1) / float32(mask)
			if !within(unpacked[i], srgb[i], tolerance) {
				t.Errorf("format %+v channel %d: unpacked = %v, want ~%v", f, i, unpacked[i], srgb[i])
			}
		}
	}
}
