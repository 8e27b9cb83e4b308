package pixel

import "testing"

func TestBufferResizePreservesOverlappingRows(t *testing.T) {
	var b Buffer
	b.ResizeAuto(4, 4, 8) // 1 byte per pixel

	for i := range b.Data {
		b.Data[i] = byte(i + 1)
	}

	// Grow in both dimensions; the original 4x4 region should survive.
	b.ResizeAuto(8, 8, 8)

	if b.Width != 8 || b.Height != 8 {
		t.Fatalf("after resize: width=%d height=%d, want 8x8", b.Width, b.Height)
	}

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want := byte(y*4 + x + 1)
			got := b.Data[b.PixelOffset(x, y)]
			if got != want {
				t.Errorf("pixel (%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestBufferResizeShrinkDropsRows(t *testing.T) {
	var b Buffer
	b.ResizeAuto(4, 4, 8)
	for i := range b.Data {
		b.Data[i] = 0xFF
	}

	b.ResizeAuto(2, 2, 8)

	if b.Bytes() != 4 {
		t.Fatalf("Bytes() = %d, want 4", b.Bytes())
	}
}

func TestBufferResizeToZeroFrees(t *testing.T) {
	var b Buffer
	b.ResizeAuto(4, 4, 8)

	b.Resize(0, 0, 0, 0)

	if b.Valid() {
		t.Error("buffer still Valid() after resizing to zero")
	}
}

func TestBufferResizeNoopWhenByteSizeUnchanged(t *testing.T) {
	var b Buffer
	b.Resize(4, 4, 4, 8)
	data := b.Data

	changed := b.Resize(8, 2, 8, 8) // same total bytes (8*2 == 4*4), different shape

	if changed {
		t.Error("Resize() reallocated despite unchanged byte size")
	}
	if &b.Data[0] != &data[0] {
		t.Error("Resize() replaced backing array despite unchanged byte size")
	}
}

func TestBufferCopyFrom(t *testing.T) {
	var src Buffer
	src.ResizeAuto(2, 2, 8)
	src.AspectRatio = 1.5
	for i := range src.Data {
		src.Data[i] = byte(i + 10)
	}

	var dst Buffer
	dst.CopyFrom(&src)

	if dst.AspectRatio != 1.5 {
		t.Errorf("AspectRatio = %v, want 1.5", dst.AspectRatio)
	}
	for i := range src.Data {
		if dst.Data[i] != src.Data[i] {
			t.Errorf("Data[%d] = %d, want %d", i, dst.Data[i], src.Data[i])
		}
	}
}
