// Package pixel implements the raw framebuffer pixel formats and growable
// pixel buffer used by the wire protocol, ported from the original netvid
// framebuffer.h/.cpp.
package pixel

// ChannelBits describes where one color channel lives inside a packed pixel.
type ChannelBits struct {
	StartBit int
	Bits     int
}

// Mask returns the bitmask covering this channel's bits.
func (c ChannelBits) Mask() uint32 {
	return (uint32(1) << uint(c.Bits)) - 1
}

// Format describes a packed pixel layout: how many bits per pixel, and
// where the three color channels (in R, G, B order) sit within them.
type Format struct {
	BitsPerPixel int
	Channels     [3]ChannelBits
}

// VisibleBits returns the number of bits actually carrying color data,
// which can be less than BitsPerPixel (e.g. A1R5G5B5 has one unused bit).
func (f Format) VisibleBits() int {
	b := 0
	for _, c := range f.Channels {
		b += c.Bits
	}
	return b
}

var (
	A1R5G5B5 = Format{BitsPerPixel: 16, Channels: [3]ChannelBits{{10, 5}, {5, 5}, {0, 5}}}
	R5G6B5   = Format{BitsPerPixel: 16, Channels: [3]ChannelBits{{11, 5}, {5, 6}, {0, 5}}}
	A8R8G8B8 = Format{BitsPerPixel: 32, Channels: [3]ChannelBits{{16, 8}, {8, 8}, {0, 8}}}
)

// ToFloatSRGB unpacks a pixel into normalized [0,1] sRGB channel values.
func ToFloatSRGB(f Format, color uint32) [3]float32 {
	var ret [3]float32

	for i, c := range f.Channels {
		mask := c.Mask()
		ret[i] = float32((color>>uint(c.StartBit))&mask) / float32(mask)
	}

	return ret
}

// FromFloatSRGB packs normalized [0,1] sRGB channel values into a pixel.
func FromFloatSRGB(f Format, srgb [3]float32) uint32 {
	var ret uint32

	for i, c := range f.Channels {
		ret |= uint32(srgb[i]*float32(c.Mask())+0.5) << uint(c.StartBit)
	}

	return ret
}
