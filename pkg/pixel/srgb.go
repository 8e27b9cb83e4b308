package pixel

import "math"

// ToLinear converts normalized sRGB channel values to linear light.
// Based on https://en.wikipedia.org/wiki/SRGB#The_reverse_transformation
func ToLinear(color [3]float32) [3]float32 {
	const a = 0.055
	const cutoff = 0.04045

	var ret [3]float32

	for i, intensity := range color {
		if intensity > cutoff {
			ret[i] = float32(math.Pow(float64((intensity+a)/(1+a)), 2.4))
		} else {
			ret[i] = intensity / 12.92
		}
	}

	return ret
}

// ToSRGB converts linear light channel values to normalized sRGB.
// Based on https://en.wikipedia.org/wiki/SRGB#The_forward_transformation_.28CIE_XYZ_to_sRGB.29
func ToSRGB(color [3]float32) [3]float32 {
	const a = 0.055
	const cutoff = 0.0031308

	var ret [3]float32

	for i, intensity := range color {
		if intensity > cutoff {
			ret[i] = float32((1+a)*math.Pow(float64(intensity), 1/2.4) - a)
		} else {
			ret[i] = intensity * 12.92
		}
	}

	return ret
}
