// Package units provides shared conversions between the normalized color
// components carried by scan sources and the 8-bit channels of the
// visualization stream.
package units

import "math"

// Channel8 maps a normalized color component in [0,1] to its 8-bit channel
// value, rounding to nearest. Out-of-range inputs are clamped.
func Channel8(c float64) uint8 {
	if c <= 0 {
		return 0
	}
	if c >= 1 {
		return 255
	}
	return uint8(math.Round(c * 255))
}

// Normalized maps an 8-bit channel value back to a normalized component.
func Normalized(b uint8) float64 {
	return float64(b) / 255
}

// Clamp01 restricts v to the normalized component range.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
