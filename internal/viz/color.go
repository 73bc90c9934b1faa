package viz

// PackRGBA packs four 8-bit channels into the stream's 0xRRGGBBAA form.
func PackRGBA(r, g, b, a uint8) uint32 {
	return uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | uint32(a)
}

// UnpackRGBA splits a packed color back into its channels.
func UnpackRGBA(c uint32) (r, g, b, a uint8) {
	return uint8(c >> 24), uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// White is the fallback for points without color of their own.
const White = uint32(0xFFFFFFFF)
