package blend

// div255 divides x by 255 using the fast shift approximation (x+255)>>8.
// This is ~5x faster than integer division; the maximum error is +1 for
// some inputs, which is imperceptible in alpha blending.
func div255(x uint16) uint16 {
	return (x + 255) >> 8
}

// mulDiv255 multiplies two bytes and divides by 255 using the fast
// approximation. Called for every pixel of every blend pass.
func mulDiv255(a, b byte) byte {
	return byte(div255(uint16(a) * uint16(b)))
}

// addDiv255 adds two bytes with saturation at 255.
func addDiv255(a, b byte) byte {
	sum := uint16(a) + uint16(b)
	if sum > 255 {
		return 255
	}
	return byte(sum)
}
