// Package blend implements the compositing primitives used by the
// backdrop pipeline: Porter-Duff source-in masking and the W3C separable
// Overlay blend used for the tint pass.
//
// All operations work with premultiplied alpha values in the range 0-255.
//
// References:
//   - Porter-Duff: "Compositing Digital Images" (1984)
//   - W3C Compositing and Blending Level 1: https://www.w3.org/TR/compositing-1/
package blend

// SourceOver composites source over destination (the default operator).
// Formula: S + D * (1 - Sa)
func SourceOver(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	invSa := 255 - sa
	return addDiv255(sr, mulDiv255(dr, invSa)),
		addDiv255(sg, mulDiv255(dg, invSa)),
		addDiv255(sb, mulDiv255(db, invSa)),
		addDiv255(sa, mulDiv255(da, invSa))
}

// SourceIn keeps source only where destination is opaque.
// Formula: S * Da
func SourceIn(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	_ = dr
	_ = dg
	_ = db
	return mulDiv255(sr, da), mulDiv255(sg, da), mulDiv255(sb, da), mulDiv255(sa, da)
}

// Overlay applies the W3C separable Overlay blend: Multiply where the
// backdrop is dark, Screen where it is bright (HardLight with swapped
// layers).
func Overlay(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	return separableBlend(sr, sg, sb, sa, dr, dg, db, da, overlayChan)
}

// overlayChan is the per-channel Overlay curve on unmultiplied values.
// if Cb <= 0.5: 2 * Cb * Cs, else: 1 - 2 * (1 - Cb) * (1 - Cs)
func overlayChan(s, d byte) byte {
	if d < 128 {
		return mulDiv255(2*d, s)
	}
	invD := 255 - d
	invS := 255 - s
	return 255 - mulDiv255(2*invD, invS)
}

// separableBlend applies a per-channel blend function under the standard
// compositing formula:
//
//	Result = (1 - Sa) * D + (1 - Da) * S + Sa * Da * B(Sc, Dc)
//
// where B operates on unmultiplied source and destination channels.
// Inputs and outputs are premultiplied.
func separableBlend(sr, sg, sb, sa, dr, dg, db, da byte, blendChan func(s, d byte) byte) (byte, byte, byte, byte) {
	if sa == 0 {
		return dr, dg, db, da
	}
	if da == 0 {
		return sr, sg, sb, sa
	}

	// Unpremultiply both sides for the channel curve.
	sur := byte((uint16(sr) * 255) / uint16(sa))
	sug := byte((uint16(sg) * 255) / uint16(sa))
	sub := byte((uint16(sb) * 255) / uint16(sa))
	dur := byte((uint16(dr) * 255) / uint16(da))
	dug := byte((uint16(dg) * 255) / uint16(da))
	dub := byte((uint16(db) * 255) / uint16(da))

	blendR := blendChan(sur, dur)
	blendG := blendChan(sug, dug)
	blendB := blendChan(sub, dub)

	invSa := 255 - sa
	invDa := 255 - da

	finalA := addDiv255(sa, mulDiv255(da, invSa))

	// (1 - Sa) * D + (1 - Da) * S
	finalR := addDiv255(mulDiv255(dr, invSa), mulDiv255(sr, invDa))
	finalG := addDiv255(mulDiv255(dg, invSa), mulDiv255(sg, invDa))
	finalB := addDiv255(mulDiv255(db, invSa), mulDiv255(sb, invDa))

	// + Sa * Da * B
	saDa := mulDiv255(sa, da)
	finalR = addDiv255(finalR, mulDiv255(saDa, blendR))
	finalG = addDiv255(finalG, mulDiv255(saDa, blendG))
	finalB = addDiv255(finalB, mulDiv255(saDa, blendB))

	return finalR, finalG, finalB, finalA
}

// TintOverlay composites a constant premultiplied color over every pixel
// of pix (premultiplied RGBA) using the Overlay blend. This is the tint
// pass of the backdrop composite.
func TintOverlay(pix []uint8, sr, sg, sb, sa byte) {
	if sa == 0 {
		return
	}
	for i := 0; i+3 < len(pix); i += 4 {
		r, g, b, a := Overlay(sr, sg, sb, sa, pix[i], pix[i+1], pix[i+2], pix[i+3])
		pix[i+0] = r
		pix[i+1] = g
		pix[i+2] = b
		pix[i+3] = a
	}
}

// ApplyMask multiplies every pixel of pix (premultiplied RGBA) by the
// per-pixel coverage values, keeping pixels where coverage is opaque and
// dropping them where it is transparent (a source-in combine against the
// mask).
//
// coverage holds one byte per pixel; len(pix) must be 4*len(coverage).
func ApplyMask(pix []uint8, coverage []uint8) {
	for i, cov := range coverage {
		switch cov {
		case 255:
			continue
		case 0:
			j := i * 4
			pix[j+0] = 0
			pix[j+1] = 0
			pix[j+2] = 0
			pix[j+3] = 0
		default:
			j := i * 4
			pix[j+0] = mulDiv255(pix[j+0], cov)
			pix[j+1] = mulDiv255(pix[j+1], cov)
			pix[j+2] = mulDiv255(pix[j+2], cov)
			pix[j+3] = mulDiv255(pix[j+3], cov)
		}
	}
}
