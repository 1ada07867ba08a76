package backdrop

import "math"

// Mask is an alpha coverage mask for compositing operations.
// Values range from 0 (fully transparent) to 255 (fully opaque).
type Mask struct {
	width  int
	height int
	data   []uint8
}

// NewMask creates a new empty mask with the given dimensions.
// All values are initialized to 0 (fully transparent).
func NewMask(width, height int) *Mask {
	return &Mask{
		width:  width,
		height: height,
		data:   make([]uint8, width*height),
	}
}

// Width returns the mask width.
func (m *Mask) Width() int { return m.width }

// Height returns the mask height.
func (m *Mask) Height() int { return m.height }

// At returns the mask value at (x, y).
// Returns 0 for coordinates outside the mask bounds.
func (m *Mask) At(x, y int) uint8 {
	if x < 0 || x >= m.width || y < 0 || y >= m.height {
		return 0
	}
	return m.data[y*m.width+x]
}

// Data returns the underlying coverage values.
func (m *Mask) Data() []uint8 {
	return m.data
}

// RoundedRectMask builds a coverage mask for an axis-aligned rounded
// rectangle filling the full width x height area, with the given corner
// radius in pixels. Edges are anti-aliased over a one-pixel ramp using the
// signed distance to the rounded rect's boundary.
//
// The radius is clamped to half the shorter side. A radius of zero yields
// a fully opaque mask.
func RoundedRectMask(width, height, radius int) *Mask {
	m := NewMask(width, height)
	if width <= 0 || height <= 0 {
		return m
	}

	maxR := width
	if height < width {
		maxR = height
	}
	if radius*2 > maxR {
		radius = maxR / 2
	}
	if radius <= 0 {
		for i := range m.data {
			m.data[i] = 255
		}
		return m
	}

	// Signed distance from the pixel center to a rounded rect occupying
	// [0,w]x[0,h]: distance to the shrunk core box, minus the radius.
	hw := float64(width) / 2
	hh := float64(height) / 2
	r := float64(radius)

	for y := 0; y < height; y++ {
		py := math.Abs(float64(y)+0.5-hh) - (hh - r)
		for x := 0; x < width; x++ {
			px := math.Abs(float64(x)+0.5-hw) - (hw - r)

			var d float64
			switch {
			case px <= 0 && py <= 0:
				d = math.Max(px, py) - r
			case px <= 0:
				d = py - r
			case py <= 0:
				d = px - r
			default:
				d = math.Hypot(px, py) - r
			}

			cov := 0.5 - d
			if cov >= 1 {
				m.data[y*width+x] = 255
			} else if cov > 0 {
				m.data[y*width+x] = uint8(cov * 255)
			}
		}
	}

	return m
}
