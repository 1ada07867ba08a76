package backdrop

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// Source is the surface being blurred. It is owned by the host; the
// pipeline only reads from it. Dimensions and screen position may change
// between frames, so the pipeline queries them on every call.
type Source interface {
	// PixelWidth returns the current width of the surface in pixels.
	PixelWidth() int

	// PixelHeight returns the current height of the surface in pixels.
	PixelHeight() int

	// ScreenOrigin returns the surface's current on-screen origin.
	ScreenOrigin() Point

	// RenderInto rasterizes the surface's current content into dst under
	// the given scale transform. The pipeline passes 1/factor for both
	// axes so the full-resolution content lands directly in the smaller
	// buffer without an intermediate full-size capture.
	RenderInto(dst *Pixmap, scaleX, scaleY float64)
}

// ImageSource adapts a static image.Image to the [Source] interface.
// It is mainly useful for tests and for hosts whose surface snapshot is
// already an image. Scaled capture uses bilinear resampling from
// golang.org/x/image/draw.
type ImageSource struct {
	img    image.Image
	origin Point
}

// NewImageSource creates a Source backed by img, positioned at origin
// in screen space.
func NewImageSource(img image.Image, origin Point) *ImageSource {
	return &ImageSource{img: img, origin: origin}
}

// SetOrigin updates the source's screen position (e.g., during scrolling).
func (s *ImageSource) SetOrigin(origin Point) {
	s.origin = origin
}

// PixelWidth returns the image width.
func (s *ImageSource) PixelWidth() int {
	return s.img.Bounds().Dx()
}

// PixelHeight returns the image height.
func (s *ImageSource) PixelHeight() int {
	return s.img.Bounds().Dy()
}

// ScreenOrigin returns the configured screen origin.
func (s *ImageSource) ScreenOrigin() Point {
	return s.origin
}

// RenderInto rasterizes the image into dst scaled by (scaleX, scaleY).
func (s *ImageSource) RenderInto(dst *Pixmap, scaleX, scaleY float64) {
	b := s.img.Bounds()
	sw := int(float64(b.Dx()) * scaleX)
	sh := int(float64(b.Dy()) * scaleY)
	if sw <= 0 || sh <= 0 {
		return
	}
	if sw > dst.Width() {
		sw = dst.Width()
	}
	if sh > dst.Height() {
		sh = dst.Height()
	}

	target := dst.ToImage()
	xdraw.BiLinear.Scale(target, image.Rect(0, 0, sw, sh), s.img, b, xdraw.Src, nil)
	copy(dst.Data(), target.Pix)
}

var _ Source = (*ImageSource)(nil)
