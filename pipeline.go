package backdrop

import (
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/backdrop/internal/blend"
)

// Pipeline errors.
var (
	// ErrInvalidDownsampleFactor is returned for downsample factors <= 0.
	ErrInvalidDownsampleFactor = errors.New("backdrop: downsample factor must be greater than 0")

	// ErrPipelineClosed is returned when RenderFrame is called after Close.
	ErrPipelineClosed = errors.New("backdrop: pipeline is closed")

	// ErrPixmapTooLarge is returned when the scaled capture buffer would
	// exceed the allocation limit. The frame is skipped; the next frame
	// re-evaluates dimensions and retries.
	ErrPixmapTooLarge = errors.New("backdrop: capture buffer exceeds allocation limit")
)

// maxPixmapDim bounds a single capture buffer axis. Downsampled buffers are
// small by construction; anything past this indicates a runaway source size.
const maxPixmapDim = 1 << 14

// Pipeline produces a blurred, tinted rendering of a source surface once
// per redraw.
//
// A Pipeline owns two equally-sized pixel buffers: the downsample buffer
// the source is captured into, and the blurred buffer the kernel writes.
// Both are allocated lazily on the first successful frame and reallocated
// together whenever the scaled dimensions change; on every other frame the
// allocations are reused and only the pixel content is overwritten.
//
// A Pipeline is not safe for concurrent use. The host's draw loop must
// serialize RenderFrame calls, as is the norm for single-threaded UI
// rendering.
type Pipeline struct {
	factor       int
	blurRadius   float64
	overlayColor RGBA
	cornerRadius int

	kernel     Kernel
	ownsKernel bool

	// factorChanged forces buffer re-evaluation on the next frame.
	factorChanged bool

	// srcWidth, srcHeight are the source dimensions last prepared for.
	srcWidth  int
	srcHeight int

	// scratch receives the downscaled capture; blurred receives the kernel
	// output. Invariant: both nil, or both allocated at equal dimensions
	// that are positive multiples of 4.
	scratch *Pixmap
	blurred *Pixmap

	// mask caches the rounded-rect coverage for the current output geometry.
	mask       *Mask
	maskRadius int

	closed bool
}

// NewPipeline creates a pipeline with the given options.
// Returns [ErrInvalidDownsampleFactor] if the configured factor is not
// positive.
//
// If no kernel is supplied via [WithKernel], the pipeline uses the kernel
// installed by [RegisterKernel], falling back to the CPU kernel. A kernel
// the pipeline creates itself is released by [Pipeline.Close]; supplied and
// registered kernels stay owned by their creators.
func NewPipeline(opts ...Option) (*Pipeline, error) {
	o := defaultPipelineOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if o.factor <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDownsampleFactor, o.factor)
	}
	if o.cornerRadius < 0 {
		o.cornerRadius = 0
	}

	k := o.kernel
	owns := false
	if k == nil {
		kernelMu.RLock()
		k = registeredKernel
		kernelMu.RUnlock()
	}
	if k == nil {
		k = NewCPUKernel()
		owns = true
	}

	return &Pipeline{
		factor:       o.factor,
		blurRadius:   o.blurRadius,
		overlayColor: o.overlayColor,
		cornerRadius: o.cornerRadius,
		kernel:       k,
		ownsKernel:   owns,
	}, nil
}

// SetDownsampleFactor updates the capture resolution divisor.
// Returns [ErrInvalidDownsampleFactor] for factors <= 0, leaving the
// previous configuration unchanged. A changed factor marks the buffers for
// reallocation on the next frame.
func (p *Pipeline) SetDownsampleFactor(factor int) error {
	if factor <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidDownsampleFactor, factor)
	}
	if factor != p.factor {
		p.factor = factor
		p.factorChanged = true
	}
	return nil
}

// DownsampleFactor returns the current capture resolution divisor.
func (p *Pipeline) DownsampleFactor() int {
	return p.factor
}

// SetBlurRadius updates the radius passed to the kernel. Takes effect on
// the next frame; no buffers are reallocated since radius does not affect
// dimensions.
func (p *Pipeline) SetBlurRadius(radius float64) {
	p.blurRadius = radius
}

// BlurRadius returns the current blur radius.
func (p *Pipeline) BlurRadius() float64 {
	return p.blurRadius
}

// SetOverlayColor updates the tint composited over the blurred result.
func (p *Pipeline) SetOverlayColor(c RGBA) {
	p.overlayColor = c
}

// OverlayColor returns the current overlay tint.
func (p *Pipeline) OverlayColor() RGBA {
	return p.overlayColor
}

// SetCornerRadius updates the rounded-rectangle mask radius in pixels.
// Negative values are treated as zero (no masking).
func (p *Pipeline) SetCornerRadius(radius int) {
	if radius < 0 {
		radius = 0
	}
	p.cornerRadius = radius
}

// CornerRadius returns the current corner mask radius.
func (p *Pipeline) CornerRadius() int {
	return p.cornerRadius
}

// RenderFrame produces the composited frame for one redraw cycle.
//
// src is the surface to blur; origin is the pipeline's own on-screen
// origin; width and height are the output dimensions in pixels. The host
// draws the returned pixmap at (0, 0) in its own coordinate space.
//
// RenderFrame returns (nil, nil) when there is nothing to render this
// frame: the source has zero size (expected transient state during
// layout), the output is zero-sized, or the kernel is unavailable. It
// returns an error when buffer preparation or the kernel fails; such
// failures are non-fatal and the next frame retries, since geometry is
// re-evaluated on every call.
func (p *Pipeline) RenderFrame(src Source, origin Point, width, height int) (*Pixmap, error) {
	if p.closed {
		return nil, ErrPipelineClosed
	}
	if src == nil || width <= 0 || height <= 0 {
		return nil, nil
	}

	w, h := src.PixelWidth(), src.PixelHeight()
	if w <= 0 || h <= 0 {
		return nil, nil
	}

	if !p.kernel.Available() {
		Logger().Debug("backdrop: kernel unavailable, skipping frame", "kernel", p.kernel.Name())
		return nil, nil
	}

	if err := p.prepare(w, h); err != nil {
		return nil, err
	}

	// Capture: rasterize the source directly at reduced resolution.
	p.scratch.Clear(Transparent)
	inv := 1.0 / float64(p.factor)
	src.RenderInto(p.scratch, inv, inv)

	// Blur.
	if err := p.kernel.Apply(p.scratch, p.blurred, p.blurRadius); err != nil {
		return nil, fmt.Errorf("backdrop: blur kernel %q: %w", p.kernel.Name(), err)
	}

	// Composite: upsample by factor, positioned so the blurred content
	// aligns with the source's true screen location relative to ours.
	out := NewPixmap(width, height)
	d := origin.Sub(src.ScreenOrigin())
	p.drawUpsampled(out, d.X, d.Y)

	if !p.overlayColor.IsTransparent() {
		sr, sg, sb, sa := p.overlayColor.premul()
		blend.TintOverlay(out.Data(), sr, sg, sb, sa)
	}

	if p.cornerRadius > 0 {
		blend.ApplyMask(out.Data(), p.cornerMask(width, height).Data())
	}

	return out, nil
}

// prepare ensures the capture and blur buffers exist at the dimensions the
// current source size and factor require. All state updates happen only
// after successful allocation, so a failed prepare leaves the pipeline
// ready to retry on the next frame.
func (p *Pipeline) prepare(w, h int) error {
	if p.scratch != nil && !p.factorChanged && w == p.srcWidth && h == p.srcHeight {
		return nil
	}

	scaledW := round4(clampDim(w / p.factor))
	scaledH := round4(clampDim(h / p.factor))

	if p.scratch == nil || p.scratch.Width() != scaledW || p.scratch.Height() != scaledH {
		if scaledW > maxPixmapDim || scaledH > maxPixmapDim {
			return fmt.Errorf("%w: %dx%d", ErrPixmapTooLarge, scaledW, scaledH)
		}

		// Both buffers resize together; never independently.
		scratch := NewPixmap(scaledW, scaledH)
		blurred := NewPixmap(scaledW, scaledH)
		p.scratch = scratch
		p.blurred = blurred

		Logger().Debug("backdrop: buffers reallocated",
			"source", fmt.Sprintf("%dx%d", w, h),
			"scaled", fmt.Sprintf("%dx%d", scaledW, scaledH),
			"factor", p.factor)
	}

	p.factorChanged = false
	p.srcWidth = w
	p.srcHeight = h
	return nil
}

// drawUpsampled draws the blurred buffer into out, scaled up by the
// downsample factor and translated by (-dx, -dy). Output pixels that map
// outside the blurred buffer stay transparent.
//
// Nearest sampling is sufficient here: the blur has already removed the
// high frequencies that upsampling filters exist to preserve.
func (p *Pipeline) drawUpsampled(out *Pixmap, dx, dy float64) {
	f := float64(p.factor)
	bw, bh := p.blurred.Width(), p.blurred.Height()
	bdata := p.blurred.Data()
	odata := out.Data()

	for y := 0; y < out.Height(); y++ {
		by := int(math.Floor((float64(y) + dy) / f))
		if by < 0 || by >= bh {
			continue
		}
		brow := by * bw
		orow := y * out.Width()

		for x := 0; x < out.Width(); x++ {
			bx := int(math.Floor((float64(x) + dx) / f))
			if bx < 0 || bx >= bw {
				continue
			}
			bi := (brow + bx) * 4
			oi := (orow + x) * 4
			odata[oi+0] = bdata[bi+0]
			odata[oi+1] = bdata[bi+1]
			odata[oi+2] = bdata[bi+2]
			odata[oi+3] = bdata[bi+3]
		}
	}
}

// cornerMask returns the rounded-rect coverage mask for the given output
// size, rebuilding it only when geometry or radius changed.
func (p *Pipeline) cornerMask(width, height int) *Mask {
	if p.mask != nil && p.mask.Width() == width && p.mask.Height() == height &&
		p.maskRadius == p.cornerRadius {
		return p.mask
	}
	p.mask = RoundedRectMask(width, height, p.cornerRadius)
	p.maskRadius = p.cornerRadius
	return p.mask
}

// Close releases the pipeline's buffers and, when the pipeline created its
// own kernel, the kernel's resources. Close is idempotent; RenderFrame
// returns [ErrPipelineClosed] afterwards.
func (p *Pipeline) Close() {
	if p.closed {
		return
	}
	p.closed = true

	if p.ownsKernel {
		p.kernel.Close()
	}
	p.scratch = nil
	p.blurred = nil
	p.mask = nil
}

// round4 rounds a non-negative dimension up to the next multiple of 4,
// always adding at least 1 and at most 4. The blur kernel exhibits boundary
// artifacts on buffers whose dimensions are not aligned to its internal
// vector width, so this rounding is preserved for every kernel.
func round4(n int) int {
	return n - n%4 + 4
}

// clampDim clamps a scaled dimension to be non-negative before rounding.
func clampDim(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
