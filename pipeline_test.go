package backdrop

import (
	"errors"
	"fmt"
	"testing"
)

// bufferSource is a Source backed by a pixmap, with nearest-neighbor
// scaled capture. Simpler and exactly predictable, unlike the bilinear
// resampling ImageSource uses.
type bufferSource struct {
	pix    *Pixmap
	origin Point
}

func newBufferSource(width, height int) *bufferSource {
	return &bufferSource{pix: NewPixmap(width, height)}
}

func (s *bufferSource) PixelWidth() int     { return s.pix.Width() }
func (s *bufferSource) PixelHeight() int    { return s.pix.Height() }
func (s *bufferSource) ScreenOrigin() Point { return s.origin }

func (s *bufferSource) RenderInto(dst *Pixmap, scaleX, scaleY float64) {
	w, h := s.pix.Width(), s.pix.Height()
	sw := int(float64(w) * scaleX)
	sh := int(float64(h) * scaleY)
	if sw > dst.Width() {
		sw = dst.Width()
	}
	if sh > dst.Height() {
		sh = dst.Height()
	}
	src := s.pix.Data()
	out := dst.Data()
	for y := 0; y < sh; y++ {
		sy := int(float64(y) / scaleY)
		if sy >= h {
			sy = h - 1
		}
		for x := 0; x < sw; x++ {
			sx := int(float64(x) / scaleX)
			if sx >= w {
				sx = w - 1
			}
			si := (sy*w + sx) * 4
			di := (y*dst.Width() + x) * 4
			copy(out[di:di+4], src[si:si+4])
		}
	}
}

// fakeSize is a Source that reports dimensions without holding pixels.
type fakeSize struct {
	w, h int
}

func (s *fakeSize) PixelWidth() int                      { return s.w }
func (s *fakeSize) PixelHeight() int                     { return s.h }
func (s *fakeSize) ScreenOrigin() Point                  { return Point{} }
func (s *fakeSize) RenderInto(*Pixmap, float64, float64) {}

// stubKernel records Apply calls. Apply copies src to dst unchanged
// unless err is set.
type stubKernel struct {
	available bool
	err       error
	applies   int
	closes    int
}

func (k *stubKernel) Name() string    { return "stub" }
func (k *stubKernel) Available() bool { return k.available }
func (k *stubKernel) Close()          { k.closes++ }

func (k *stubKernel) Apply(src, dst *Pixmap, radius float64) error {
	k.applies++
	if k.err != nil {
		return k.err
	}
	copy(dst.Data(), src.Data())
	return nil
}

// TestRound4 verifies dimension rounding: the result is always a multiple
// of 4 strictly greater than the input, by at most 4.
func TestRound4(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 4},
		{1, 4},
		{3, 4},
		{4, 8},
		{5, 8},
		{25, 28},
		{50, 52},
		{100, 104},
	}
	for _, c := range cases {
		if got := round4(c.in); got != c.want {
			t.Errorf("round4(%d) = %d, want %d", c.in, got, c.want)
		}
	}

	for n := 0; n < 1000; n++ {
		got := round4(n)
		if got%4 != 0 {
			t.Fatalf("round4(%d) = %d, not a multiple of 4", n, got)
		}
		if got <= n || got > n+4 {
			t.Fatalf("round4(%d) = %d, outside (%d, %d]", n, got, n, n+4)
		}
	}
}

// TestNewPipelineDefaults verifies default configuration values.
func TestNewPipelineDefaults(t *testing.T) {
	p, err := NewPipeline()
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	if got := p.DownsampleFactor(); got != DefaultDownsampleFactor {
		t.Errorf("DownsampleFactor = %d, want %d", got, DefaultDownsampleFactor)
	}
	if got := p.BlurRadius(); got != DefaultBlurRadius {
		t.Errorf("BlurRadius = %v, want %v", got, DefaultBlurRadius)
	}
	if got := p.OverlayColor(); got != DefaultOverlayColor {
		t.Errorf("OverlayColor = %v, want %v", got, DefaultOverlayColor)
	}
	if got := p.CornerRadius(); got != DefaultCornerRadius {
		t.Errorf("CornerRadius = %d, want %d", got, DefaultCornerRadius)
	}
}

// TestNewPipelineInvalidFactor verifies that non-positive factors are
// rejected at construction.
func TestNewPipelineInvalidFactor(t *testing.T) {
	for _, factor := range []int{0, -1, -16} {
		_, err := NewPipeline(WithDownsampleFactor(factor))
		if !errors.Is(err, ErrInvalidDownsampleFactor) {
			t.Errorf("factor %d: err = %v, want ErrInvalidDownsampleFactor", factor, err)
		}
	}
}

// TestSetDownsampleFactorInvalid verifies that an invalid factor returns
// an error and leaves the previous configuration untouched.
func TestSetDownsampleFactorInvalid(t *testing.T) {
	p, err := NewPipeline(WithDownsampleFactor(4))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	for _, factor := range []int{0, -3} {
		if err := p.SetDownsampleFactor(factor); !errors.Is(err, ErrInvalidDownsampleFactor) {
			t.Errorf("SetDownsampleFactor(%d) = %v, want ErrInvalidDownsampleFactor", factor, err)
		}
		if got := p.DownsampleFactor(); got != 4 {
			t.Errorf("factor changed to %d after rejected update", got)
		}
	}
}

// TestRenderFrameScaledDimensions verifies the capture buffer geometry:
// source / factor, rounded up to the next multiple of 4.
func TestRenderFrameScaledDimensions(t *testing.T) {
	k := &stubKernel{available: true}
	p, err := NewPipeline(WithDownsampleFactor(4), WithKernel(k))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	src := newBufferSource(400, 200)
	out, err := p.RenderFrame(src, Pt(0, 0), 400, 200)
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if out == nil {
		t.Fatal("RenderFrame skipped, want output")
	}

	if p.scratch.Width() != 104 || p.scratch.Height() != 52 {
		t.Errorf("scratch = %dx%d, want 104x52", p.scratch.Width(), p.scratch.Height())
	}
	if p.blurred.Width() != p.scratch.Width() || p.blurred.Height() != p.scratch.Height() {
		t.Errorf("blurred = %dx%d, scratch = %dx%d, want equal",
			p.blurred.Width(), p.blurred.Height(), p.scratch.Width(), p.scratch.Height())
	}
	if out.Width() != 400 || out.Height() != 200 {
		t.Errorf("output = %dx%d, want 400x200", out.Width(), out.Height())
	}
	if k.applies != 1 {
		t.Errorf("kernel applied %d times, want 1", k.applies)
	}
}

// TestRenderFrameBufferReuse verifies that buffers are reallocated only
// when the scaled dimensions change: stable geometry reuses allocations,
// factor and source-size changes replace them.
func TestRenderFrameBufferReuse(t *testing.T) {
	k := &stubKernel{available: true}
	p, err := NewPipeline(WithDownsampleFactor(4), WithKernel(k))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	src := newBufferSource(400, 200)
	if _, err := p.RenderFrame(src, Pt(0, 0), 400, 200); err != nil {
		t.Fatalf("frame 1: %v", err)
	}
	scratch1, blurred1 := p.scratch, p.blurred

	// Same geometry: allocations must be reused.
	if _, err := p.RenderFrame(src, Pt(0, 0), 400, 200); err != nil {
		t.Fatalf("frame 2: %v", err)
	}
	if p.scratch != scratch1 || p.blurred != blurred1 {
		t.Error("buffers reallocated with unchanged geometry")
	}

	// Factor change: both buffers replaced together.
	if err := p.SetDownsampleFactor(5); err != nil {
		t.Fatalf("SetDownsampleFactor: %v", err)
	}
	if _, err := p.RenderFrame(src, Pt(0, 0), 400, 200); err != nil {
		t.Fatalf("frame 3: %v", err)
	}
	if p.scratch == scratch1 || p.blurred == blurred1 {
		t.Error("buffers not reallocated after factor change")
	}
	if p.scratch.Width() != 84 || p.scratch.Height() != 44 {
		t.Errorf("scratch = %dx%d, want 84x44", p.scratch.Width(), p.scratch.Height())
	}
	scratch3 := p.scratch

	// Source size change: reallocated again.
	bigger := newBufferSource(600, 200)
	if _, err := p.RenderFrame(bigger, Pt(0, 0), 600, 200); err != nil {
		t.Fatalf("frame 4: %v", err)
	}
	if p.scratch == scratch3 {
		t.Error("buffers not reallocated after source size change")
	}
}

// TestRenderFrameIdempotent verifies that rendering the same scene twice
// yields bit-identical output.
func TestRenderFrameIdempotent(t *testing.T) {
	p, err := NewPipeline(WithDownsampleFactor(2), WithBlurRadius(3))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	src := newBufferSource(64, 48)
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			src.pix.SetPixel(x, y, RGBA{float64(x) / 64, float64(y) / 48, 0.5, 1})
		}
	}

	first, err := p.RenderFrame(src, Pt(0, 0), 64, 48)
	if err != nil {
		t.Fatalf("frame 1: %v", err)
	}
	second, err := p.RenderFrame(src, Pt(0, 0), 64, 48)
	if err != nil {
		t.Fatalf("frame 2: %v", err)
	}

	d1, d2 := first.Data(), second.Data()
	for i := range d1 {
		if d1[i] != d2[i] {
			t.Fatalf("outputs differ at byte %d: %d vs %d", i, d1[i], d2[i])
		}
	}
}

// TestRenderFrameSkips verifies the (nil, nil) skip contract for nil
// sources, zero-sized sources, and zero-sized outputs, and that a skipped
// frame allocates nothing.
func TestRenderFrameSkips(t *testing.T) {
	cases := []struct {
		name string
		src  Source
		w, h int
	}{
		{"nil source", nil, 100, 100},
		{"zero output width", newBufferSource(100, 100), 0, 100},
		{"zero output height", newBufferSource(100, 100), 100, 0},
		{"zero source width", &fakeSize{w: 0, h: 100}, 100, 100},
		{"zero source height", &fakeSize{w: 100, h: 0}, 100, 100},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			k := &stubKernel{available: true}
			p, err := NewPipeline(WithKernel(k))
			if err != nil {
				t.Fatalf("NewPipeline: %v", err)
			}
			defer p.Close()

			out, err := p.RenderFrame(c.src, Pt(0, 0), c.w, c.h)
			if out != nil || err != nil {
				t.Fatalf("RenderFrame = (%v, %v), want (nil, nil)", out, err)
			}
			if k.applies != 0 {
				t.Error("kernel applied on skipped frame")
			}
			if p.scratch != nil {
				t.Error("buffers allocated on skipped frame")
			}
		})
	}
}

// TestRenderFrameUnavailableKernel verifies that an unavailable kernel
// skips the frame without error and without touching the kernel.
func TestRenderFrameUnavailableKernel(t *testing.T) {
	k := &stubKernel{available: false}
	p, err := NewPipeline(WithKernel(k))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	out, err := p.RenderFrame(newBufferSource(100, 100), Pt(0, 0), 100, 100)
	if out != nil || err != nil {
		t.Fatalf("RenderFrame = (%v, %v), want (nil, nil)", out, err)
	}
	if k.applies != 0 {
		t.Error("kernel applied while unavailable")
	}

	// Kernel coming back online resumes rendering.
	k.available = true
	out, err = p.RenderFrame(newBufferSource(100, 100), Pt(0, 0), 100, 100)
	if err != nil {
		t.Fatalf("RenderFrame after recovery: %v", err)
	}
	if out == nil {
		t.Fatal("frame still skipped after kernel recovery")
	}
}

// TestRenderFrameKernelError verifies that kernel failures surface as
// wrapped errors and that the next frame retries cleanly.
func TestRenderFrameKernelError(t *testing.T) {
	boom := fmt.Errorf("device lost")
	k := &stubKernel{available: true, err: boom}
	p, err := NewPipeline(WithKernel(k))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	src := newBufferSource(100, 100)
	out, err := p.RenderFrame(src, Pt(0, 0), 100, 100)
	if out != nil {
		t.Error("got output despite kernel error")
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}

	k.err = nil
	if out, err = p.RenderFrame(src, Pt(0, 0), 100, 100); err != nil || out == nil {
		t.Errorf("retry after kernel recovery = (%v, %v), want output", out, err)
	}
}

// TestRenderFrameTooLarge verifies the allocation guard for runaway
// source dimensions.
func TestRenderFrameTooLarge(t *testing.T) {
	p, err := NewPipeline(WithDownsampleFactor(1), WithKernel(&stubKernel{available: true}))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	_, err = p.RenderFrame(&fakeSize{w: 100000, h: 10}, Pt(0, 0), 100, 100)
	if !errors.Is(err, ErrPixmapTooLarge) {
		t.Errorf("err = %v, want ErrPixmapTooLarge", err)
	}
}

// TestRenderFrameIdentity renders a source through a factor-1, radius-0
// pipeline with no overlay and no mask: output pixels must equal source
// pixels exactly.
func TestRenderFrameIdentity(t *testing.T) {
	p, err := NewPipeline(
		WithDownsampleFactor(1),
		WithBlurRadius(0),
		WithOverlayColor(Transparent),
	)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	src := newBufferSource(7, 7)
	for y := 0; y < 7; y++ {
		for x := 0; x < 7; x++ {
			src.pix.SetPixel(x, y, RGBA{float64(x) / 7, float64(y) / 7, 0.25, 1})
		}
	}

	out, err := p.RenderFrame(src, Pt(0, 0), 7, 7)
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}

	want := src.pix.Data()
	got := out.Data()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

// TestRenderFrameOffset verifies the coordinate mapping between output
// and source: an output at origin (dx, dy) relative to the source samples
// the blurred buffer shifted by that delta.
func TestRenderFrameOffset(t *testing.T) {
	p, err := NewPipeline(
		WithDownsampleFactor(1),
		WithBlurRadius(0),
		WithOverlayColor(Transparent),
	)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	src := newBufferSource(8, 8)
	src.pix.SetPixel(5, 6, White)

	// Output origin (2, 3): output pixel (3, 3) maps to source (5, 6).
	out, err := p.RenderFrame(src, Pt(2, 3), 4, 4)
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			c := out.At(x, y)
			r, _, _, a := c.RGBA()
			wantWhite := x == 3 && y == 3
			if wantWhite && (r == 0 || a == 0) {
				t.Errorf("pixel (%d,%d): want white, got %v", x, y, c)
			}
			if !wantWhite && a != 0 {
				t.Errorf("pixel (%d,%d): want transparent, got %v", x, y, c)
			}
		}
	}
}

// TestRenderFrameOutsideSource verifies that output regions mapping
// outside the source stay transparent.
func TestRenderFrameOutsideSource(t *testing.T) {
	p, err := NewPipeline(
		WithDownsampleFactor(1),
		WithBlurRadius(0),
		WithOverlayColor(Transparent),
	)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	src := newBufferSource(4, 4)
	src.pix.Clear(White)
	src.origin = Pt(10, 10)

	// Output sits entirely left of and above the source.
	out, err := p.RenderFrame(src, Pt(0, 0), 6, 6)
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	for i, v := range out.Data() {
		if v != 0 {
			t.Fatalf("byte %d = %d, want fully transparent output", i, v)
		}
	}
}

// TestRenderFrameOverlay verifies that a non-transparent overlay color
// changes the output and a transparent one does not.
func TestRenderFrameOverlay(t *testing.T) {
	render := func(overlay RGBA) *Pixmap {
		t.Helper()
		p, err := NewPipeline(
			WithDownsampleFactor(1),
			WithBlurRadius(0),
			WithOverlayColor(overlay),
		)
		if err != nil {
			t.Fatalf("NewPipeline: %v", err)
		}
		defer p.Close()

		src := newBufferSource(7, 7)
		src.pix.Clear(RGBA{0.5, 0.5, 0.5, 1})
		out, err := p.RenderFrame(src, Pt(0, 0), 7, 7)
		if err != nil {
			t.Fatalf("RenderFrame: %v", err)
		}
		return out
	}

	plain := render(Transparent)
	tinted := render(RGBA{0, 0, 0, 0.4})

	same := true
	for i, v := range plain.Data() {
		if tinted.Data()[i] != v {
			same = false
			break
		}
	}
	if same {
		t.Error("overlay tint had no effect on output")
	}

	// Tinting a darkening overlay over gray must not brighten it.
	pr, _, _, _ := plain.At(3, 3).RGBA()
	tr, _, _, _ := tinted.At(3, 3).RGBA()
	if tr > pr {
		t.Errorf("dark overlay brightened pixel: %d > %d", tr, pr)
	}
}

// TestRenderFrameCornerMask verifies rounded-corner masking: corner
// pixels become transparent, the center stays opaque, and radius zero
// leaves the output untouched.
func TestRenderFrameCornerMask(t *testing.T) {
	render := func(radius int) *Pixmap {
		t.Helper()
		p, err := NewPipeline(
			WithDownsampleFactor(1),
			WithBlurRadius(0),
			WithOverlayColor(Transparent),
			WithCornerRadius(radius),
		)
		if err != nil {
			t.Fatalf("NewPipeline: %v", err)
		}
		defer p.Close()

		src := newBufferSource(31, 31)
		src.pix.Clear(White)
		out, err := p.RenderFrame(src, Pt(0, 0), 31, 31)
		if err != nil {
			t.Fatalf("RenderFrame: %v", err)
		}
		return out
	}

	rounded := render(8)
	if _, _, _, a := rounded.At(0, 0).RGBA(); a != 0 {
		t.Errorf("corner pixel alpha = %d, want 0", a)
	}
	if _, _, _, a := rounded.At(15, 15).RGBA(); a != 0xffff {
		t.Errorf("center pixel alpha = %d, want opaque", a)
	}

	square := render(0)
	if _, _, _, a := square.At(0, 0).RGBA(); a != 0xffff {
		t.Errorf("radius 0 masked the corner: alpha = %d", a)
	}
}

// TestPipelineClose verifies the closed-pipeline contract and kernel
// ownership: Close is idempotent and never closes a caller-supplied kernel.
func TestPipelineClose(t *testing.T) {
	k := &stubKernel{available: true}
	p, err := NewPipeline(WithKernel(k))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	p.Close()
	p.Close()

	if k.closes != 0 {
		t.Errorf("caller-supplied kernel closed %d times, want 0", k.closes)
	}

	_, err = p.RenderFrame(newBufferSource(10, 10), Pt(0, 0), 10, 10)
	if !errors.Is(err, ErrPipelineClosed) {
		t.Errorf("RenderFrame after Close = %v, want ErrPipelineClosed", err)
	}
}

// TestRoundedRectMaskGeometry verifies coverage at the extremes of a
// rounded-rect mask.
func TestRoundedRectMaskGeometry(t *testing.T) {
	m := RoundedRectMask(40, 30, 10)

	if got := m.At(0, 0); got != 0 {
		t.Errorf("corner coverage = %d, want 0", got)
	}
	if got := m.At(20, 15); got != 255 {
		t.Errorf("center coverage = %d, want 255", got)
	}
	if got := m.At(20, 0); got != 255 {
		t.Errorf("top edge midpoint coverage = %d, want 255", got)
	}

	// Radius 0 is fully opaque.
	full := RoundedRectMask(8, 8, 0)
	for i, v := range full.Data() {
		if v != 255 {
			t.Fatalf("radius 0: coverage[%d] = %d, want 255", i, v)
		}
	}

	// Oversized radius clamps to half the shorter side instead of
	// producing a degenerate mask.
	clamped := RoundedRectMask(20, 10, 100)
	if got := clamped.At(10, 5); got != 255 {
		t.Errorf("clamped radius: center coverage = %d, want 255", got)
	}
}
