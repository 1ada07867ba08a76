// Package backdrop renders a live, downsampled Gaussian blur of another
// surface's content, composited with an overlay tint and optional rounded
// corners.
//
// # Overview
//
// backdrop is a host-driven compositing pipeline: the host's draw loop calls
// [Pipeline.RenderFrame] once per redraw with the current geometry, and draws
// the returned pixmap at the origin of its own coordinate space. The pipeline
// owns no widget-tree concerns; layout, input and invalidation stay with the
// host.
//
// # Quick Start
//
//	import "github.com/gogpu/backdrop"
//
//	p, err := backdrop.NewPipeline(
//	    backdrop.WithDownsampleFactor(4),
//	    backdrop.WithBlurRadius(15),
//	    backdrop.WithOverlayColor(backdrop.Hex("#0006")),
//	    backdrop.WithCornerRadius(12),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	// Once per redraw:
//	frame, err := p.RenderFrame(src, backdrop.Pt(x, y), w, h)
//	if frame != nil {
//	    host.Draw(frame) // at (0, 0) in the pipeline's own space
//	}
//
// # Pipeline shape
//
// Each frame runs four phases: prepare (buffer (re)allocation with
// multiple-of-4 dimension rounding), capture (the source rasterizes itself
// directly into the reduced-resolution buffer), blur (the configured
// [Kernel]), and composite (upsample, position, overlay tint, corner mask).
// Capturing at reduced resolution rather than capturing full-size and
// downscaling halves the per-frame pixel work.
//
// # Kernels
//
// The blur itself is pluggable. The default is a CPU separable Gaussian
// kernel. A wgpu compute kernel is available via blank import:
//
//	import _ "github.com/gogpu/backdrop/gpu" // enable GPU blur
//
// If GPU initialization fails, the CPU kernel is used transparently.
package backdrop
