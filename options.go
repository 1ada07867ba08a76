package backdrop

// Default configuration values, matching common backdrop-blur styling.
const (
	// DefaultDownsampleFactor is the capture resolution divisor.
	DefaultDownsampleFactor = 4

	// DefaultBlurRadius is the default Gaussian blur radius.
	DefaultBlurRadius = 15.0

	// DefaultCornerRadius disables corner masking.
	DefaultCornerRadius = 0
)

// DefaultOverlayColor is a translucent black tint.
var DefaultOverlayColor = RGBA{0, 0, 0, 0.4}

// Option configures a Pipeline during creation.
//
// Example:
//
//	// Defaults: factor 4, radius 15, translucent black overlay
//	p, err := backdrop.NewPipeline()
//
//	// Custom kernel (dependency injection)
//	p, err := backdrop.NewPipeline(backdrop.WithKernel(k))
type Option func(*pipelineOptions)

// pipelineOptions holds optional configuration for Pipeline creation.
type pipelineOptions struct {
	factor       int
	blurRadius   float64
	overlayColor RGBA
	cornerRadius int
	kernel       Kernel
	ownsKernel   bool
}

// defaultPipelineOptions returns the default pipeline options.
func defaultPipelineOptions() pipelineOptions {
	return pipelineOptions{
		factor:       DefaultDownsampleFactor,
		blurRadius:   DefaultBlurRadius,
		overlayColor: DefaultOverlayColor,
		cornerRadius: DefaultCornerRadius,
		kernel:       nil, // resolved in NewPipeline
	}
}

// WithDownsampleFactor sets the capture resolution divisor.
// The factor must be greater than zero; NewPipeline fails otherwise.
func WithDownsampleFactor(factor int) Option {
	return func(o *pipelineOptions) {
		o.factor = factor
	}
}

// WithBlurRadius sets the blur radius passed to the kernel each frame.
// Radius changes never require buffer reallocation.
func WithBlurRadius(radius float64) Option {
	return func(o *pipelineOptions) {
		o.blurRadius = radius
	}
}

// WithOverlayColor sets the tint composited over the blurred result with
// an Overlay blend. A fully transparent color disables the tint pass.
func WithOverlayColor(c RGBA) Option {
	return func(o *pipelineOptions) {
		o.overlayColor = c
	}
}

// WithCornerRadius sets the rounded-rectangle mask radius in pixels.
// Zero disables masking.
func WithCornerRadius(radius int) Option {
	return func(o *pipelineOptions) {
		o.cornerRadius = radius
	}
}

// WithKernel sets a custom blur kernel for the pipeline, overriding any
// kernel installed via [RegisterKernel]. The caller keeps ownership: the
// pipeline's Close will not close a kernel provided this way.
func WithKernel(k Kernel) Option {
	return func(o *pipelineOptions) {
		o.kernel = k
		o.ownsKernel = false
	}
}
