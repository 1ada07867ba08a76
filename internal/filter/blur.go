package filter

import (
	"sync"

	"github.com/gogpu/backdrop/internal/parallel"
)

// parallelThreshold is the pixel count above which blur passes run on the
// shared worker pool. Below it the per-band dispatch overhead outweighs
// the speedup.
const parallelThreshold = 64 * 1024

// minBandRows is the smallest row band worth dispatching to a worker.
const minBandRows = 16

var (
	poolOnce sync.Once
	blurPool *parallel.WorkerPool
)

// sharedPool lazily starts the process-wide blur worker pool.
func sharedPool() *parallel.WorkerPool {
	poolOnce.Do(func() {
		blurPool = parallel.NewWorkerPool(0)
	})
	return blurPool
}

// Blur applies a separable Gaussian blur of the given radius to src and
// writes the result to dst. Both buffers hold premultiplied RGBA bytes of
// size width*height*4 and must not alias.
//
// For radius <= 0 the blur is an identity copy. Edge pixels are clamped
// (edge extension) so border colors do not bleed toward transparent.
// Large buffers run both convolution passes banded across the worker pool.
func Blur(src, dst []uint8, width, height int, radius float64) {
	if width <= 0 || height <= 0 {
		return
	}

	if radius <= 0 {
		copy(dst, src)
		return
	}

	kernel := CachedGaussianKernel(radius)

	temp := getTempBuffer(width, height)
	defer putTempBuffer(temp)

	if width*height >= parallelThreshold {
		pool := sharedPool()
		bands := parallel.RowBands(height, minBandRows, pool.Workers())
		if len(bands) > 1 {
			runBanded(pool, bands, func(b parallel.Band) {
				blurHorizontal(src, temp, width, b.Y0, b.Y1, kernel)
			})
			// The vertical pass reads temp rows across band boundaries,
			// so it starts only after every horizontal band finished.
			runBanded(pool, bands, func(b parallel.Band) {
				blurVertical(temp, dst, width, height, b.Y0, b.Y1, kernel)
			})
			return
		}
	}

	blurHorizontal(src, temp, width, 0, height, kernel)
	blurVertical(temp, dst, width, height, 0, height, kernel)
}

// runBanded executes fn for every band on the pool and waits.
func runBanded(pool *parallel.WorkerPool, bands []parallel.Band, fn func(parallel.Band)) {
	work := make([]func(), len(bands))
	for i, b := range bands {
		band := b
		work[i] = func() { fn(band) }
	}
	pool.ExecuteAll(work)
}

// blurHorizontal applies 1D horizontal convolution to rows [y0, y1).
// Reads RGBA bytes from src, writes float32 components to temp.
func blurHorizontal(src []uint8, temp []float32, width, y0, y1 int, kernel []float32) {
	kernelSize := len(kernel)
	halfKernel := kernelSize / 2

	for y := y0; y < y1; y++ {
		row := y * width
		for x := 0; x < width; x++ {
			var r, g, b, a float32

			for k := 0; k < kernelSize; k++ {
				kx := x + k - halfKernel

				// Clamp to row bounds (edge extension).
				if kx < 0 {
					kx = 0
				} else if kx >= width {
					kx = width - 1
				}

				srcIdx := (row + kx) * 4
				weight := kernel[k]

				r += float32(src[srcIdx+0]) * weight
				g += float32(src[srcIdx+1]) * weight
				b += float32(src[srcIdx+2]) * weight
				a += float32(src[srcIdx+3]) * weight
			}

			tempIdx := (row + x) * 4
			temp[tempIdx+0] = r
			temp[tempIdx+1] = g
			temp[tempIdx+2] = b
			temp[tempIdx+3] = a
		}
	}
}

// blurVertical applies 1D vertical convolution writing rows [y0, y1).
// Reads float32 components from temp, writes RGBA bytes to dst.
func blurVertical(temp []float32, dst []uint8, width, height, y0, y1 int, kernel []float32) {
	kernelSize := len(kernel)
	halfKernel := kernelSize / 2

	for y := y0; y < y1; y++ {
		for x := 0; x < width; x++ {
			var r, g, b, a float32

			for k := 0; k < kernelSize; k++ {
				ky := y + k - halfKernel

				// Clamp to column bounds (edge extension).
				if ky < 0 {
					ky = 0
				} else if ky >= height {
					ky = height - 1
				}

				tempIdx := (ky*width + x) * 4
				weight := kernel[k]

				r += temp[tempIdx+0] * weight
				g += temp[tempIdx+1] * weight
				b += temp[tempIdx+2] * weight
				a += temp[tempIdx+3] * weight
			}

			dstIdx := (y*width + x) * 4
			dst[dstIdx+0] = clampUint8(r)
			dst[dstIdx+1] = clampUint8(g)
			dst[dstIdx+2] = clampUint8(b)
			dst[dstIdx+3] = clampUint8(a)
		}
	}
}

// floatBuffer wraps a slice for sync.Pool to avoid allocation warnings.
type floatBuffer struct {
	data []float32
}

// Temporary buffer pool for blur passes. Downsampled backdrop buffers are
// small, so pooled buffers stay modest in practice.
var tempBufferPool = sync.Pool{
	New: func() any {
		return &floatBuffer{data: make([]float32, 256*256*4)}
	},
}

// getTempBuffer retrieves a temporary buffer of at least width*height*4
// float32 elements from the pool.
func getTempBuffer(width, height int) []float32 {
	size := width * height * 4
	wrapper := tempBufferPool.Get().(*floatBuffer)

	if len(wrapper.data) < size {
		tempBufferPool.Put(wrapper)
		return make([]float32, size)
	}

	return wrapper.data[:size]
}

// putTempBuffer returns a temporary buffer to the pool.
func putTempBuffer(buf []float32) {
	// Only pool reasonably-sized buffers.
	if cap(buf) <= 16*1024*1024 {
		tempBufferPool.Put(&floatBuffer{data: buf[:cap(buf)]})
	}
}

// clampUint8 clamps a float32 to [0, 255] and converts to uint8, rounding
// to nearest.
func clampUint8(v float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
