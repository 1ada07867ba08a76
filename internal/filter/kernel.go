package filter

import (
	"math"
	"sync"
)

// GaussianKernel generates a 1D Gaussian kernel for the given radius.
// The kernel is normalized so all values sum to 1.0.
//
// The kernel size is computed as 2 * ceil(radius * 3) + 1, which covers
// 99.7% of the Gaussian distribution (3 standard deviations).
//
// For radius <= 0, returns a single-element kernel [1.0] (identity).
func GaussianKernel(radius float64) []float32 {
	if radius <= 0 {
		return []float32{1.0}
	}

	// Radius is used as sigma.
	half := int(math.Ceil(radius * 3))
	kernel := make([]float32, half*2+1)

	// G(x) = exp(-x²/(2σ²)); the normalization constant cancels out when
	// the sum is normalized to 1.
	denom := 2 * radius * radius
	var sum float64
	for i := range kernel {
		x := float64(i - half)
		w := math.Exp(-(x * x) / denom)
		kernel[i] = float32(w)
		sum += w
	}

	scale := float32(1.0 / sum)
	for i := range kernel {
		kernel[i] *= scale
	}
	return kernel
}

// BoxKernel generates a 1D box (uniform) kernel for the given radius.
// All values are equal: 1/(2*radius+1).
//
// Box blur is faster than Gaussian but produces blocky results.
// Three passes of box blur approximate Gaussian blur well.
func BoxKernel(radius int) []float32 {
	if radius <= 0 {
		return []float32{1.0}
	}

	kernel := make([]float32, radius*2+1)
	w := float32(1.0) / float32(len(kernel))
	for i := range kernel {
		kernel[i] = w
	}
	return kernel
}

// kernelCache caches computed Gaussian kernels to avoid recomputation.
// The key is radius quantized to 0.01 precision.
type kernelCache struct {
	mu      sync.RWMutex
	kernels map[int][]float32
	limit   int
}

var defaultKernelCache = &kernelCache{
	kernels: make(map[int][]float32),
	limit:   64,
}

// get retrieves a kernel from cache or generates and caches it.
func (c *kernelCache) get(radius float64) []float32 {
	key := int(radius * 100)

	c.mu.RLock()
	k, ok := c.kernels[key]
	c.mu.RUnlock()
	if ok {
		return k
	}

	k = GaussianKernel(radius)

	c.mu.Lock()
	if len(c.kernels) >= c.limit {
		// Simple eviction: drop half the entries.
		drop := c.limit / 2
		for key := range c.kernels {
			delete(c.kernels, key)
			if drop--; drop <= 0 {
				break
			}
		}
	}
	c.kernels[key] = k
	c.mu.Unlock()

	return k
}

// CachedGaussianKernel returns a cached Gaussian kernel for the radius.
// This is more efficient when the same radius is used every frame, which
// is the common case for a blur pipeline.
func CachedGaussianKernel(radius float64) []float32 {
	return defaultKernelCache.get(radius)
}
