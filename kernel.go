package backdrop

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/backdrop/internal/filter"
)

// ErrKernelUnavailable indicates the blur kernel cannot run on this system.
// A pipeline whose kernel is unavailable skips every frame rather than
// failing; hosts can check availability up front via [Kernel.Available].
var ErrKernelUnavailable = errors.New("backdrop: blur kernel unavailable")

// Kernel applies a Gaussian-equivalent blur to a pixel buffer.
//
// Apply must treat src as read-only and write a blurred copy into dst.
// Both pixmaps always have identical dimensions; the pipeline guarantees
// this before invoking the kernel. The radius unit is kernel-specific but
// must behave as a standard deviation for Gaussian-family kernels so that
// kernels are interchangeable.
//
// A kernel may hold device resources. The pipeline that owns a kernel
// releases it through Close during teardown; Close must be idempotent.
type Kernel interface {
	// Name returns the kernel name (e.g., "cpu", "wgpu").
	Name() string

	// Available reports whether the kernel can run on this system.
	// The pipeline skips frames while the kernel is unavailable.
	Available() bool

	// Apply blurs src into dst with the given radius.
	// src and dst have identical dimensions.
	Apply(src, dst *Pixmap, radius float64) error

	// Close releases resources held by the kernel.
	Close()
}

// DeviceProviderAware is an optional interface for kernels that can share
// GPU resources with an external provider (e.g., gogpu window).
// When SetDeviceProvider is called, the kernel reuses the provided GPU
// device instead of creating its own.
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

// kernelMu guards the registered default kernel.
var (
	kernelMu         sync.RWMutex
	registeredKernel Kernel
)

// RegisterKernel installs k as the default blur kernel for new pipelines.
// Pipelines created without [WithKernel] use the registered kernel; if none
// is registered, they fall back to the CPU kernel.
//
// Kernel backends register themselves from an init function, so enabling a
// backend is a blank import:
//
//	import _ "github.com/gogpu/backdrop/gpu"
//
// Registering a second kernel replaces the first. Pass nil to clear.
func RegisterKernel(k Kernel) error {
	if k != nil {
		if !k.Available() {
			return fmt.Errorf("backdrop: kernel %q: %w", k.Name(), ErrKernelUnavailable)
		}
		propagateLogger(k, Logger())
	}

	kernelMu.Lock()
	registeredKernel = k
	kernelMu.Unlock()

	if k != nil {
		Logger().Info("backdrop: blur kernel registered", "kernel", k.Name())
	}
	return nil
}

// RegisteredKernel returns the currently registered default kernel, or nil.
func RegisteredKernel() Kernel {
	kernelMu.RLock()
	defer kernelMu.RUnlock()
	return registeredKernel
}

// SetKernelDeviceProvider passes a device provider to the registered kernel,
// enabling GPU device sharing. If no kernel is registered or it doesn't
// support device sharing, this is a no-op.
//
// The provider should implement HalDevice() any and HalQueue() any methods
// that return wgpu/hal types.
func SetKernelDeviceProvider(provider any) error {
	k := RegisteredKernel()
	if k == nil {
		return nil
	}
	if dpa, ok := k.(DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}

// defaultKernel returns the kernel new pipelines use when none is given:
// the registered kernel, or a CPU kernel.
func defaultKernel() Kernel {
	kernelMu.RLock()
	k := registeredKernel
	kernelMu.RUnlock()
	if k != nil {
		return k
	}
	return NewCPUKernel()
}

// CPUKernel is the built-in separable Gaussian blur kernel.
// It needs no device resources and is always available.
type CPUKernel struct{}

// NewCPUKernel creates the built-in CPU blur kernel.
func NewCPUKernel() *CPUKernel {
	return &CPUKernel{}
}

// Name returns "cpu".
func (*CPUKernel) Name() string { return "cpu" }

// Available always reports true.
func (*CPUKernel) Available() bool { return true }

// Apply blurs src into dst using a two-pass separable Gaussian convolution.
func (*CPUKernel) Apply(src, dst *Pixmap, radius float64) error {
	if src.Width() != dst.Width() || src.Height() != dst.Height() {
		return fmt.Errorf("backdrop: kernel dimension mismatch: src %dx%d, dst %dx%d",
			src.Width(), src.Height(), dst.Width(), dst.Height())
	}
	filter.Blur(src.Data(), dst.Data(), src.Width(), src.Height(), radius)
	return nil
}

// Close is a no-op; the CPU kernel holds no resources.
func (*CPUKernel) Close() {}
