//go:build !nogpu

// Package gpu registers the wgpu compute blur kernel.
//
// Import this package to run the blur passes on the GPU via wgpu/hal
// compute shaders:
//
//	import _ "github.com/gogpu/backdrop/gpu"
//
// The import probes for a usable device and registers the kernel. If no
// GPU exists (no Vulkan adapter, shader compilation failure), the
// registration is skipped with a warning and pipelines fall back to the
// CPU kernel. Frames too large for a single compute dispatch are
// blurred on the CPU transparently.
package gpu

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/backdrop"
	"github.com/gogpu/backdrop/internal/filter"
	gpuimpl "github.com/gogpu/backdrop/internal/gpu"
)

func init() {
	if err := backdrop.RegisterKernel(&Kernel{}); err != nil {
		backdrop.Logger().Warn("gpu blur kernel not available", "err", err)
	}
}

// Kernel is the wgpu compute blur kernel. The zero value is ready to
// use; the underlying device and pipeline are created on first Apply
// or Available call.
type Kernel struct {
	mu         sync.Mutex
	dispatcher *gpuimpl.BlurDispatcher
	initErr    error
	tried      bool
}

var _ backdrop.Kernel = (*Kernel)(nil)

// Name returns "wgpu".
func (*Kernel) Name() string { return "wgpu" }

// Available reports whether a GPU device and compute pipeline could be
// acquired. The first call performs the acquisition; the result is cached.
func (k *Kernel) Available() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ensureInit() == nil
}

// ensureInit creates the dispatcher once. Callers hold k.mu.
func (k *Kernel) ensureInit() error {
	if k.tried {
		return k.initErr
	}
	k.tried = true

	d, err := gpuimpl.NewDispatcher()
	if err != nil {
		k.initErr = fmt.Errorf("%w: %v", backdrop.ErrKernelUnavailable, err)
		return k.initErr
	}
	k.dispatcher = d
	return nil
}

// Apply blurs src into dst on the GPU. Frames exceeding the compute
// dispatch limit are blurred on the CPU instead.
func (k *Kernel) Apply(src, dst *backdrop.Pixmap, radius float64) error {
	if src.Width() != dst.Width() || src.Height() != dst.Height() {
		return fmt.Errorf("gpu: kernel dimension mismatch: src %dx%d, dst %dx%d",
			src.Width(), src.Height(), dst.Width(), dst.Height())
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.ensureInit(); err != nil {
		return err
	}

	err := k.dispatcher.Blur(src.Data(), dst.Data(), src.Width(), src.Height(), radius)
	if err == nil {
		return nil
	}
	if gpuimpl.IsDispatchTooLarge(err) {
		filter.Blur(src.Data(), dst.Data(), src.Width(), src.Height(), radius)
		return nil
	}
	return err
}

// SetLogger propagates the logger into the GPU internals.
// Called by backdrop.SetLogger.
func (k *Kernel) SetLogger(l *slog.Logger) {
	gpuimpl.SetLogger(l)
}

// SetDeviceProvider switches the kernel to a shared GPU device from an
// external provider (e.g., gogpu). The provider must implement
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
// Any standalone device the kernel created is destroyed.
func (k *Kernel) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("gpu: provider HalQueue is not hal.Queue")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.dispatcher != nil {
		k.dispatcher.Close()
		k.dispatcher = nil
	}

	d, err := gpuimpl.NewDispatcherWithDevice(device, queue)
	if err != nil {
		k.tried = true
		k.initErr = fmt.Errorf("%w: %v", backdrop.ErrKernelUnavailable, err)
		return err
	}
	k.dispatcher = d
	k.tried = true
	k.initErr = nil
	return nil
}

// Close releases the GPU device and pipeline. The kernel can be
// re-initialized by a later Available or Apply call.
func (k *Kernel) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.dispatcher != nil {
		k.dispatcher.Close()
		k.dispatcher = nil
	}
	k.tried = false
	k.initErr = nil
}
