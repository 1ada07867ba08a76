// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/backdrop/internal/filter"
)

//go:embed shaders/blur.wgsl
var shaderBlur string

// Dispatcher errors.
var (
	// ErrNotInitialized is returned when Blur is called before Init succeeds.
	ErrNotInitialized = errors.New("gpu: dispatcher not initialized")

	// ErrNoAdapter is returned when no usable GPU adapter exists.
	ErrNoAdapter = errors.New("gpu: no GPU adapters found")

	// ErrDispatchTooLarge is returned when the pixel count exceeds the
	// single-dimension workgroup limit. The caller should fall back to CPU.
	ErrDispatchTooLarge = errors.New("gpu: dispatch exceeds workgroup limit")
)

// IsDispatchTooLarge reports whether err means the frame exceeded the
// compute dispatch limit and should be blurred on the CPU instead.
func IsDispatchTooLarge(err error) bool {
	return errors.Is(err, ErrDispatchTooLarge)
}

const (
	// workgroupSize matches @workgroup_size in blur.wgsl.
	workgroupSize = 256

	// maxWorkgroups is the WebGPU per-dimension dispatch limit.
	maxWorkgroups = 65535

	// fenceTimeout bounds the wait for GPU completion.
	fenceTimeout = 5 * time.Second
)

// paramsSize is the byte size of the Params uniform in blur.wgsl.
const paramsSize = 16

// BlurDispatcher runs the two-pass separable blur on a wgpu device.
//
// The pipeline is compiled once at construction; per-frame state is limited
// to buffers sized for the frame being blurred. A dispatcher is safe for
// use from one goroutine at a time.
type BlurDispatcher struct {
	mu sync.Mutex

	instance       hal.Instance
	device         hal.Device
	queue          hal.Queue
	externalDevice bool

	module     hal.ShaderModule
	bgLayout   hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	initialized bool
}

// NewDispatcher creates a dispatcher with its own standalone Vulkan device.
// This is the path used when no host device is shared.
func NewDispatcher() (*BlurDispatcher, error) {
	d := &BlurDispatcher{}
	if err := d.initGPU(); err != nil {
		return nil, err
	}
	if err := d.initPipeline(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// NewDispatcherWithDevice creates a dispatcher on a shared device/queue
// pair owned by the host. Close will not destroy shared handles.
func NewDispatcherWithDevice(device hal.Device, queue hal.Queue) (*BlurDispatcher, error) {
	d := &BlurDispatcher{
		device:         device,
		queue:          queue,
		externalDevice: true,
	}
	if err := d.initPipeline(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// initGPU acquires a standalone Vulkan device for compute-only use.
func (d *BlurDispatcher) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("gpu: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("gpu: create instance: %w", err)
	}
	d.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		d.instance = nil
		return ErrNoAdapter
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		d.instance = nil
		return fmt.Errorf("gpu: open device: %w", err)
	}
	d.device = openDev.Device
	d.queue = openDev.Queue

	slogger().Info("gpu: blur device initialized", "adapter", selected.Info.Name)
	return nil
}

// initPipeline compiles the blur shader and creates the compute pipeline.
func (d *BlurDispatcher) initPipeline() error {
	spirv, err := compileToSPIRV(shaderBlur)
	if err != nil {
		return fmt.Errorf("gpu: compile blur shader: %w", err)
	}

	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "backdrop_blur",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("gpu: create shader module: %w", err)
	}
	d.module = module

	bgLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "backdrop_blur_bgl",
		Entries: blurBindGroupLayoutEntries(),
	})
	if err != nil {
		return fmt.Errorf("gpu: create bind group layout: %w", err)
	}
	d.bgLayout = bgLayout

	pipeLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "backdrop_blur_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
	})
	if err != nil {
		return fmt.Errorf("gpu: create pipeline layout: %w", err)
	}
	d.pipeLayout = pipeLayout

	pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  "backdrop_blur",
		Layout: pipeLayout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: create compute pipeline: %w", err)
	}
	d.pipeline = pipeline

	d.initialized = true
	slogger().Debug("gpu: blur pipeline created", "shader_bytes", len(shaderBlur))
	return nil
}

// blurBindGroupLayoutEntries matches the @group(0) @binding(N) annotations
// in blur.wgsl exactly.
func blurBindGroupLayoutEntries() []gputypes.BindGroupLayoutEntry {
	storageRO := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
		}
	}
	return []gputypes.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		},
		storageRO(1),
		storageRO(2),
		{
			Binding:    3,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		},
	}
}

// compileToSPIRV compiles WGSL source to a SPIR-V word slice via naga.
func compileToSPIRV(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, err
	}

	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// blurParams packs the Params uniform for one pass.
func blurParams(width, height, dir, taps uint32) []byte {
	buf := make([]byte, paramsSize)
	binary.LittleEndian.PutUint32(buf[0:], width)
	binary.LittleEndian.PutUint32(buf[4:], height)
	binary.LittleEndian.PutUint32(buf[8:], dir)
	binary.LittleEndian.PutUint32(buf[12:], taps)
	return buf
}

// weightBytes packs a float32 kernel into little-endian bytes.
func weightBytes(kernel []float32) []byte {
	buf := make([]byte, len(kernel)*4)
	for i, w := range kernel {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(w))
	}
	return buf
}

// frameBuffers holds the per-frame GPU resources for one blur.
type frameBuffers struct {
	device  hal.Device
	params  [2]hal.Buffer
	weights hal.Buffer
	src     hal.Buffer
	tmp     hal.Buffer
	dst     hal.Buffer
	staging hal.Buffer
	groups  []hal.BindGroup
	fence   hal.Fence
	cmdBuf  hal.CommandBuffer
}

// cleanup destroys all per-frame resources.
func (f *frameBuffers) cleanup() {
	if f.fence != nil {
		f.device.DestroyFence(f.fence)
	}
	if f.cmdBuf != nil {
		f.device.FreeCommandBuffer(f.cmdBuf)
	}
	for _, g := range f.groups {
		f.device.DestroyBindGroup(g)
	}
	for _, b := range []hal.Buffer{f.params[0], f.params[1], f.weights, f.src, f.tmp, f.dst, f.staging} {
		if b != nil {
			f.device.DestroyBuffer(b)
		}
	}
}

// Blur runs the two-pass separable Gaussian blur on the GPU.
// src and dst hold premultiplied RGBA bytes of size width*height*4.
func (d *BlurDispatcher) Blur(src, dst []uint8, width, height int, radius float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return ErrNotInitialized
	}
	if width <= 0 || height <= 0 {
		return nil
	}

	n := uint32(width) * uint32(height)
	wgCount := (n + workgroupSize - 1) / workgroupSize
	if wgCount > maxWorkgroups {
		return fmt.Errorf("%w: %d pixels", ErrDispatchTooLarge, n)
	}

	kernel := filter.CachedGaussianKernel(radius)
	pixBytes := uint64(n) * 4

	fb := &frameBuffers{device: d.device}
	defer fb.cleanup()

	if err := d.allocFrame(fb, kernel, src, pixBytes); err != nil {
		return err
	}

	// Upload per-pass params: pass 0 horizontal, pass 1 vertical.
	taps := uint32(len(kernel))
	d.queue.WriteBuffer(fb.params[0], 0, blurParams(uint32(width), uint32(height), 0, taps))
	d.queue.WriteBuffer(fb.params[1], 0, blurParams(uint32(width), uint32(height), 1, taps))
	d.queue.WriteBuffer(fb.weights, 0, weightBytes(kernel))
	d.queue.WriteBuffer(fb.src, 0, src)

	if err := d.encodeFrame(fb, wgCount, pixBytes); err != nil {
		return err
	}

	if err := d.submitAndWait(fb); err != nil {
		return err
	}

	if err := d.queue.ReadBuffer(fb.staging, 0, dst); err != nil {
		return fmt.Errorf("gpu: readback: %w", err)
	}

	slogger().Debug("gpu: blur dispatched",
		"size", fmt.Sprintf("%dx%d", width, height),
		"taps", taps,
		"workgroups", wgCount)
	return nil
}

// allocFrame creates the per-frame buffers.
func (d *BlurDispatcher) allocFrame(fb *frameBuffers, kernel []float32, src []uint8, pixBytes uint64) error {
	uniformCPU := gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	storageCPU := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	storageGPU := gputypes.BufferUsageStorage
	storageOut := gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc
	stagingIn := gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst

	type bufSpec struct {
		target *hal.Buffer
		label  string
		size   uint64
		usage  gputypes.BufferUsage
	}
	specs := []bufSpec{
		{&fb.params[0], "backdrop_blur_params_h", paramsSize, uniformCPU},
		{&fb.params[1], "backdrop_blur_params_v", paramsSize, uniformCPU},
		{&fb.weights, "backdrop_blur_weights", uint64(len(kernel)) * 4, storageCPU},
		{&fb.src, "backdrop_blur_src", uint64(len(src)), storageCPU},
		{&fb.tmp, "backdrop_blur_tmp", pixBytes, storageGPU},
		{&fb.dst, "backdrop_blur_dst", pixBytes, storageOut},
		{&fb.staging, "backdrop_blur_staging", pixBytes, stagingIn},
	}

	for _, s := range specs {
		buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: s.label,
			Size:  s.size,
			Usage: s.usage,
		})
		if err != nil {
			return fmt.Errorf("gpu: create %s buffer: %w", s.label, err)
		}
		*s.target = buf
	}
	return nil
}

// encodeFrame records both blur passes and the staging copy.
func (d *BlurDispatcher) encodeFrame(fb *frameBuffers, wgCount uint32, pixBytes uint64) error {
	entry := func(binding uint32, buf hal.Buffer) gputypes.BindGroupEntry {
		return gputypes.BindGroupEntry{
			Binding: binding,
			Resource: gputypes.BufferBinding{
				Buffer: buf.NativeHandle(),
				Offset: 0,
				Size:   0, // 0 = entire buffer
			},
		}
	}

	// Pass 0 reads src into tmp; pass 1 reads tmp into dst.
	passEntries := [2][]gputypes.BindGroupEntry{
		{entry(0, fb.params[0]), entry(1, fb.weights), entry(2, fb.src), entry(3, fb.tmp)},
		{entry(0, fb.params[1]), entry(1, fb.weights), entry(2, fb.tmp), entry(3, fb.dst)},
	}

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "backdrop_blur",
	})
	if err != nil {
		return fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("backdrop_blur"); err != nil {
		return fmt.Errorf("gpu: begin encoding: %w", err)
	}

	for i, entries := range passEntries {
		bg, bgErr := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   fmt.Sprintf("backdrop_blur_bg%d", i),
			Layout:  d.bgLayout,
			Entries: entries,
		})
		if bgErr != nil {
			encoder.DiscardEncoding()
			return fmt.Errorf("gpu: create bind group %d: %w", i, bgErr)
		}
		fb.groups = append(fb.groups, bg)

		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{
			Label: fmt.Sprintf("backdrop_blur_pass%d", i),
		})
		pass.SetPipeline(d.pipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(wgCount, 1, 1)
		pass.End()
	}

	encoder.CopyBufferToBuffer(fb.dst, fb.staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: pixBytes},
	})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("gpu: end encoding: %w", err)
	}
	fb.cmdBuf = cmdBuf
	return nil
}

// submitAndWait submits the command buffer and waits for GPU completion.
func (d *BlurDispatcher) submitAndWait(fb *frameBuffers) error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("gpu: create fence: %w", err)
	}
	fb.fence = fence

	if err := d.queue.Submit([]hal.CommandBuffer{fb.cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("gpu: submit: %w", err)
	}

	ok, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("gpu: wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("gpu: timeout after %v", fenceTimeout)
	}
	return nil
}

// Ready reports whether the dispatcher can accept Blur calls.
func (d *BlurDispatcher) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

// Close releases all GPU resources. For standalone devices this includes
// the device and instance; shared handles stay with their owner.
func (d *BlurDispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pipeline != nil {
		d.device.DestroyComputePipeline(d.pipeline)
		d.pipeline = nil
	}
	if d.pipeLayout != nil {
		d.device.DestroyPipelineLayout(d.pipeLayout)
		d.pipeLayout = nil
	}
	if d.bgLayout != nil {
		d.device.DestroyBindGroupLayout(d.bgLayout)
		d.bgLayout = nil
	}
	if d.module != nil {
		d.device.DestroyShaderModule(d.module)
		d.module = nil
	}

	if !d.externalDevice {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.instance = nil
	d.queue = nil
	d.initialized = false
}
