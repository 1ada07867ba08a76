// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package backdroplayer hosts a backdrop pipeline inside a gogpu window.
//
// A Layer owns a backdrop.Pipeline and a GPU texture holding the most
// recent blurred frame. The host positions the layer over its content,
// calls Invalidate when the content underneath changes, and draws the
// layer each frame via RenderTo:
//
//	layer, _ := backdroplayer.New(app.GPUContextProvider(), 320, 200)
//	layer.SetSource(contentSource)
//	layer.MoveTo(40, 120)
//	app.OnDraw(func(dc *gogpu.Context) {
//	    layer.RenderTo(dc.AsTextureDrawer())
//	})
//
// When the provider exposes HAL device handles the blur kernel shares
// the window's GPU device instead of creating its own.
package backdroplayer

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/backdrop"
)

// Common errors returned by Layer operations.
var (
	// ErrLayerClosed is returned when operations are attempted on a closed layer.
	ErrLayerClosed = errors.New("backdroplayer: layer is closed")

	// ErrInvalidDimensions is returned when width or height is invalid.
	ErrInvalidDimensions = errors.New("backdroplayer: invalid dimensions")

	// ErrNilProvider is returned when a nil DeviceProvider is passed.
	ErrNilProvider = errors.New("backdroplayer: nil DeviceProvider")

	// ErrNoSource is returned when Flush runs before SetSource.
	ErrNoSource = errors.New("backdroplayer: no source set")
)

// textureDestroyer matches the gogpu.Texture.Destroy signature.
type textureDestroyer interface {
	Destroy()
}

// Layer is a positioned blur region backed by a GPU texture.
//
// Layer is NOT safe for concurrent use. Create one Layer per goroutine,
// or use external synchronization.
type Layer struct {
	pipeline *backdrop.Pipeline
	provider gpucontext.DeviceProvider
	source   backdrop.Source

	texture    any // lazy-created texture (*gogpu.Texture)
	oldTexture any // previous texture awaiting deferred destruction

	originX, originY float64
	width, height    int

	dirty       bool // content underneath changed, re-blur on next Flush
	sizeChanged bool // resize pending, texture must be recreated
	closed      bool
}

// New creates a Layer of the given size on the provider's device.
// The provider should come from gogpu.App.GPUContextProvider().
//
// Pipeline options (downsample factor, blur radius, overlay color,
// corner radius) are passed through to backdrop.NewPipeline.
func New(provider gpucontext.DeviceProvider, width, height int, opts ...backdrop.Option) (*Layer, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, width, height)
	}

	// Share the window's GPU device with the blur kernel if one is
	// registered. Non-fatal: the kernel may not support sharing or the
	// provider may not expose HAL handles, in which case the kernel
	// keeps (or creates) its own device.
	_ = backdrop.SetKernelDeviceProvider(provider)

	p, err := backdrop.NewPipeline(opts...)
	if err != nil {
		return nil, fmt.Errorf("backdroplayer: pipeline: %w", err)
	}

	return &Layer{
		pipeline: p,
		provider: provider,
		width:    width,
		height:   height,
		dirty:    true,
	}, nil
}

// Pipeline returns the underlying blur pipeline for reconfiguration.
// Returns nil if the layer is closed.
func (l *Layer) Pipeline() *backdrop.Pipeline {
	if l.closed {
		return nil
	}
	return l.pipeline
}

// SetSource sets the content the layer blurs and marks the layer dirty.
func (l *Layer) SetSource(src backdrop.Source) {
	l.source = src
	l.dirty = true
}

// MoveTo positions the layer's top-left corner in screen coordinates
// and marks the layer dirty.
func (l *Layer) MoveTo(x, y float64) {
	if x == l.originX && y == l.originY {
		return
	}
	l.originX = x
	l.originY = y
	l.dirty = true
}

// Origin returns the layer position in screen coordinates.
func (l *Layer) Origin() (x, y float64) {
	return l.originX, l.originY
}

// Size returns the layer dimensions in pixels.
func (l *Layer) Size() (width, height int) {
	return l.width, l.height
}

// Invalidate flags the layer for a re-blur on the next Flush.
// Call this whenever the content underneath the layer changes.
func (l *Layer) Invalidate() {
	l.dirty = true
}

// IsDirty reports whether the layer has a pending re-blur.
func (l *Layer) IsDirty() bool {
	return l.dirty
}

// Resize changes the layer dimensions. The backing texture is recreated
// on the next Flush.
func (l *Layer) Resize(width, height int) error {
	if l.closed {
		return ErrLayerClosed
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, width, height)
	}
	if l.width == width && l.height == height {
		return nil
	}

	l.width = width
	l.height = height
	l.sizeChanged = true
	l.dirty = true
	return nil
}

// Flush re-renders the blurred frame if dirty and returns the texture
// for manual drawing. The texture is created lazily on first Flush;
// subsequent calls only re-blur when the dirty flag is set.
//
// A skipped frame (unavailable kernel, zero-sized source) keeps the
// previous texture contents.
func (l *Layer) Flush() (any, error) {
	if l.closed {
		return nil, ErrLayerClosed
	}
	if l.source == nil {
		return nil, ErrNoSource
	}

	// If size changed, defer old texture destruction until the GPU is
	// idle. In-flight command buffers may still reference it; RenderTo
	// destroys it after texture creation waits for the GPU.
	if l.sizeChanged {
		if l.texture != nil {
			if l.oldTexture != nil {
				if destroyer, ok := l.oldTexture.(textureDestroyer); ok {
					destroyer.Destroy()
				}
			}
			l.oldTexture = l.texture
			l.texture = nil
		}
		l.sizeChanged = false
	}

	if !l.dirty && l.texture != nil {
		return l.texture, nil
	}

	out, err := l.pipeline.RenderFrame(l.source, backdrop.Pt(l.originX, l.originY), l.width, l.height)
	if err != nil {
		return nil, fmt.Errorf("backdroplayer: render: %w", err)
	}
	if out == nil {
		// Frame skipped; keep whatever the texture currently shows.
		return l.texture, nil
	}

	if l.texture == nil {
		l.texture = &pendingTexture{
			width:  out.Width(),
			height: out.Height(),
			data:   out.Data(),
		}
		l.dirty = false
		return l.texture, nil
	}

	if updater, ok := l.texture.(gpucontext.TextureUpdater); ok {
		if err := updater.UpdateData(out.Data()); err != nil {
			return nil, fmt.Errorf("backdroplayer: texture update failed: %w", err)
		}
	}

	l.dirty = false
	return l.texture, nil
}

// Texture returns the current GPU texture without flushing.
// Returns nil if the texture hasn't been created yet.
func (l *Layer) Texture() any {
	return l.texture
}

// Provider returns the DeviceProvider associated with this layer.
// Returns nil if the layer is closed.
func (l *Layer) Provider() gpucontext.DeviceProvider {
	if l.closed {
		return nil
	}
	return l.provider
}

// Close releases the pipeline and any GPU textures.
// Close is idempotent.
func (l *Layer) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true

	if l.oldTexture != nil {
		if destroyer, ok := l.oldTexture.(textureDestroyer); ok {
			destroyer.Destroy()
		}
		l.oldTexture = nil
	}
	if l.texture != nil {
		if destroyer, ok := l.texture.(textureDestroyer); ok {
			destroyer.Destroy()
		}
		l.texture = nil
	}

	if l.pipeline != nil {
		l.pipeline.Close()
		l.pipeline = nil
	}

	l.provider = nil
	l.source = nil
	return nil
}

// pendingTexture is a placeholder holding frame data until RenderTo has
// access to a texture creator.
type pendingTexture struct {
	width  int
	height int
	data   []byte
}
