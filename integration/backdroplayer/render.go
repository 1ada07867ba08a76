// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package backdroplayer

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
)

// Rendering errors.
var (
	// ErrInvalidDrawContext is returned when the draw context doesn't
	// implement gpucontext.TextureDrawer.
	ErrInvalidDrawContext = errors.New("backdroplayer: dc must implement gpucontext.TextureDrawer")

	// ErrInvalidRenderer is returned when the renderer doesn't implement
	// gpucontext.TextureCreator.
	ErrInvalidRenderer = errors.New("backdroplayer: renderer must implement gpucontext.TextureCreator")
)

// RenderTo flushes the layer and draws its texture at the layer origin.
//
// The dc parameter should be obtained from gogpu.Context.AsTextureDrawer().
// Call from the host's draw callback:
//
//	app.OnDraw(func(dc *gogpu.Context) {
//	    layer.RenderTo(dc.AsTextureDrawer())
//	})
func (l *Layer) RenderTo(dc gpucontext.TextureDrawer) error {
	if l.closed {
		return ErrLayerClosed
	}

	tex, err := l.Flush()
	if err != nil {
		return err
	}
	if tex == nil {
		// Nothing rendered yet (every frame so far was skipped).
		return nil
	}

	// If the texture is a pending placeholder, create the real GPU
	// texture now that a creator is reachable.
	if pending, isPending := tex.(*pendingTexture); isPending {
		creator := dc.TextureCreator()
		if creator == nil {
			return ErrInvalidRenderer
		}

		// NewTextureFromRGBA waits for the GPU internally, so after it
		// returns the deferred old texture is safe to destroy.
		realTex, err := creator.NewTextureFromRGBA(pending.width, pending.height, pending.data)
		if err != nil {
			return fmt.Errorf("backdroplayer: NewTextureFromRGBA failed: %w", err)
		}

		// Frame data is premultiplied alpha; mark the texture so the
		// host composites with the BlendFactorOne pipeline.
		if pt, ok := realTex.(interface{ SetPremultiplied(bool) }); ok {
			pt.SetPremultiplied(true)
		}

		l.texture = realTex
		tex = realTex

		if l.oldTexture != nil {
			if destroyer, ok := l.oldTexture.(textureDestroyer); ok {
				destroyer.Destroy()
			}
			l.oldTexture = nil
		}
	}

	gpuTex, ok := tex.(gpucontext.Texture)
	if !ok {
		return ErrInvalidDrawContext
	}

	return dc.DrawTexture(gpuTex, float32(l.originX), float32(l.originY))
}
