// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backdroplayer

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/backdrop"
)

// mockDevice implements gpucontext.Device for testing.
type mockDevice struct{}

func (m *mockDevice) Poll(wait bool) {}
func (m *mockDevice) Destroy()       {}

// mockQueue implements gpucontext.Queue for testing.
type mockQueue struct{}

// mockAdapter implements gpucontext.Adapter for testing.
type mockAdapter struct{}

// mockProvider implements gpucontext.DeviceProvider for testing.
type mockProvider struct {
	device  gpucontext.Device
	queue   gpucontext.Queue
	adapter gpucontext.Adapter
	format  gputypes.TextureFormat
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		device:  &mockDevice{},
		queue:   &mockQueue{},
		adapter: &mockAdapter{},
		format:  gputypes.TextureFormatBGRA8Unorm,
	}
}

func (m *mockProvider) Device() gpucontext.Device             { return m.device }
func (m *mockProvider) Queue() gpucontext.Queue               { return m.queue }
func (m *mockProvider) Adapter() gpucontext.Adapter           { return m.adapter }
func (m *mockProvider) SurfaceFormat() gputypes.TextureFormat { return m.format }
func (m *mockProvider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{} }

// mockTexture implements UpdateData and Destroy for testing.
type mockTexture struct {
	data      []byte
	updated   int
	destroyed bool
}

func (m *mockTexture) UpdateData(data []byte) error {
	m.data = make([]byte, len(data))
	copy(m.data, data)
	m.updated++
	return nil
}

func (m *mockTexture) Destroy() {
	m.destroyed = true
}

// uniformSource is a fixed-size solid color Source.
type uniformSource struct {
	w, h int
}

func (s *uniformSource) PixelWidth() int              { return s.w }
func (s *uniformSource) PixelHeight() int             { return s.h }
func (s *uniformSource) ScreenOrigin() backdrop.Point { return backdrop.Point{} }

func (s *uniformSource) RenderInto(dst *backdrop.Pixmap, scaleX, scaleY float64) {
	sw := int(float64(s.w) * scaleX)
	sh := int(float64(s.h) * scaleY)
	for y := 0; y < sh && y < dst.Height(); y++ {
		for x := 0; x < sw && x < dst.Width(); x++ {
			dst.SetPixel(x, y, backdrop.RGBA{R: 0.5, G: 0.5, B: 0.5, A: 1})
		}
	}
}

// TestNew verifies layer creation and argument validation.
func TestNew(t *testing.T) {
	if _, err := New(nil, 100, 100); !errors.Is(err, ErrNilProvider) {
		t.Errorf("nil provider: err = %v, want ErrNilProvider", err)
	}

	provider := newMockProvider()
	for _, c := range []struct{ w, h int }{{0, 100}, {100, 0}, {-1, 10}} {
		if _, err := New(provider, c.w, c.h); !errors.Is(err, ErrInvalidDimensions) {
			t.Errorf("size %dx%d: err = %v, want ErrInvalidDimensions", c.w, c.h, err)
		}
	}

	l, err := New(provider, 120, 80, backdrop.WithBlurRadius(5))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	if w, h := l.Size(); w != 120 || h != 80 {
		t.Errorf("Size() = %dx%d, want 120x80", w, h)
	}
	if l.Pipeline() == nil {
		t.Error("Pipeline() = nil")
	}
	if l.Pipeline().BlurRadius() != 5 {
		t.Errorf("BlurRadius = %v, want 5", l.Pipeline().BlurRadius())
	}
	if l.Provider() != gpucontext.DeviceProvider(provider) {
		t.Error("Provider() does not return the construction provider")
	}
}

// TestFlush verifies the render-on-dirty contract: the first Flush
// produces a pending texture sized to the layer, and clean flushes reuse
// it without re-rendering.
func TestFlush(t *testing.T) {
	l, err := New(newMockProvider(), 40, 30)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	if _, err := l.Flush(); !errors.Is(err, ErrNoSource) {
		t.Fatalf("Flush without source: err = %v, want ErrNoSource", err)
	}

	l.SetSource(&uniformSource{w: 200, h: 200})
	tex, err := l.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	pending, ok := tex.(*pendingTexture)
	if !ok {
		t.Fatalf("first Flush returned %T, want *pendingTexture", tex)
	}
	if pending.width != 40 || pending.height != 30 {
		t.Errorf("pending texture = %dx%d, want 40x30", pending.width, pending.height)
	}
	if len(pending.data) != 40*30*4 {
		t.Errorf("pending data length = %d, want %d", len(pending.data), 40*30*4)
	}
	if l.IsDirty() {
		t.Error("layer still dirty after Flush")
	}

	// Clean flush reuses the texture.
	tex2, err := l.Flush()
	if err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if tex2 != tex {
		t.Error("clean Flush replaced the texture")
	}
}

// TestFlushUpdatesTexture verifies that a dirty flush pushes new frame
// data into an updatable texture.
func TestFlushUpdatesTexture(t *testing.T) {
	l, err := New(newMockProvider(), 20, 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	l.SetSource(&uniformSource{w: 100, h: 100})

	// Install a real (mock) texture as RenderTo would.
	mock := &mockTexture{}
	l.texture = mock

	if _, err := l.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if mock.updated != 1 {
		t.Fatalf("texture updated %d times, want 1", mock.updated)
	}
	if len(mock.data) != 20*20*4 {
		t.Errorf("uploaded %d bytes, want %d", len(mock.data), 20*20*4)
	}

	// Clean flush does not re-upload.
	if _, err := l.Flush(); err != nil {
		t.Fatalf("clean Flush: %v", err)
	}
	if mock.updated != 1 {
		t.Errorf("clean Flush re-uploaded: %d updates", mock.updated)
	}

	// Invalidate forces a re-upload.
	l.Invalidate()
	if _, err := l.Flush(); err != nil {
		t.Fatalf("Flush after Invalidate: %v", err)
	}
	if mock.updated != 2 {
		t.Errorf("texture updated %d times after Invalidate, want 2", mock.updated)
	}
}

// TestFlushSkippedFrame verifies that a skipped pipeline frame keeps the
// current texture instead of replacing it.
func TestFlushSkippedFrame(t *testing.T) {
	l, err := New(newMockProvider(), 20, 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	// Zero-sized source: every frame is skipped.
	l.SetSource(&uniformSource{w: 0, h: 0})

	tex, err := l.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if tex != nil {
		t.Errorf("skipped frame produced texture %T", tex)
	}

	mock := &mockTexture{}
	l.texture = mock
	tex, err = l.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if tex != any(mock) {
		t.Error("skipped frame replaced the existing texture")
	}
	if mock.updated != 0 {
		t.Error("skipped frame uploaded data")
	}
}

// TestResize verifies geometry updates and deferred texture replacement.
func TestResize(t *testing.T) {
	l, err := New(newMockProvider(), 30, 30)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	if err := l.Resize(0, 10); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("Resize(0, 10) = %v, want ErrInvalidDimensions", err)
	}

	l.SetSource(&uniformSource{w: 100, h: 100})
	if _, err := l.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	first := l.Texture()

	if err := l.Resize(50, 40); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if !l.IsDirty() {
		t.Error("Resize did not mark the layer dirty")
	}

	tex, err := l.Flush()
	if err != nil {
		t.Fatalf("Flush after Resize: %v", err)
	}
	if tex == first {
		t.Error("Resize kept the old texture")
	}
	pending, ok := tex.(*pendingTexture)
	if !ok {
		t.Fatalf("Flush after Resize returned %T, want *pendingTexture", tex)
	}
	if pending.width != 50 || pending.height != 40 {
		t.Errorf("resized texture = %dx%d, want 50x40", pending.width, pending.height)
	}

	// Same-size resize is a no-op.
	if err := l.Resize(50, 40); err != nil {
		t.Fatalf("no-op Resize: %v", err)
	}
	if l.IsDirty() {
		t.Error("no-op Resize marked the layer dirty")
	}
}

// TestMoveTo verifies position updates mark the layer dirty only on
// actual movement.
func TestMoveTo(t *testing.T) {
	l, err := New(newMockProvider(), 30, 30)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	l.SetSource(&uniformSource{w: 100, h: 100})
	if _, err := l.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	l.MoveTo(10, 20)
	if x, y := l.Origin(); x != 10 || y != 20 {
		t.Errorf("Origin() = (%v, %v), want (10, 20)", x, y)
	}
	if !l.IsDirty() {
		t.Error("MoveTo did not mark the layer dirty")
	}

	if _, err := l.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	l.MoveTo(10, 20)
	if l.IsDirty() {
		t.Error("no-op MoveTo marked the layer dirty")
	}
}

// TestClose verifies idempotent teardown and texture destruction.
func TestClose(t *testing.T) {
	l, err := New(newMockProvider(), 30, 30)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mock := &mockTexture{}
	l.texture = mock

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !mock.destroyed {
		t.Error("Close did not destroy the texture")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if l.Pipeline() != nil {
		t.Error("Pipeline() after Close should be nil")
	}
	if _, err := l.Flush(); !errors.Is(err, ErrLayerClosed) {
		t.Errorf("Flush after Close = %v, want ErrLayerClosed", err)
	}
	if err := l.Resize(10, 10); !errors.Is(err, ErrLayerClosed) {
		t.Errorf("Resize after Close = %v, want ErrLayerClosed", err)
	}
}
