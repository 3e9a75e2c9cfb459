/*
Copyright 2025 The goARRG Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package compositor

import (
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"goarrg.com/xr/compositor/native"
	"goarrg.com/xr/compositor/native/sim"
)

type fakeTracker struct {
	running    bool
	head       mgl32.Mat4
	offset     mgl32.Mat4
	resolution native.Resolution
	present    uint64
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		running:    true,
		head:       mgl32.Ident4(),
		offset:     mgl32.Ident4(),
		resolution: native.Resolution{X: 1920, Y: 1080},
	}
}

func (t *fakeTracker) SessionRunning() bool { return t.running }
func (t *fakeTracker) HeadPose() mgl32.Mat4 { return t.head }

func (t *fakeTracker) EyeFromHead(eye native.Eye) mgl32.Mat4 {
	if eye == native.EyeLeft {
		return mgl32.Translate3D(-0.032, 0, 0)
	}
	return mgl32.Translate3D(0.032, 0, 0)
}

func (t *fakeTracker) EyeFov(native.Eye) native.Fov4f {
	return native.Fov4f{Left: -1, Right: 1, Top: 1, Bottom: -1}
}

func (t *fakeTracker) DisplayResolution() native.Resolution { return t.resolution }
func (t *fakeTracker) WorldOffset() mgl32.Mat4              { return t.offset }

func (t *fakeTracker) PresentTime() uint64 {
	t.present += 16_666_666
	return t.present
}

type fakeTexture struct {
	alloc     *fakeAllocator
	ptr       native.BufferHandle
	size      native.Resolution
	destroyed bool
}

func (t *fakeTexture) NativePtr() native.BufferHandle { return t.ptr }
func (t *fakeTexture) Size() native.Resolution        { return t.size }

func (t *fakeTexture) Destroy() {
	t.alloc.mtx.Lock()
	defer t.alloc.mtx.Unlock()
	t.alloc.destroyCalls++
	if !t.destroyed {
		t.destroyed = true
		t.alloc.destroyed++
	}
}

type fakeAllocator struct {
	mtx       sync.Mutex
	next      native.BufferHandle
	created   []*fakeTexture
	destroyed int
	// destroyCalls counts repeated destroys of the same texture too.
	destroyCalls int
	// block, when set, stalls NewDisplayTextures until it is closed.
	block chan struct{}
	fail  error
}

func newFakeAllocator() *fakeAllocator {
	return &fakeAllocator{next: 0x10000}
}

func (a *fakeAllocator) texture(size native.Resolution) *fakeTexture {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.next += 0x100
	t := &fakeTexture{alloc: a, ptr: a.next, size: size}
	a.created = append(a.created, t)
	return t
}

func (a *fakeAllocator) NewRenderTarget(_ string, size native.Resolution, _ native.TextureFormat) (RenderTarget, error) {
	if a.fail != nil {
		return nil, a.fail
	}
	return a.texture(size), nil
}

func (a *fakeAllocator) NewDisplayTextures(count int, size native.Resolution, _ int32) ([]RenderTarget, error) {
	if a.block != nil {
		<-a.block
	}
	if a.fail != nil {
		return nil, a.fail
	}
	ret := make([]RenderTarget, count)
	for i := range ret {
		ret[i] = a.texture(size)
	}
	return ret, nil
}

func (a *fakeAllocator) DestroyCalls() int {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.destroyCalls
}

func (a *fakeAllocator) Destroyed() int {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.destroyed
}

type fakeProtected struct {
	starts, stops int
	fail          error
}

func (p *fakeProtected) Start() error {
	if p.fail != nil {
		return p.fail
	}
	p.starts++
	return nil
}

func (p *fakeProtected) Stop() error {
	if p.fail != nil {
		return p.fail
	}
	p.stops++
	return nil
}

type harness struct {
	api       *sim.API
	thread    *RenderThread
	renderer  *Renderer
	tracker   *fakeTracker
	textures  *fakeAllocator
	protected *fakeProtected
	m         *Manager
}

func inlineConfig() Config {
	c := DefaultConfig()
	c.UseMultiThread = false
	c.ValidateFrames = true
	return c
}

func newHarness(t *testing.T, config Config) *harness {
	return newHarnessWith(t, config, newFakeAllocator())
}

func newHarnessWith(t *testing.T, config Config, textures *fakeAllocator) *harness {
	t.Helper()
	h := &harness{
		api:       sim.New(),
		tracker:   newFakeTracker(),
		textures:  textures,
		protected: &fakeProtected{},
	}
	h.thread = NewRenderThread(config)
	t.Cleanup(h.thread.Release)
	h.renderer = NewRenderer(h.api, h.thread)

	m, err := NewManager(h.api, h.renderer, h.tracker, h.textures, h.protected, config)
	require.NoError(t, err)
	h.m = m
	return h
}

// start creates and starts the renderer, lets the manager initialize the native
// swapchain and allocates the display overlays.
func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.renderer.Create())
	h.renderer.Start()
	h.thread.Flush()
	h.m.EndFrame()
	h.thread.Flush()
	require.True(t, h.m.Ready())
	require.NoError(t, h.m.Update())
}

func staticInfo(h *harness, depth int) ContentOverlayInfo {
	return ContentOverlayInfo{
		CompositionDepth: depth,
		Texture:          h.textures.texture(native.Resolution{X: 512, Y: 256}),
		Model:            mgl32.Translate3D(0, 0, -2).Mul4(mgl32.Scale3D(0.5, 0.25, 1)),
	}
}

func dynamicInfo(h *harness, depth int) ContentOverlayInfo {
	info := staticInfo(h, depth)
	info.Dynamic = true
	return info
}

func overlayNames(overlays []Overlay) []string {
	names := make([]string, len(overlays))
	for i, o := range overlays {
		names[i] = o.Name()
	}
	return names
}
