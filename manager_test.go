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
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goarrg.com/xr/compositor/native"
)

func TestManagerDisplayOverlays(t *testing.T) {
	h := newHarness(t, inlineConfig())
	assert.Len(t, h.m.Displays(), 2)
	assert.Equal(t, 2, h.m.Pending())
	assert.Empty(t, h.m.Overlays())

	h.start(t)
	assert.Equal(t, 0, h.m.Pending())
	assert.Equal(t, []string{"display_Left", "display_Right"}, overlayNames(h.m.Overlays()))
	for _, d := range h.m.Displays() {
		assert.Equal(t, StateAllocated, d.State())
		assert.True(t, d.Ready())
		assert.Equal(t, 3, d.TextureCount())
		assert.Equal(t, 3, d.BufferSpec().BufferCount)
	}
	// one spec, swapchain and viewport per display
	assert.Equal(t, 6, h.api.Live())
}

func TestManagerOrdering(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	for _, depth := range []int{5, 1, 10} {
		require.NoError(t, h.m.Add(NewContentOverlay(fmt.Sprintf("depth_%d", depth), staticInfo(h, depth))))
	}
	assert.Equal(t, []string{"depth_1", "depth_5", "depth_10", "display_Left", "display_Right"}, overlayNames(h.m.Overlays()))

	require.NoError(t, h.m.Add(NewContentOverlay("tie_a", staticInfo(h, 5))))
	require.NoError(t, h.m.Add(NewContentOverlay("tie_b", staticInfo(h, 5))))
	assert.Equal(t, []string{"depth_1", "depth_5", "tie_a", "tie_b", "depth_10", "display_Left", "display_Right"}, overlayNames(h.m.Overlays()))

	index := 0
	for _, o := range h.m.Overlays() {
		for _, v := range o.Viewports() {
			assert.Equal(t, index, v.Index, o.Name())
			index++
		}
	}
	assert.Equal(t, 12, index)
	assert.Equal(t, 12, h.m.ViewportCount())
}

func TestManagerCapacity(t *testing.T) {
	h := newHarness(t, inlineConfig())

	for i := 0; i < DefaultMaxOverlays-2; i++ {
		require.NoError(t, h.m.Add(NewContentOverlay(fmt.Sprintf("c%d", i), staticInfo(h, i))))
	}
	err := h.m.Add(NewContentOverlay("overflow", staticInfo(h, 0)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrorCapacityExceeded{}))

	h.start(t)
	assert.Len(t, h.m.Overlays(), DefaultMaxOverlays)
}

func TestManagerAddTwice(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	c := NewContentOverlay("c", staticInfo(h, 0))
	require.NoError(t, h.m.Add(c))
	live := h.api.Live()
	require.NoError(t, h.m.Add(c))
	assert.Equal(t, live, h.api.Live())
	assert.Len(t, h.m.Overlays(), 3)
}

func TestManagerInitializeError(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	err := h.m.Add(NewContentOverlay("empty", ContentOverlayInfo{}))
	require.Error(t, err)
	assert.False(t, h.m.Registered(NewContentOverlay("empty", ContentOverlayInfo{})))
	assert.Len(t, h.m.Overlays(), 2)
}

func TestManagerDeferred(t *testing.T) {
	h := newHarness(t, inlineConfig())

	a := NewContentOverlay("a", staticInfo(h, 0))
	b := NewContentOverlay("b", staticInfo(h, 1))
	require.NoError(t, h.m.Add(a))
	require.NoError(t, h.m.Add(b))
	assert.Equal(t, 4, h.m.Pending())
	assert.Equal(t, StateInitialized, a.State())

	h.m.Remove(b)
	assert.Equal(t, 3, h.m.Pending())
	assert.Equal(t, StateDestroyed, b.State())
	assert.False(t, h.m.Registered(b))

	// removing twice is a no-op
	h.m.Remove(b)
	assert.Equal(t, 3, h.m.Pending())

	h.start(t)
	assert.Equal(t, StateAllocated, a.State())
	assert.Equal(t, []string{"a", "display_Left", "display_Right"}, overlayNames(h.m.Overlays()))
	// spec, swapchain and one viewport per eye on top of the displays
	assert.Equal(t, 10, h.api.Live())
}

func TestManagerDeferredRemoveAfterAllocation(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	c := NewContentOverlay("c", staticInfo(h, 0))
	require.NoError(t, h.m.Add(c))
	require.Equal(t, StateAllocated, c.State())

	h.tracker.running = false
	h.m.Remove(c)
	assert.Equal(t, 1, h.m.Pending())
	assert.Equal(t, StateAllocated, c.State())

	// re-adding while the remove is queued queues an add, removing again cancels it
	require.NoError(t, h.m.Add(c))
	assert.Equal(t, 2, h.m.Pending())
	h.m.Remove(c)
	assert.Equal(t, 1, h.m.Pending())

	h.tracker.running = true
	require.NoError(t, h.m.Update())
	assert.Equal(t, 0, h.m.Pending())
	assert.Equal(t, StateDestroyed, c.State())
	assert.Equal(t, 6, h.api.Live())
}

func TestManagerRemoveOrder(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	c := NewContentOverlay("c", dynamicInfo(h, 0))
	require.NoError(t, h.m.Add(c))
	assert.Equal(t, 3, c.TextureCount())
	destroyed := h.textures.Destroyed()

	h.api.ResetCalls()
	h.m.Remove(c)

	ops := []string{}
	for _, call := range h.api.Calls() {
		ops = append(ops, call.Op)
	}
	assert.Equal(t, []string{"ViewportDestroy", "ViewportDestroy", "SwapchainDestroy", "BufferSpecDestroy"}, ops)
	assert.Equal(t, destroyed+3, h.textures.Destroyed())
	assert.Equal(t, StateDestroyed, c.State())
	assert.Equal(t, native.Handle(0), c.Swapchain())
	assert.Equal(t, 6, h.api.Live())
}

func TestManagerStaticTextureNotDestroyed(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	info := staticInfo(h, 0)
	c := NewContentOverlay("c", info)
	require.NoError(t, h.m.Add(c))
	sc, ok := h.api.Swapchain(c.Swapchain())
	require.True(t, ok)
	assert.Equal(t, []native.BufferHandle{info.Texture.NativePtr()}, sc.Buffers)

	h.m.Remove(c)
	assert.False(t, info.Texture.(*fakeTexture).destroyed)
}

func TestManagerAllocationRollback(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	c := NewContentOverlay("c", staticInfo(h, 0))
	h.api.FailOnce("ViewportCreate", native.ErrorFailure)
	err := h.m.Add(c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrorNativeCall{}))
	assert.False(t, h.m.Registered(c))
	assert.Equal(t, StateDestroyed, c.State())
	assert.Equal(t, 6, h.api.Live())

	require.NoError(t, h.m.Add(c))
	assert.Equal(t, StateAllocated, c.State())
	assert.Equal(t, 10, h.api.Live())
}

func TestManagerDeferredAllocationError(t *testing.T) {
	h := newHarness(t, inlineConfig())

	c := NewContentOverlay("c", staticInfo(h, 0))
	require.NoError(t, h.m.Add(c))
	h.api.Fail("SwapchainCreate", native.ErrorFailure)
	require.NoError(t, h.renderer.Create())
	h.renderer.Start()
	h.m.EndFrame()

	err := h.m.Update()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrorNativeCall{}))
	assert.False(t, h.m.Registered(c))
	assert.Equal(t, 0, h.api.Live())
	assert.Equal(t, 0, h.m.Pending())
}

func TestManagerProtected(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	a := NewContentOverlay("a", staticInfo(h, 0))
	a.SetProtected(true)
	b := NewContentOverlay("b", staticInfo(h, 1))
	b.SetProtected(true)

	require.NoError(t, h.m.Add(a))
	require.NoError(t, h.m.Add(b))
	assert.Equal(t, 1, h.protected.starts)
	assert.True(t, h.m.ProtectedActive())

	spec, ok := h.api.BufferSpec(func() native.Handle {
		sc, _ := h.api.Swapchain(a.Swapchain())
		return sc.Spec
	}())
	require.True(t, ok)
	assert.True(t, spec.CreateFlags.HasBits(native.SwapchainCreateProtectTexture))

	h.m.Remove(a)
	assert.Equal(t, 0, h.protected.stops)
	h.m.SetActive(b, false)
	assert.Equal(t, 1, h.protected.stops)
	assert.False(t, h.m.ProtectedActive())

	h.protected.fail = errors.New("busy")
	h.m.SetActive(b, true)
	assert.False(t, h.m.ProtectedActive())

	h.protected.fail = nil
	require.NoError(t, h.m.Update())
	assert.True(t, h.m.ProtectedActive())
	assert.Equal(t, 2, h.protected.starts)

	h.m.Destroy()
	assert.Equal(t, 2, h.protected.stops)
}

func TestManagerProtectedToggle(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	c := NewContentOverlay("c", staticInfo(h, 0))
	require.NoError(t, h.m.Add(c))
	assert.False(t, h.m.ProtectedActive())

	const toggles = 7
	for i := 0; i < toggles; i++ {
		c.SetProtected(i%2 == 0)
		require.NoError(t, h.m.Update())
		assert.Equal(t, i%2 == 0, h.m.ProtectedActive())
	}
	assert.Equal(t, (toggles+1)/2, h.protected.starts)
	assert.Equal(t, toggles/2, h.protected.stops)

	// flips between updates do not reach the session
	c.SetProtected(false)
	c.SetProtected(true)
	require.NoError(t, h.m.Update())
	assert.Equal(t, (toggles+1)/2, h.protected.starts)
	assert.Equal(t, toggles/2, h.protected.stops)
	assert.True(t, h.m.ProtectedActive())

	// updates without a change are idempotent
	require.NoError(t, h.m.Update())
	require.NoError(t, h.m.Update())
	assert.Equal(t, (toggles+1)/2, h.protected.starts)
}

func TestManagerReleaseTexturesTwice(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	c := NewContentOverlay("c", dynamicInfo(h, 0))
	require.NoError(t, h.m.Add(c))
	require.Equal(t, 3, c.TextureCount())
	destroyed := h.textures.Destroyed()

	c.releaseTextures(h.m)
	assert.Equal(t, 0, c.TextureCount())
	assert.Equal(t, destroyed+3, h.textures.Destroyed())

	c.releaseTextures(h.m)
	assert.Equal(t, 0, c.TextureCount())
	assert.Equal(t, destroyed+3, h.textures.Destroyed())

	d := h.m.Displays()[0]
	d.releaseTextures(h.m)
	d.releaseTextures(h.m)
	assert.Equal(t, 0, d.TextureCount())
	assert.Equal(t, destroyed+6, h.textures.Destroyed())

	// removal after a manual release destroys nothing twice
	h.m.Remove(c)
	assert.Equal(t, destroyed+6, h.textures.Destroyed())
	assert.Equal(t, h.textures.Destroyed(), h.textures.DestroyCalls())
}

func TestManagerSetActive(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	c := NewContentOverlay("c", staticInfo(h, 0))
	require.NoError(t, h.m.Add(c))
	assert.Equal(t, 4, h.m.ViewportCount())

	h.m.SetActive(c, false)
	assert.Equal(t, 2, h.m.ViewportCount())
	for _, v := range c.Viewports() {
		assert.Equal(t, -1, v.Index)
	}
	assert.Equal(t, 0, h.m.Displays()[0].Viewports()[0].Index)

	h.api.ResetCalls()
	require.True(t, h.m.PopulateFrame())
	assert.Len(t, h.api.CallsOf("FrameSetViewport"), 2)
	h.m.EndFrame()

	h.m.SetActive(c, true)
	assert.Equal(t, 4, h.m.ViewportCount())
	assert.Equal(t, 0, c.Viewports()[0].Index)
}

func TestManagerRebuild(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	c := NewContentOverlay("c", staticInfo(h, 0))
	require.NoError(t, h.m.Add(c))
	old := c.Viewports()[0].Handle()

	uv := native.Rectf{X: 0, Y: 0, W: 0.5, H: 1}
	c.SetSourceUV(native.EyeLeft, uv)
	assert.Equal(t, StatePendingRebuild, c.State())

	require.NoError(t, h.m.Update())
	assert.Equal(t, StateAllocated, c.State())
	v := c.Viewports()[0]
	assert.NotEqual(t, old, v.Handle())
	_, found := h.api.Viewport(old)
	assert.False(t, found)

	nv, found := h.api.Viewport(v.Handle())
	require.True(t, found)
	assert.Equal(t, uv, nv.SourceUV)
	assert.Equal(t, 0, v.Index)
	assert.Equal(t, 10, h.api.Live())

	// transform changes are picked up every frame without a rebuild
	c.SetTransform(mgl32.Translate3D(1, 0, -2), false)
	assert.Equal(t, StateAllocated, c.State())
	c.SetTransform(mgl32.Ident4(), true)
	assert.Equal(t, StatePendingRebuild, c.State())
}

func TestManagerSingleAcquire(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	static := NewContentOverlay("static", staticInfo(h, 0))
	dynamic := NewContentOverlay("dynamic", dynamicInfo(h, 1))
	var changed []Texture
	dynamic.OnBufferChanged = func(t Texture) { changed = append(changed, t) }
	require.NoError(t, h.m.Add(static))
	require.NoError(t, h.m.Add(dynamic))

	displays := h.m.Displays()
	var rendered []native.BufferHandle
	displays[0].OnRenderTarget = func(t Texture) { rendered = append(rendered, t.NativePtr()) }

	h.api.ResetCalls()
	require.True(t, h.m.PopulateFrame())

	acquires := h.api.CallsOf("FrameAcquire")
	require.Len(t, acquires, 1)
	assert.Equal(t, []native.Handle{dynamic.Swapchain(), displays[0].Swapchain(), displays[1].Swapchain()}, acquires[0].Swapchains)

	working := h.m.WorkingBuffer(dynamic.Swapchain())
	require.NotZero(t, working)
	assert.Zero(t, h.m.WorkingBuffer(static.Swapchain()))
	require.Len(t, changed, 1)
	assert.Equal(t, working, changed[0].NativePtr())
	require.Len(t, rendered, 1)
	assert.Equal(t, displays[0].WorkingTexture(), rendered[0])

	assert.Len(t, h.api.CallsOf("FrameSetViewport"), h.m.ViewportCount())
	assert.Len(t, h.api.CallsOf("FrameSetPresentTime"), 1)

	h.m.EndFrame()
	assert.Equal(t, 1, h.api.Submitted())

	// buffers rotate through the swapchain
	require.True(t, h.m.PopulateFrame())
	assert.NotEqual(t, working, h.m.WorkingBuffer(dynamic.Swapchain()))
	h.m.EndFrame()
	assert.Equal(t, FrameStats{Acquired: 2, Submitted: 2}, h.m.Stats())
}

func TestManagerWorkingBufferPurge(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	c := NewContentOverlay("c", dynamicInfo(h, 0))
	require.NoError(t, h.m.Add(c))
	require.True(t, h.m.PopulateFrame())
	h.m.EndFrame()

	sc := c.Swapchain()
	require.NotZero(t, h.m.WorkingBuffer(sc))
	h.m.Remove(c)
	assert.Zero(t, h.m.WorkingBuffer(sc))
}

func TestManagerAcquireFailure(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	h.api.FailOnce("FrameAcquire", native.ErrorNotReady)
	assert.False(t, h.m.PopulateFrame())
	h.m.EndFrame()
	assert.Equal(t, 0, h.api.Submitted())
	assert.Equal(t, uint64(1), h.m.Stats().Dropped)

	assert.True(t, h.m.PopulateFrame())
	h.m.EndFrame()
	assert.Equal(t, 1, h.api.Submitted())
}

func TestManagerFrameMismatch(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	require.True(t, h.m.PopulateFrame())
	// the frame is still submitted, only logged
	h.m.inflight.Store(uint64(h.m.frame) + 1)
	h.m.EndFrame()
	assert.Equal(t, 1, h.api.Submitted())
	assert.Equal(t, uint64(1), h.m.Stats().Submitted)
}

func TestManagerOnBeforeSubmit(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	calls := 0
	h.m.OnBeforeSubmit = func() {
		calls++
		assert.Equal(t, 0, h.api.Submitted())
	}
	h.m.EndFrame()
	assert.Equal(t, 0, calls)

	require.True(t, h.m.PopulateFrame())
	h.m.EndFrame()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, h.api.Submitted())
}

func TestManagerNotReady(t *testing.T) {
	h := newHarness(t, inlineConfig())

	assert.False(t, h.m.PopulateFrame())
	h.m.EndFrame()
	assert.False(t, h.m.Initialized())

	require.NoError(t, h.renderer.Create())
	h.m.EndFrame()
	assert.False(t, h.m.Initialized())

	h.renderer.Start()
	h.tracker.running = false
	h.m.EndFrame()
	assert.False(t, h.m.Initialized())

	h.tracker.running = true
	h.m.EndFrame()
	assert.True(t, h.m.Initialized())
	assert.True(t, h.m.Ready())

	h.renderer.Pause()
	assert.False(t, h.m.Ready())
	assert.NoError(t, h.m.Update())
	assert.Equal(t, 2, h.m.Pending())
	assert.False(t, h.m.PopulateFrame())
}

func TestManagerExternalSurface(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	c := NewContentOverlay("video", ContentOverlayInfo{
		ExternalSurface:     true,
		ExternalSurfaceSize: native.Resolution{X: 1280, Y: 720},
		Dynamic:             true,
		Projection:          true,
	})
	var surfaces []native.SurfaceHandle
	c.OnSurfaceCreated = func(s native.SurfaceHandle) { surfaces = append(surfaces, s) }

	err := c.UpdateExternalSurface(h.m, []mgl32.Mat4{mgl32.Ident4()}, []native.Eye{native.EyeLeft}, 0, 0)
	assert.True(t, errors.Is(err, ErrorNotReady{}))

	require.NoError(t, h.m.Add(c))
	require.Len(t, surfaces, 1)
	assert.NotZero(t, surfaces[0])
	assert.Equal(t, surfaces[0], c.Surface())

	sc, ok := h.api.Swapchain(c.Swapchain())
	require.True(t, ok)
	spec, ok := h.api.BufferSpec(sc.Spec)
	require.True(t, ok)
	assert.Equal(t, native.SurfaceFlagSynchronous|native.SurfaceFlagUseTimestamps, spec.SurfaceFlags)

	require.NoError(t, h.m.Update())
	require.True(t, h.m.PopulateFrame())
	h.m.EndFrame()
	assert.Len(t, surfaces, 1)

	poses := []mgl32.Mat4{mgl32.Translate3D(-0.03, 0, 0), mgl32.Translate3D(0.03, 0, 0)}
	eyes := []native.Eye{native.EyeLeft, native.EyeRight}
	require.NoError(t, c.UpdateExternalSurface(h.m, poses, eyes, 100, 7))
	sc, _ = h.api.Swapchain(c.Swapchain())
	assert.Equal(t, 1, sc.ExternalUpdates)
	assert.Equal(t, int32(7), sc.LastFrameIndex)
	assert.InDelta(t, 0.03, sc.LastTransforms[1].Position.X(), 1e-6)

	assert.Error(t, c.UpdateExternalSurface(h.m, poses, eyes[:1], 100, 8))

	h.m.Remove(c)
	assert.Zero(t, c.Surface())
	require.NoError(t, h.m.Add(c))
	assert.Len(t, surfaces, 2)
}

func TestManagerExternalSurfaceUnavailable(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	c := NewContentOverlay("static", staticInfo(h, 0))
	require.NoError(t, h.m.Add(c))
	err := c.UpdateExternalSurface(h.m, nil, nil, 0, 0)
	assert.Error(t, err)
}

func TestManagerFocusPlane(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	c := NewContentOverlay("c", staticInfo(h, 0))
	require.NoError(t, h.m.Add(c))

	// the default plane faces the viewer at the configured distance
	require.True(t, h.m.PopulateFrame())
	h.m.EndFrame()
	assert.Len(t, h.api.CallsOf("ViewportSetFocusPlane"), 2)

	v, ok := h.api.Viewport(h.m.Displays()[0].Viewports()[0].Handle())
	require.True(t, ok)
	assert.True(t, v.FocusSet)
	assert.Equal(t, mgl32.Vec3{0, 0, -DefaultFocusDistance}, v.FocusPoint)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, v.FocusNormal)
	v, ok = h.api.Viewport(c.Viewports()[0].Handle())
	require.True(t, ok)
	assert.False(t, v.FocusSet)

	h.m.SetFocusPlane(mgl32.Vec3{0, 0, -3}, mgl32.Vec3{0, 0, 2})
	require.True(t, h.m.PopulateFrame())
	h.m.EndFrame()
	assert.Len(t, h.api.CallsOf("ViewportSetFocusPlane"), 4)
	v, _ = h.api.Viewport(h.m.Displays()[1].Viewports()[0].Handle())
	assert.Equal(t, mgl32.Vec3{0, 0, -3}, v.FocusPoint)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, v.FocusNormal)

	h.m.ResetFocusPlane()
	point, normal := h.m.FocusPlane()
	assert.Equal(t, mgl32.Vec3{0, 0, -DefaultFocusDistance}, point)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, normal)
}

func TestManagerFocusDistance(t *testing.T) {
	config := inlineConfig()
	config.FocusDistance = 2.5
	h := newHarness(t, config)
	h.start(t)

	require.True(t, h.m.PopulateFrame())
	h.m.EndFrame()
	v, ok := h.api.Viewport(h.m.Displays()[0].Viewports()[0].Handle())
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{0, 0, -2.5}, v.FocusPoint)
}

func TestManagerMultiview(t *testing.T) {
	config := inlineConfig()
	config.Multiview = true
	h := newHarness(t, config)
	require.Len(t, h.m.Displays(), 1)
	h.start(t)

	d := h.m.Displays()[0]
	assert.Equal(t, "display", d.Name())
	assert.True(t, d.Ready())
	assert.Equal(t, 3, d.TextureCount())

	sc, ok := h.api.Swapchain(d.Swapchain())
	require.True(t, ok)
	assert.Len(t, sc.Buffers, 3)
	spec, ok := h.api.BufferSpec(sc.Spec)
	require.True(t, ok)
	assert.Equal(t, int32(2), spec.MultiviewLayers)

	vs := d.Viewports()
	require.Len(t, vs, 2)
	for i, v := range vs {
		nv, ok := h.api.Viewport(v.Handle())
		require.True(t, ok)
		assert.Equal(t, int32(i), nv.MultiviewLayer)
		assert.Equal(t, native.Eye(i), nv.Eye)
	}

	require.True(t, h.m.PopulateFrame())
	h.m.EndFrame()
	assert.Equal(t, 1, h.api.Submitted())

	h.m.Remove(d)
	assert.Equal(t, 3, h.textures.Destroyed())
	assert.False(t, d.Ready())
}

func TestManagerMultiviewGating(t *testing.T) {
	config := DefaultConfig()
	config.Multiview = true
	textures := newFakeAllocator()
	textures.block = make(chan struct{})
	h := newHarnessWith(t, config, textures)
	h.start(t)

	d := h.m.Displays()[0]
	assert.Equal(t, StateAllocated, d.State())
	assert.False(t, d.Ready())
	assert.False(t, h.m.PopulateFrame())

	// the texture set is not read while the render thread owns it
	assert.Equal(t, 0, d.TextureCount())
	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(b), "\"Textures\":0,")

	close(textures.block)
	h.thread.Flush()
	assert.True(t, d.Ready())
	assert.Equal(t, 3, d.TextureCount())
	b, err = json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(b), "\"Textures\":3,")
	require.True(t, h.m.PopulateFrame())
	h.m.EndFrame()
	h.thread.Flush()
	assert.Equal(t, 1, h.api.Submitted())
}

func TestManagerMultiThreaded(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.start(t)
	require.True(t, h.thread.MultiThreaded())

	c := NewContentOverlay("c", dynamicInfo(h, 0))
	require.NoError(t, h.m.Add(c))

	const frames = 10
	for i := 0; i < frames; i++ {
		require.NoError(t, h.m.Tick())
	}
	h.thread.Flush()
	assert.Equal(t, frames, h.api.Submitted())
	assert.Equal(t, FrameStats{Acquired: frames, Submitted: frames}, h.m.Stats())

	displayTime, period := h.m.DisplayTime()
	assert.Equal(t, uint64(frames)*period, displayTime)
}

func TestManagerDestroy(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)

	c := NewContentOverlay("c", dynamicInfo(h, 0))
	require.NoError(t, h.m.Add(c))
	pending := NewContentOverlay("pending", staticInfo(h, 1))
	h.tracker.running = false
	require.NoError(t, h.m.Add(pending))

	h.m.Destroy()
	assert.Equal(t, 0, h.api.Live())
	assert.Equal(t, StateDestroyed, c.State())
	assert.Equal(t, StateDestroyed, pending.State())
	assert.Equal(t, 9, h.textures.Destroyed())
	assert.Panics(t, func() { h.m.Update() })
}

func TestManagerJSON(t *testing.T) {
	h := newHarness(t, inlineConfig())
	h.start(t)
	require.NoError(t, h.m.Add(NewContentOverlay("c", dynamicInfo(h, 0))))
	require.True(t, h.m.PopulateFrame())

	b, err := json.Marshal(h.m)
	require.NoError(t, err)
	assert.True(t, json.Valid(b))
	assert.Contains(t, string(b), "display_Left")
	assert.Contains(t, string(b), "\"WorkingBuffers\"")
}
