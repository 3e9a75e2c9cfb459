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

package sim

import (
	"slices"

	"goarrg.com/xr/compositor/native"
)

func (a *API) RenderingCreate() (native.Handle, native.Result) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if r := a.record(Call{Op: "RenderingCreate"}); r != native.Success {
		return 0, r
	}
	return a.alloc(kindRendering), native.Success
}

func (a *API) renderingOp(op string, rendering native.Handle, f func()) native.Result {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if r := a.record(Call{Op: op, Target: rendering}); r != native.Success {
		return r
	}
	if !a.is(rendering, kindRendering) {
		return native.ErrorInvalidHandle
	}
	if f != nil {
		f()
	}
	return native.Success
}

func (a *API) RenderingStart(rendering native.Handle) native.Result {
	return a.renderingOp("RenderingStart", rendering, func() { a.running = true })
}

func (a *API) RenderingPause(rendering native.Handle) native.Result {
	return a.renderingOp("RenderingPause", rendering, func() { a.running = false })
}

func (a *API) RenderingResume(rendering native.Handle) native.Result {
	return a.renderingOp("RenderingResume", rendering, func() { a.running = true })
}

func (a *API) RenderingStop(rendering native.Handle) native.Result {
	return a.renderingOp("RenderingStop", rendering, func() { a.running = false })
}

func (a *API) RenderingDestroy(rendering native.Handle) native.Result {
	return a.renderingOp("RenderingDestroy", rendering, func() {
		a.running = false
		a.free(rendering)
	})
}

func (a *API) Running() bool {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.running
}

func (a *API) BufferSpecCreate(rendering native.Handle) (native.Handle, native.Result) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if r := a.record(Call{Op: "BufferSpecCreate", Target: rendering}); r != native.Success {
		return 0, r
	}
	if !a.is(rendering, kindRendering) {
		return 0, native.ErrorInvalidHandle
	}
	h := a.alloc(kindBufferSpec)
	a.specs[h] = &BufferSpec{Samples: 1, MultiviewLayers: 1}
	return h, native.Success
}

func (a *API) specOp(op string, rendering, spec native.Handle, f func(*BufferSpec)) native.Result {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if r := a.record(Call{Op: op, Target: spec}); r != native.Success {
		return r
	}
	s, ok := a.specs[spec]
	if !ok || !a.is(rendering, kindRendering) {
		return native.ErrorInvalidHandle
	}
	f(s)
	return native.Success
}

func (a *API) BufferSpecDestroy(rendering, spec native.Handle) native.Result {
	return a.specOp("BufferSpecDestroy", rendering, spec, func(*BufferSpec) {
		delete(a.specs, spec)
		a.free(spec)
	})
}

func (a *API) BufferSpecSetSize(rendering, spec native.Handle, size native.Resolution) native.Result {
	if size.X <= 0 || size.Y <= 0 {
		a.mtx.Lock()
		defer a.mtx.Unlock()
		a.record(Call{Op: "BufferSpecSetSize", Target: spec})
		return native.ErrorInvalidArgument
	}
	return a.specOp("BufferSpecSetSize", rendering, spec, func(s *BufferSpec) { s.Size = size })
}

func (a *API) BufferSpecSetTextureFormat(rendering, spec native.Handle, format native.TextureFormat) native.Result {
	return a.specOp("BufferSpecSetTextureFormat", rendering, spec, func(s *BufferSpec) { s.ColorFormat = format })
}

func (a *API) BufferSpecSetDepthFormat(rendering, spec native.Handle, format native.TextureFormat) native.Result {
	return a.specOp("BufferSpecSetDepthFormat", rendering, spec, func(s *BufferSpec) { s.DepthFormat = format })
}

func (a *API) BufferSpecSetSamples(rendering, spec native.Handle, samples int32) native.Result {
	return a.specOp("BufferSpecSetSamples", rendering, spec, func(s *BufferSpec) { s.Samples = samples })
}

func (a *API) BufferSpecSetExternalSurfaceFlag(rendering, spec native.Handle, flags native.SurfaceFlags) native.Result {
	return a.specOp("BufferSpecSetExternalSurfaceFlag", rendering, spec, func(s *BufferSpec) { s.SurfaceFlags = flags })
}

func (a *API) BufferSpecSetCreateFlags(rendering, spec native.Handle, flags native.SwapchainCreateFlags) native.Result {
	return a.specOp("BufferSpecSetCreateFlags", rendering, spec, func(s *BufferSpec) { s.CreateFlags = flags })
}

func (a *API) BufferSpecSetMultiviewLayers(rendering, spec native.Handle, layers int32) native.Result {
	return a.specOp("BufferSpecSetMultiviewLayers", rendering, spec, func(s *BufferSpec) { s.MultiviewLayers = layers })
}

func (a *API) createSwapchain(op string, rendering, spec native.Handle, withSurface bool) (native.Handle, native.SurfaceHandle, native.Result) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if r := a.record(Call{Op: op, Target: spec}); r != native.Success {
		return 0, 0, r
	}
	if _, ok := a.specs[spec]; !ok || !a.is(rendering, kindRendering) {
		return 0, 0, native.ErrorInvalidHandle
	}
	h := a.alloc(kindSwapchain)
	s := &Swapchain{Spec: spec, LastFrameIndex: -1}
	if withSurface {
		s.Surface = native.SurfaceHandle(0xA0000000 | uintptr(h))
	}
	a.chains[h] = s
	return h, s.Surface, native.Success
}

func (a *API) SwapchainCreate(rendering, spec native.Handle) (native.Handle, native.Result) {
	h, _, r := a.createSwapchain("SwapchainCreate", rendering, spec, false)
	return h, r
}

func (a *API) SwapchainCreateWithSurface(rendering, spec native.Handle) (native.Handle, native.SurfaceHandle, native.Result) {
	return a.createSwapchain("SwapchainCreateWithSurface", rendering, spec, true)
}

func (a *API) swapchainOp(op string, rendering, swapchain native.Handle, f func(*Swapchain)) native.Result {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if r := a.record(Call{Op: op, Target: swapchain}); r != native.Success {
		return r
	}
	s, ok := a.chains[swapchain]
	if !ok || !a.is(rendering, kindRendering) {
		return native.ErrorInvalidHandle
	}
	f(s)
	return native.Success
}

func (a *API) SwapchainGetRecommendedBufferCount(rendering, swapchain native.Handle) (int32, native.Result) {
	count := int32(0)
	r := a.swapchainOp("SwapchainGetRecommendedBufferCount", rendering, swapchain, func(*Swapchain) {
		count = a.RecommendedBufferCount
	})
	return count, r
}

func (a *API) SwapchainSetBuffers(rendering, swapchain native.Handle, buffers []native.BufferHandle) native.Result {
	if len(buffers) == 0 || slices.Contains(buffers, 0) {
		a.mtx.Lock()
		defer a.mtx.Unlock()
		a.record(Call{Op: "SwapchainSetBuffers", Target: swapchain})
		return native.ErrorInvalidArgument
	}
	return a.swapchainOp("SwapchainSetBuffers", rendering, swapchain, func(s *Swapchain) {
		s.Buffers = slices.Clone(buffers)
	})
}

func (a *API) SwapchainDestroy(rendering, swapchain native.Handle) native.Result {
	return a.swapchainOp("SwapchainDestroy", rendering, swapchain, func(*Swapchain) {
		delete(a.chains, swapchain)
		a.free(swapchain)
	})
}

func (a *API) SwapchainUpdateExternalSurface(rendering, swapchain native.Handle, transforms []native.Transform, eyes []native.Eye, _ int64, frameIndex int32) native.Result {
	if len(transforms) != len(eyes) {
		a.mtx.Lock()
		defer a.mtx.Unlock()
		a.record(Call{Op: "SwapchainUpdateExternalSurface", Target: swapchain, Index: frameIndex})
		return native.ErrorInvalidArgument
	}
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if r := a.record(Call{Op: "SwapchainUpdateExternalSurface", Target: swapchain, Index: frameIndex}); r != native.Success {
		return r
	}
	s, ok := a.chains[swapchain]
	if !ok || !a.is(rendering, kindRendering) {
		return native.ErrorInvalidHandle
	}
	if s.Surface == 0 {
		return native.ErrorUnsupported
	}
	s.ExternalUpdates++
	s.LastFrameIndex = frameIndex
	s.LastTransforms = slices.Clone(transforms)
	return native.Success
}

func (a *API) ViewportCreate(rendering native.Handle) (native.Handle, native.Result) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if r := a.record(Call{Op: "ViewportCreate", Target: rendering}); r != native.Success {
		return 0, r
	}
	if !a.is(rendering, kindRendering) {
		return 0, native.ErrorInvalidHandle
	}
	h := a.alloc(kindViewport)
	a.views[h] = &Viewport{SourceUV: native.FullRect, Transform: native.IdentityTransform(), MultiviewLayer: -1}
	return h, native.Success
}

func (a *API) viewportOp(op string, rendering, viewport native.Handle, f func(*Viewport) native.Result) native.Result {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if r := a.record(Call{Op: op, Target: viewport}); r != native.Success {
		return r
	}
	v, ok := a.views[viewport]
	if !ok || !a.is(rendering, kindRendering) {
		return native.ErrorInvalidHandle
	}
	return f(v)
}

func (a *API) ViewportDestroy(rendering, viewport native.Handle) native.Result {
	return a.viewportOp("ViewportDestroy", rendering, viewport, func(*Viewport) native.Result {
		delete(a.views, viewport)
		a.free(viewport)
		return native.Success
	})
}

func (a *API) ViewportSetSourceUV(rendering, viewport native.Handle, uv native.Rectf) native.Result {
	return a.viewportOp("ViewportSetSourceUV", rendering, viewport, func(v *Viewport) native.Result {
		v.SourceUV = uv
		return native.Success
	})
}

func (a *API) ViewportSetTargetEye(rendering, viewport native.Handle, eye native.Eye) native.Result {
	return a.viewportOp("ViewportSetTargetEye", rendering, viewport, func(v *Viewport) native.Result {
		if eye != native.EyeLeft && eye != native.EyeRight {
			return native.ErrorInvalidArgument
		}
		v.Eye = eye
		return native.Success
	})
}

func (a *API) ViewportSetSwapchain(rendering, viewport, swapchain native.Handle) native.Result {
	return a.viewportOp("ViewportSetSwapchain", rendering, viewport, func(v *Viewport) native.Result {
		if _, ok := a.chains[swapchain]; !ok {
			return native.ErrorInvalidHandle
		}
		v.Swapchain = swapchain
		return native.Success
	})
}

func (a *API) ViewportSetType(rendering, viewport native.Handle, t native.ViewportType) native.Result {
	return a.viewportOp("ViewportSetType", rendering, viewport, func(v *Viewport) native.Result {
		v.Type = t
		return native.Success
	})
}

func (a *API) ViewportSetTransform(rendering, viewport native.Handle, space native.ReferenceSpace, transform native.Transform) native.Result {
	return a.viewportOp("ViewportSetTransform", rendering, viewport, func(v *Viewport) native.Result {
		v.Space = space
		v.Transform = transform
		return native.Success
	})
}

func (a *API) ViewportSetQuadSize(rendering, viewport native.Handle, w, h float32) native.Result {
	return a.viewportOp("ViewportSetQuadSize", rendering, viewport, func(v *Viewport) native.Result {
		if v.Type != native.ViewportQuad {
			return native.ErrorUnsupported
		}
		v.QuadW, v.QuadH = w, h
		return native.Success
	})
}

func (a *API) ViewportSetSourceFov(rendering, viewport native.Handle, fov native.Fov4f) native.Result {
	return a.viewportOp("ViewportSetSourceFov", rendering, viewport, func(v *Viewport) native.Result {
		v.Fov = fov
		return native.Success
	})
}

func (a *API) ViewportSetMultiviewLayer(rendering, viewport native.Handle, layer int32) native.Result {
	return a.viewportOp("ViewportSetMultiviewLayer", rendering, viewport, func(v *Viewport) native.Result {
		if layer < 0 {
			return native.ErrorInvalidArgument
		}
		v.MultiviewLayer = layer
		return native.Success
	})
}

func (a *API) ViewportSetFocusPlane(rendering, viewport native.Handle, _ native.ReferenceSpace, point, normal native.Vector3f) native.Result {
	return a.viewportOp("ViewportSetFocusPlane", rendering, viewport, func(v *Viewport) native.Result {
		v.FocusSet = true
		v.FocusPoint, v.FocusNormal = point, normal
		return native.Success
	})
}

func (a *API) FrameAcquire(rendering native.Handle, swapchains []native.Handle, buffers []native.BufferHandle) (native.Handle, native.Result) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if r := a.record(Call{Op: "FrameAcquire", Target: rendering, Swapchains: slices.Clone(swapchains)}); r != native.Success {
		return 0, r
	}
	if !a.is(rendering, kindRendering) {
		return 0, native.ErrorInvalidHandle
	}
	if len(buffers) < len(swapchains) {
		return 0, native.ErrorInvalidArgument
	}
	for i, h := range swapchains {
		s, ok := a.chains[h]
		if !ok {
			return 0, native.ErrorInvalidHandle
		}
		if len(s.Buffers) == 0 {
			// external producers own the buffers of surface swapchains
			if s.Surface != 0 {
				buffers[i] = native.BufferHandle(s.Surface)
				s.Acquired++
				continue
			}
			return 0, native.ErrorNotReady
		}
		buffers[i] = s.Buffers[s.Acquired%len(s.Buffers)]
		s.Acquired++
	}
	h := a.alloc(kindFrame)
	a.frames[h] = &Frame{Viewports: map[int32]native.Handle{}}
	return h, native.Success
}

func (a *API) frameOp(op string, rendering, frame native.Handle, index int32, f func(*Frame) native.Result) native.Result {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if r := a.record(Call{Op: op, Target: frame, Index: index}); r != native.Success {
		return r
	}
	fr, ok := a.frames[frame]
	if !ok || !a.is(rendering, kindRendering) {
		return native.ErrorInvalidHandle
	}
	return f(fr)
}

func (a *API) FrameSetViewport(rendering, frame native.Handle, index int32, viewport native.Handle) native.Result {
	return a.frameOp("FrameSetViewport", rendering, frame, index, func(fr *Frame) native.Result {
		if _, ok := a.views[viewport]; !ok {
			return native.ErrorInvalidHandle
		}
		if index < 0 {
			return native.ErrorInvalidArgument
		}
		fr.Viewports[index] = viewport
		return native.Success
	})
}

func (a *API) FrameGetViewportCount(rendering, frame native.Handle) (int32, native.Result) {
	count := int32(0)
	r := a.frameOp("FrameGetViewportCount", rendering, frame, -1, func(fr *Frame) native.Result {
		count = int32(len(fr.Viewports))
		return native.Success
	})
	return count, r
}

func (a *API) FrameSetPresentTime(rendering, frame native.Handle, presentTime uint64) native.Result {
	return a.frameOp("FrameSetPresentTime", rendering, frame, -1, func(fr *Frame) native.Result {
		fr.PresentTime = presentTime
		return native.Success
	})
}

func (a *API) FrameSubmit(rendering, frame native.Handle) native.Result {
	return a.frameOp("FrameSubmit", rendering, frame, -1, func(*Frame) native.Result {
		delete(a.frames, frame)
		a.free(frame)
		a.submitted++
		return native.Success
	})
}

func (a *API) FrameWait(rendering native.Handle) (uint64, uint64, native.Result) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if r := a.record(Call{Op: "FrameWait", Target: rendering}); r != native.Success {
		return 0, 0, r
	}
	if !a.is(rendering, kindRendering) {
		return 0, 0, native.ErrorInvalidHandle
	}
	a.displayAt += a.DisplayPeriod
	return a.displayAt, a.DisplayPeriod, native.Success
}
