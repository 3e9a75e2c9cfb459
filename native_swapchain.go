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
	"sync/atomic"

	"goarrg.com/debug"

	"goarrg.com/xr/compositor/native"
)

/*
NativeSwapchain binds native.API to one rendering handle. Create calls return
errors since an overlay cannot work without the object, everything else is
logged and skipped.
*/
type NativeSwapchain struct {
	api       native.API
	rendering native.Handle

	displayTime   atomic.Uint64
	displayPeriod atomic.Uint64
}

func newNativeSwapchain(api native.API, rendering native.Handle) *NativeSwapchain {
	return &NativeSwapchain{api: api, rendering: rendering}
}

func (s *NativeSwapchain) Rendering() native.Handle {
	return s.rendering
}

func (s *NativeSwapchain) CreateBufferSpec(spec BufferSpec, textureArray bool) (native.Handle, error) {
	h, ret := s.api.BufferSpecCreate(s.rendering)
	if err := mustCheck("BufferSpecCreate", ret); err != nil {
		return 0, err
	}

	err := func() error {
		if err := mustCheck("BufferSpecSetSize", s.api.BufferSpecSetSize(s.rendering, h, spec.Size)); err != nil {
			return err
		}
		if err := mustCheck("BufferSpecSetTextureFormat", s.api.BufferSpecSetTextureFormat(s.rendering, h, spec.ColorFormat)); err != nil {
			return err
		}
		if spec.DepthFormat != native.TextureFormatNone {
			if err := mustCheck("BufferSpecSetDepthFormat", s.api.BufferSpecSetDepthFormat(s.rendering, h, spec.DepthFormat)); err != nil {
				return err
			}
		}
		if err := mustCheck("BufferSpecSetSamples", s.api.BufferSpecSetSamples(s.rendering, h, spec.Samples)); err != nil {
			return err
		}
		// older runtimes reject the surface flag but still composite the surface
		if ret := s.api.BufferSpecSetExternalSurfaceFlag(s.rendering, h, spec.SurfaceFlags); ret != native.Success {
			instance.logger.WPrintf("BufferSpecSetExternalSurfaceFlag(%s) failed: %s", spec.SurfaceFlags, ret)
		}
		if err := mustCheck("BufferSpecSetCreateFlags", s.api.BufferSpecSetCreateFlags(s.rendering, h, spec.CreateFlags)); err != nil {
			return err
		}
		if textureArray {
			if err := mustCheck("BufferSpecSetMultiviewLayers", s.api.BufferSpecSetMultiviewLayers(s.rendering, h, 2)); err != nil {
				return err
			}
		}
		return nil
	}()
	if err != nil {
		s.DestroyBufferSpec(h)
		return 0, err
	}
	return h, nil
}

func (s *NativeSwapchain) DestroyBufferSpec(spec native.Handle) {
	if spec == 0 {
		return
	}
	check("BufferSpecDestroy", s.api.BufferSpecDestroy(s.rendering, spec))
}

func (s *NativeSwapchain) CreateSwapchain(spec native.Handle) (native.Handle, error) {
	h, ret := s.api.SwapchainCreate(s.rendering, spec)
	if err := mustCheck("SwapchainCreate", ret); err != nil {
		return 0, err
	}
	return h, nil
}

func (s *NativeSwapchain) CreateSwapchainWithSurface(spec native.Handle) (native.Handle, native.SurfaceHandle, error) {
	h, surface, ret := s.api.SwapchainCreateWithSurface(s.rendering, spec)
	if err := mustCheck("SwapchainCreateWithSurface", ret); err != nil {
		return 0, 0, err
	}
	if surface == 0 {
		check("SwapchainDestroy", s.api.SwapchainDestroy(s.rendering, h))
		return 0, 0, ErrorSurfaceUnavailable{}
	}
	return h, surface, nil
}

func (s *NativeSwapchain) RecommendedBufferCount(swapchain native.Handle) (int, error) {
	count, ret := s.api.SwapchainGetRecommendedBufferCount(s.rendering, swapchain)
	if err := mustCheck("SwapchainGetRecommendedBufferCount", ret); err != nil {
		return 0, err
	}
	if count <= 0 {
		return 0, debug.Errorf("Invalid recommended buffer count %d for swapchain %s", count, swapchain)
	}
	return int(count), nil
}

func (s *NativeSwapchain) SetSwapchainBuffers(swapchain native.Handle, buffers []native.BufferHandle) bool {
	if len(buffers) == 0 {
		return false
	}
	return check("SwapchainSetBuffers", s.api.SwapchainSetBuffers(s.rendering, swapchain, buffers))
}

func (s *NativeSwapchain) DestroySwapchain(swapchain native.Handle) {
	if swapchain == 0 {
		return
	}
	check("SwapchainDestroy", s.api.SwapchainDestroy(s.rendering, swapchain))
}

func (s *NativeSwapchain) UpdateExternalSurface(swapchain native.Handle, transforms []native.Transform, eyes []native.Eye, timestamp int64, frameIndex int32) bool {
	return check("SwapchainUpdateExternalSurface",
		s.api.SwapchainUpdateExternalSurface(s.rendering, swapchain, transforms, eyes, timestamp, frameIndex))
}

func (s *NativeSwapchain) CreateViewport() (native.Handle, error) {
	h, ret := s.api.ViewportCreate(s.rendering)
	if err := mustCheck("ViewportCreate", ret); err != nil {
		return 0, err
	}
	return h, nil
}

func (s *NativeSwapchain) DestroyViewport(viewport native.Handle) {
	if viewport == 0 {
		return
	}
	check("ViewportDestroy", s.api.ViewportDestroy(s.rendering, viewport))
}

// PopulateViewport pushes v to its native viewport.
func (s *NativeSwapchain) PopulateViewport(v *Viewport) {
	if v.handle == 0 {
		return
	}
	h := v.handle
	check("ViewportSetSourceUV", s.api.ViewportSetSourceUV(s.rendering, h, v.SourceUV))
	check("ViewportSetTargetEye", s.api.ViewportSetTargetEye(s.rendering, h, v.TargetEye))
	check("ViewportSetSwapchain", s.api.ViewportSetSwapchain(s.rendering, h, v.Swapchain))
	check("ViewportSetType", s.api.ViewportSetType(s.rendering, h, v.Type))

	if v.Type == native.ViewportQuad {
		check("ViewportSetTransform", s.api.ViewportSetTransform(s.rendering, h, v.Space, v.Pose))
		check("ViewportSetQuadSize", s.api.ViewportSetQuadSize(s.rendering, h, v.QuadSize.X(), v.QuadSize.Y()))
		return
	}

	// the producer of an external surface supplies its own poses
	if !v.ExternalSurface {
		check("ViewportSetTransform", s.api.ViewportSetTransform(s.rendering, h, v.Space, v.Pose))
	}
	check("ViewportSetSourceFov", s.api.ViewportSetSourceFov(s.rendering, h, v.Fov))
	if v.TextureArraySlice >= 0 {
		check("ViewportSetMultiviewLayer", s.api.ViewportSetMultiviewLayer(s.rendering, h, v.TextureArraySlice))
	}
}

func (s *NativeSwapchain) SetFocusPlane(v *Viewport, point, normal native.Vector3f) {
	if v.handle == 0 {
		return
	}
	check("ViewportSetFocusPlane", s.api.ViewportSetFocusPlane(s.rendering, v.handle, v.Space, point, normal))
}

func (s *NativeSwapchain) SetFrameViewport(frame native.Handle, index int, viewport native.Handle) {
	if viewport == 0 {
		return
	}
	check("FrameSetViewport", s.api.FrameSetViewport(s.rendering, frame, int32(index), viewport))
}

func (s *NativeSwapchain) FrameViewportCount(frame native.Handle) (int, bool) {
	count, ret := s.api.FrameGetViewportCount(s.rendering, frame)
	if !check("FrameGetViewportCount", ret) {
		return 0, false
	}
	return int(count), true
}

/*
AcquireFrame acquires a frame and one working buffer per swapchain in a single
native call, buffers must have the same length as swapchains.
*/
func (s *NativeSwapchain) AcquireFrame(swapchains []native.Handle, buffers []native.BufferHandle) (native.Handle, bool) {
	if len(buffers) != len(swapchains) {
		abort("AcquireFrame called with %d swapchains but %d buffers", len(swapchains), len(buffers))
	}
	clear(buffers)
	frame, ret := s.api.FrameAcquire(s.rendering, swapchains, buffers)
	if !check("FrameAcquire", ret) {
		return 0, false
	}
	return frame, true
}

func (s *NativeSwapchain) SetPresentTime(frame native.Handle, presentTime uint64) {
	if frame == 0 {
		return
	}
	check("FrameSetPresentTime", s.api.FrameSetPresentTime(s.rendering, frame, presentTime))
}

// SubmitFrame submits frame and blocks until the previous frame was presented.
func (s *NativeSwapchain) SubmitFrame(frame native.Handle) bool {
	if frame == 0 {
		return false
	}
	ret := s.api.FrameSubmit(s.rendering, frame)
	displayTime, displayPeriod, waitRet := s.api.FrameWait(s.rendering)
	if check("FrameWait", waitRet) {
		s.displayTime.Store(displayTime)
		s.displayPeriod.Store(displayPeriod)
	}
	return check("FrameSubmit", ret)
}

// DisplayTime returns the display time and period reported by the last frame wait.
func (s *NativeSwapchain) DisplayTime() (uint64, uint64) {
	return s.displayTime.Load(), s.displayPeriod.Load()
}
