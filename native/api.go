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

package native

// API is the native compositor. Every call except the Rendering* family
// takes the rendering handle returned by RenderingCreate as its first argument.
type API interface {
	RenderingCreate() (Handle, Result)
	RenderingStart(rendering Handle) Result
	RenderingPause(rendering Handle) Result
	RenderingResume(rendering Handle) Result
	RenderingStop(rendering Handle) Result
	RenderingDestroy(rendering Handle) Result

	BufferSpecCreate(rendering Handle) (Handle, Result)
	BufferSpecDestroy(rendering, spec Handle) Result
	BufferSpecSetSize(rendering, spec Handle, size Resolution) Result
	BufferSpecSetTextureFormat(rendering, spec Handle, format TextureFormat) Result
	BufferSpecSetDepthFormat(rendering, spec Handle, format TextureFormat) Result
	BufferSpecSetSamples(rendering, spec Handle, samples int32) Result
	BufferSpecSetExternalSurfaceFlag(rendering, spec Handle, flags SurfaceFlags) Result
	BufferSpecSetCreateFlags(rendering, spec Handle, flags SwapchainCreateFlags) Result
	BufferSpecSetMultiviewLayers(rendering, spec Handle, layers int32) Result

	SwapchainCreate(rendering, spec Handle) (Handle, Result)
	SwapchainCreateWithSurface(rendering, spec Handle) (Handle, SurfaceHandle, Result)
	SwapchainGetRecommendedBufferCount(rendering, swapchain Handle) (int32, Result)
	SwapchainSetBuffers(rendering, swapchain Handle, buffers []BufferHandle) Result
	SwapchainDestroy(rendering, swapchain Handle) Result
	// SwapchainUpdateExternalSurface supplies per eye transforms for content an external producer already rendered.
	SwapchainUpdateExternalSurface(rendering, swapchain Handle, transforms []Transform, eyes []Eye, presentTime int64, frameIndex int32) Result

	ViewportCreate(rendering Handle) (Handle, Result)
	ViewportDestroy(rendering, viewport Handle) Result
	ViewportSetSourceUV(rendering, viewport Handle, uv Rectf) Result
	ViewportSetTargetEye(rendering, viewport Handle, eye Eye) Result
	ViewportSetSwapchain(rendering, viewport, swapchain Handle) Result
	ViewportSetType(rendering, viewport Handle, t ViewportType) Result
	ViewportSetTransform(rendering, viewport Handle, space ReferenceSpace, transform Transform) Result
	ViewportSetQuadSize(rendering, viewport Handle, w, h float32) Result
	ViewportSetSourceFov(rendering, viewport Handle, fov Fov4f) Result
	ViewportSetMultiviewLayer(rendering, viewport Handle, layer int32) Result
	ViewportSetFocusPlane(rendering, viewport Handle, space ReferenceSpace, point, normal Vector3f) Result

	// FrameAcquire acquires a frame and, in the same call, one working buffer
	// per swapchain written to buffers[i] for swapchains[i].
	FrameAcquire(rendering Handle, swapchains []Handle, buffers []BufferHandle) (Handle, Result)
	FrameSetViewport(rendering, frame Handle, index int32, viewport Handle) Result
	FrameGetViewportCount(rendering, frame Handle) (int32, Result)
	FrameSetPresentTime(rendering, frame Handle, presentTime uint64) Result
	FrameSubmit(rendering, frame Handle) Result
	// FrameWait blocks until the previous frame is presented.
	FrameWait(rendering Handle) (displayTime, displayPeriod uint64, r Result)
}
