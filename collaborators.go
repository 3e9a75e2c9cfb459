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
	"github.com/go-gl/mathgl/mgl32"

	"goarrg.com/xr/compositor/native"
)

/*
Tracker is the source of head tracking and session state. It is only called from
the main goroutine.
*/
type Tracker interface {
	SessionRunning() bool
	// HeadPose is the head in world space.
	HeadPose() mgl32.Mat4
	// EyeFromHead is the eye relative to the head.
	EyeFromHead(eye native.Eye) mgl32.Mat4
	EyeFov(eye native.Eye) native.Fov4f
	DisplayResolution() native.Resolution
	// WorldOffset is applied to world locked content, identity when the
	// tracking origin was never recentered.
	WorldOffset() mgl32.Mat4
	// PresentTime is the predicted display time of the frame being built, in nanoseconds.
	PresentTime() uint64
}

type Texture interface {
	NativePtr() native.BufferHandle
	Size() native.Resolution
}

type RenderTarget interface {
	Texture
	Destroyer
}

type TextureAllocator interface {
	NewRenderTarget(name string, size native.Resolution, format native.TextureFormat) (RenderTarget, error)
	// NewDisplayTextures is only called from the render thread.
	NewDisplayTextures(count int, size native.Resolution, layers int32) ([]RenderTarget, error)
}

// ProtectedSession is the secure decode path required by protected content.
type ProtectedSession interface {
	Start() error
	Stop() error
}
