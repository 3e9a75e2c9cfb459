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

/*
Package native describes the surface of the native glasses compositor.
Every call is synchronous, returns a Result and trades in opaque 64 bit handles.
*/
package native

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// Handle is an opaque native object, 0 is never a valid handle.
type Handle uint64

func (h Handle) String() string {
	return fmt.Sprintf("0x%016X", uint64(h))
}

// BufferHandle is the native pointer of a texture backing a swapchain buffer.
type BufferHandle uintptr

func (h BufferHandle) String() string {
	return fmt.Sprintf("0x%X", uintptr(h))
}

// SurfaceHandle is an OS level surface created alongside a swapchain for external producers.
type SurfaceHandle uintptr

type Result int32

const (
	Success Result = iota
	ErrorFailure
	ErrorInvalidArgument
	ErrorInvalidHandle
	ErrorNotReady
	ErrorUnsupported
)

func (r Result) String() string {
	switch r {
	case Success:
		return "Success"
	case ErrorFailure:
		return "ErrorFailure"
	case ErrorInvalidArgument:
		return "ErrorInvalidArgument"
	case ErrorInvalidHandle:
		return "ErrorInvalidHandle"
	case ErrorNotReady:
		return "ErrorNotReady"
	case ErrorUnsupported:
		return "ErrorUnsupported"
	}
	return fmt.Sprintf("Result(%d)", int32(r))
}

// ParseResult is the inverse of Result.String.
func ParseResult(s string) (Result, bool) {
	for r := Success; r <= ErrorUnsupported; r++ {
		if strings.EqualFold(r.String(), s) {
			return r, true
		}
	}
	return 0, false
}

type Eye int32

const (
	EyeLeft Eye = iota
	EyeRight
)

func (e Eye) String() string {
	switch e {
	case EyeLeft:
		return "Left"
	case EyeRight:
		return "Right"
	}
	return fmt.Sprintf("Eye(%d)", int32(e))
}

type ViewportType int32

const (
	ViewportQuad ViewportType = iota
	ViewportProjection
)

func (t ViewportType) String() string {
	switch t {
	case ViewportQuad:
		return "Quad"
	case ViewportProjection:
		return "Projection"
	}
	return fmt.Sprintf("ViewportType(%d)", int32(t))
}

type ReferenceSpace int32

const (
	ReferenceSpaceGlobal ReferenceSpace = iota
	ReferenceSpaceView
)

func (s ReferenceSpace) String() string {
	switch s {
	case ReferenceSpaceGlobal:
		return "Global"
	case ReferenceSpaceView:
		return "View"
	}
	return fmt.Sprintf("ReferenceSpace(%d)", int32(s))
}

type TextureFormat int32

const (
	TextureFormatNone TextureFormat = iota
	TextureFormatRGBA8
	TextureFormatRGB565
	TextureFormatDepth16
	TextureFormatDepth24
	TextureFormatDepth32F
)

func (f TextureFormat) String() string {
	switch f {
	case TextureFormatNone:
		return "None"
	case TextureFormatRGBA8:
		return "RGBA8"
	case TextureFormatRGB565:
		return "RGB565"
	case TextureFormatDepth16:
		return "Depth16"
	case TextureFormatDepth24:
		return "Depth24"
	case TextureFormatDepth32F:
		return "Depth32F"
	}
	return fmt.Sprintf("TextureFormat(%d)", int32(f))
}

type SurfaceFlags int32

const (
	SurfaceFlagNone          SurfaceFlags = 0
	SurfaceFlagSynchronous   SurfaceFlags = 1 << 0
	SurfaceFlagUseTimestamps SurfaceFlags = 1 << 1
)

func (f SurfaceFlags) HasBits(want SurfaceFlags) bool {
	return (f & want) == want
}

func (f SurfaceFlags) String() string {
	str := ""
	if f.HasBits(SurfaceFlagSynchronous) {
		str += "Synchronous|"
	}
	if f.HasBits(SurfaceFlagUseTimestamps) {
		str += "UseTimestamps|"
	}
	if str == "" {
		return "None"
	}
	return strings.TrimSuffix(str, "|")
}

type SwapchainCreateFlags uint64

const (
	SwapchainCreateNone           SwapchainCreateFlags = 0
	SwapchainCreateProtectTexture SwapchainCreateFlags = 1 << 0
	SwapchainCreateStaticTexture  SwapchainCreateFlags = 1 << 1
)

func (f SwapchainCreateFlags) HasBits(want SwapchainCreateFlags) bool {
	return (f & want) == want
}

func (f SwapchainCreateFlags) String() string {
	str := ""
	if f.HasBits(SwapchainCreateProtectTexture) {
		str += "ProtectTexture|"
	}
	if f.HasBits(SwapchainCreateStaticTexture) {
		str += "StaticTexture|"
	}
	if str == "" {
		return "None"
	}
	return strings.TrimSuffix(str, "|")
}

// Resolution is a texture or display size in pixels.
type Resolution struct {
	X, Y int32
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.X, r.Y)
}

type Rectf struct {
	X, Y, W, H float32
}

// FullRect covers the whole source texture.
var FullRect = Rectf{X: 0, Y: 0, W: 1, H: 1}

type Fov4f struct {
	Left, Right, Top, Bottom float32
}

type Vector3f = mgl32.Vec3

// Transform is a rigid pose: rotation followed by translation.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

func IdentityTransform() Transform {
	return Transform{Rotation: mgl32.QuatIdent()}
}

// TransformFromMat4 extracts the rigid part of m, scale is discarded.
func TransformFromMat4(m mgl32.Mat4) Transform {
	sx, sy, sz := mgl32.Extract3DScale(m)
	r := m
	if sx != 0 && sy != 0 && sz != 0 {
		r = m.Mul4(mgl32.Scale3D(1/sx, 1/sy, 1/sz))
	}
	return Transform{
		Position: m.Col(3).Vec3(),
		Rotation: mgl32.Mat4ToQuat(r).Normalize(),
	}
}

func (t Transform) Mat4() mgl32.Mat4 {
	return mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z()).Mul4(t.Rotation.Mat4())
}

func (t Transform) ApproxEqual(o Transform) bool {
	return t.Position.ApproxEqual(o.Position) && t.Rotation.OrientationEqualThreshold(o.Rotation, 1e-6)
}
