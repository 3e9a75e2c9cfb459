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
	"bytes"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"goarrg.com/xr/compositor/native"
)

/*
BufferSpec describes the native buffer allocation of an overlay. It is
immutable once the swapchain exists, except for BufferCount which is filled
in from the native recommendation right after creation.
*/
type BufferSpec struct {
	Size         native.Resolution
	ColorFormat  native.TextureFormat
	DepthFormat  native.TextureFormat
	Samples      int32
	SurfaceFlags native.SurfaceFlags
	CreateFlags  native.SwapchainCreateFlags
	BufferCount  int
}

func (s BufferSpec) String() string {
	return fmt.Sprintf("{Size: %dx%d, Color: %s, Depth: %s, Samples: %d, SurfaceFlags: %s, CreateFlags: %s, BufferCount: %d}",
		s.Size.X, s.Size.Y, s.ColorFormat, s.DepthFormat, s.Samples, s.SurfaceFlags, s.CreateFlags, s.BufferCount)
}

/*
Viewport places one eye's view of an overlay in the composited frame. Quad
viewports use QuadSize, projection viewports use Fov.
*/
type Viewport struct {
	// Index is the slot in the native frame, -1 until assigned.
	Index     int
	handle    native.Handle
	Swapchain native.Handle

	SourceUV  native.Rectf
	TargetEye native.Eye
	Type      native.ViewportType
	Space     native.ReferenceSpace
	Pose      native.Transform
	QuadSize  mgl32.Vec2
	Fov       native.Fov4f
	// TextureArraySlice is -1 unless the swapchain is a texture array.
	TextureArraySlice int32
	ExternalSurface   bool
}

func newViewport(eye native.Eye, t native.ViewportType) Viewport {
	return Viewport{
		Index:             -1,
		SourceUV:          native.FullRect,
		TargetEye:         eye,
		Type:              t,
		Pose:              native.IdentityTransform(),
		TextureArraySlice: -1,
	}
}

func (v *Viewport) Handle() native.Handle {
	return v.handle
}

func (v *Viewport) MarshalJSON() ([]byte, error) {
	buff := bytes.Buffer{}
	buff.WriteString("{")

	buff.WriteString(fmt.Sprintf("\"Index\": %d,", v.Index))
	buff.WriteString(fmt.Sprintf("\"Handle\": %q,", toHex(v.handle)))
	buff.WriteString(fmt.Sprintf("\"Swapchain\": %q,", toHex(v.Swapchain)))
	buff.WriteString(fmt.Sprintf("\"Eye\": %q,", v.TargetEye.String()))
	buff.WriteString(fmt.Sprintf("\"Type\": %q,", v.Type.String()))
	buff.WriteString(fmt.Sprintf("\"Space\": %q,", v.Space.String()))
	buff.WriteString(fmt.Sprintf("\"SourceUV\": %s,", jsonString(v.SourceUV)))
	buff.WriteString(fmt.Sprintf("\"Position\": %s,", jsonString(v.Pose.Position)))
	if v.Type == native.ViewportQuad {
		buff.WriteString(fmt.Sprintf("\"QuadSize\": [%g, %g],", v.QuadSize.X(), v.QuadSize.Y()))
	} else {
		buff.WriteString(fmt.Sprintf("\"Fov\": %s,", jsonString(v.Fov)))
		buff.WriteString(fmt.Sprintf("\"TextureArraySlice\": %d,", v.TextureArraySlice))
	}
	buff.WriteString(fmt.Sprintf("\"ExternalSurface\": %t,", v.ExternalSurface))

	buff.Truncate(buff.Len() - 1)
	buff.WriteString("}")
	return buff.Bytes(), nil
}
