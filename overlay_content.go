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
	"goarrg.com/debug"

	"goarrg.com/xr/compositor/native"
)

type LayerSide int32

const (
	LayerSideBoth LayerSide = iota
	LayerSideLeft
	LayerSideRight
)

func (s LayerSide) String() string {
	switch s {
	case LayerSideBoth:
		return "Both"
	case LayerSideLeft:
		return "Left"
	case LayerSideRight:
		return "Right"
	}
	return fmt.Sprintf("LayerSide(%d)", int32(s))
}

func (s LayerSide) eyes() []native.Eye {
	switch s {
	case LayerSideLeft:
		return []native.Eye{native.EyeLeft}
	case LayerSideRight:
		return []native.Eye{native.EyeRight}
	}
	return []native.Eye{native.EyeLeft, native.EyeRight}
}

type ContentOverlayInfo struct {
	CompositionDepth int
	// Texture is the source for static overlays and the size template for
	// dynamic ones, it is ignored for external surfaces.
	Texture             Texture
	ExternalSurface     bool
	ExternalSurfaceSize native.Resolution
	Dynamic             bool
	Protected           bool
	Side                LayerSide
	// Projection makes a 3D layer placed by the eye fov, otherwise the overlay is a quad.
	Projection  bool
	ScreenSpace bool
	// SourceUV per eye, a zero rect means the whole texture.
	SourceUV [2]native.Rectf
	// Model places the quad, its scale is the quad size.
	Model mgl32.Mat4
}

/*
ContentOverlay shows a texture or an externally produced surface. Setters take
effect on the next Manager.Update once the overlay is allocated.
*/
type ContentOverlay struct {
	overlayCore
	info ContentOverlayInfo

	surfaceNotified bool

	// OnSurfaceCreated fires once per allocation of an external surface overlay.
	OnSurfaceCreated func(native.SurfaceHandle)
	// OnBufferChanged fires every frame for dynamic overlays with the texture to draw into.
	OnBufferChanged func(Texture)
}

var _ Overlay = (*ContentOverlay)(nil)

func NewContentOverlay(name string, info ContentOverlayInfo) *ContentOverlay {
	if info.Model == (mgl32.Mat4{}) {
		info.Model = mgl32.Ident4()
	}
	for i := range info.SourceUV {
		if info.SourceUV[i] == (native.Rectf{}) {
			info.SourceUV[i] = native.FullRect
		}
	}
	return &ContentOverlay{
		overlayCore: newOverlayCore(name, info.CompositionDepth),
		info:        info,
	}
}

func (c *ContentOverlay) Info() ContentOverlayInfo {
	return c.info
}

func (c *ContentOverlay) Dynamic() bool {
	return c.info.Dynamic
}

func (c *ContentOverlay) Protected() bool {
	return c.info.Protected
}

func (c *ContentOverlay) ExternalSurface() bool {
	return c.info.ExternalSurface
}

// Surface is the OS level surface handed to external producers, 0 until allocated.
func (c *ContentOverlay) Surface() native.SurfaceHandle {
	return c.surface
}

func (c *ContentOverlay) markDirty() {
	if c.state == StateAllocated {
		c.state = StatePendingRebuild
	}
}

func (c *ContentOverlay) SetSourceUV(eye native.Eye, uv native.Rectf) {
	c.info.SourceUV[eye] = uv
	c.markDirty()
}

// SetExternalSurface changes how viewports treat the source, the swapchain is not recreated.
func (c *ContentOverlay) SetExternalSurface(external bool) {
	c.info.ExternalSurface = external
	c.markDirty()
}

// SetTransform replaces the model matrix, it is read every frame so it does not trigger a rebuild.
func (c *ContentOverlay) SetTransform(model mgl32.Mat4, screenSpace bool) {
	c.info.Model = model
	if c.info.ScreenSpace != screenSpace {
		c.info.ScreenSpace = screenSpace
		c.markDirty()
	}
}

/*
SetProtected marks the content as needing the secure decode path, the manager
starts or stops the protected session on its next update. The protect flag of
the buffer spec only follows on the next allocation.
*/
func (c *ContentOverlay) SetProtected(protected bool) {
	c.info.Protected = protected
}

// Apply rebuilds the viewports on the next update.
func (c *ContentOverlay) Apply() {
	c.markDirty()
}

func (c *ContentOverlay) initialize(*Manager) error {
	var size native.Resolution
	switch {
	case c.info.ExternalSurface:
		size = c.info.ExternalSurfaceSize
	case c.info.Texture != nil:
		size = c.info.Texture.Size()
	default:
		return debug.Errorf("Overlay %q has neither a texture nor an external surface", c.name)
	}
	if size.X <= 0 || size.Y <= 0 {
		return debug.Errorf("Overlay %q has invalid size %dx%d", c.name, size.X, size.Y)
	}

	c.spec = BufferSpec{
		Size:        size,
		ColorFormat: native.TextureFormatRGBA8,
		DepthFormat: native.TextureFormatDepth24,
		Samples:     1,
	}
	if c.info.ExternalSurface && c.info.Projection {
		c.spec.SurfaceFlags = native.SurfaceFlagSynchronous | native.SurfaceFlagUseTimestamps
	}
	if c.info.Protected {
		c.spec.CreateFlags |= native.SwapchainCreateProtectTexture
	}
	if !c.info.Dynamic {
		c.spec.CreateFlags |= native.SwapchainCreateStaticTexture
	}
	c.state = StateInitialized
	return nil
}

func (c *ContentOverlay) createTextures(m *Manager) error {
	c.releaseTextures(m)

	switch {
	case c.info.ExternalSurface:
		if !c.surfaceNotified {
			c.surfaceNotified = true
			if c.OnSurfaceCreated != nil {
				c.OnSurfaceCreated(c.surface)
			}
		}
		return nil

	case c.info.Dynamic:
		if c.info.Texture == nil {
			return debug.Errorf("Overlay %q is dynamic but has no texture to size its render targets", c.name)
		}
		c.owned = true
		for i := 0; i < c.spec.BufferCount; i++ {
			rt, err := m.textures.NewRenderTarget(fmt.Sprintf("%s_%d", c.name, i), c.info.Texture.Size(), c.spec.ColorFormat)
			if err != nil {
				c.releaseTextures(m)
				return debug.ErrorWrapf(err, "Failed to create render target %d of %q", i, c.name)
			}
			c.addTexture(rt)
		}

	case c.info.Texture != nil:
		// static content is shared with its owner
		c.addTexture(c.info.Texture)
	}

	c.bindTextures(m)
	return nil
}

func (c *ContentOverlay) releaseTextures(*Manager) {
	c.dropTextures(destroyNow)
}

func (c *ContentOverlay) createViewports(m *Manager) error {
	t := native.ViewportQuad
	if c.info.Projection {
		t = native.ViewportProjection
	}
	eyes := c.info.Side.eyes()
	c.viewports = make([]Viewport, len(eyes))
	for i, eye := range eyes {
		v := newViewport(eye, t)
		v.SourceUV = c.info.SourceUV[eye]
		v.ExternalSurface = c.info.ExternalSurface
		if c.info.ScreenSpace {
			v.Space = native.ReferenceSpaceView
		}
		if c.info.Projection {
			v.Fov = m.tracker.EyeFov(eye)
		}
		c.viewports[i] = v
	}
	c.updatePoses(m)
	return c.createViewportHandles(m)
}

func (c *ContentOverlay) pose(m *Manager) native.Transform {
	if c.info.Projection {
		return native.IdentityTransform()
	}
	if c.info.ScreenSpace {
		return native.TransformFromMat4(c.info.Model)
	}
	model := c.info.Model
	if offset := m.tracker.WorldOffset(); !offset.ApproxEqual(mgl32.Ident4()) {
		model = offset.Inv().Mul4(model)
	}
	return native.TransformFromMat4(model)
}

func (c *ContentOverlay) quadSize() mgl32.Vec2 {
	sx, sy, _ := mgl32.Extract3DScale(c.info.Model)
	return mgl32.Vec2{mgl32.Abs(sx), mgl32.Abs(sy)}
}

func (c *ContentOverlay) updatePoses(m *Manager) {
	pose := c.pose(m)
	size := c.quadSize()
	for i := range c.viewports {
		c.viewports[i].Pose = pose
		c.viewports[i].QuadSize = size
	}
}

func (c *ContentOverlay) populateViewports(m *Manager) {
	c.updatePoses(m)
	for i := range c.viewports {
		m.populateViewport(&c.viewports[i])
	}
}

func (c *ContentOverlay) populateBuffers(m *Manager, buffer native.BufferHandle) {
	if !c.info.Dynamic || c.info.ExternalSurface {
		return
	}
	t, found := c.lookupTexture(buffer)
	if !found {
		return
	}
	if c.OnBufferChanged != nil {
		c.OnBufferChanged(t)
	}
}

/*
UpdateExternalSurface forwards the per eye poses of an already rendered external
surface frame, poses and eyes must have the same length.
*/
func (c *ContentOverlay) UpdateExternalSurface(m *Manager, poses []mgl32.Mat4, eyes []native.Eye, timestamp int64, frameIndex int32) error {
	if !c.info.ExternalSurface {
		return debug.Errorf("Overlay %q is not an external surface", c.name)
	}
	if len(poses) != len(eyes) {
		return debug.Errorf("UpdateExternalSurface got %d poses for %d eyes", len(poses), len(eyes))
	}
	if !c.allocated() || m.Native() == nil {
		return debug.ErrorWrapf(ErrorNotReady{}, "Overlay %q is not allocated", c.name)
	}
	transforms := make([]native.Transform, len(poses))
	for i, p := range poses {
		transforms[i] = native.TransformFromMat4(p)
	}
	if !m.Native().UpdateExternalSurface(c.swapchain, transforms, eyes, timestamp, frameIndex) {
		return debug.ErrorWrapf(ErrorSurfaceUnavailable{}, "Overlay %q rejected the surface update", c.name)
	}
	return nil
}

func (c *ContentOverlay) MarshalJSON() ([]byte, error) {
	buff := bytes.Buffer{}
	buff.WriteString("{")
	c.marshal(&buff, "Content", c.TextureCount())
	buff.WriteString(fmt.Sprintf("\"Dynamic\": %t,", c.info.Dynamic))
	buff.WriteString(fmt.Sprintf("\"Protected\": %t,", c.info.Protected))
	buff.WriteString(fmt.Sprintf("\"ExternalSurface\": %t,", c.info.ExternalSurface))
	buff.WriteString(fmt.Sprintf("\"Side\": %q,", c.info.Side.String()))
	buff.Truncate(buff.Len() - 1)
	buff.WriteString("}")
	return buff.Bytes(), nil
}
