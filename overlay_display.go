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
	"math"
	"sync/atomic"

	"goarrg.com/debug"

	"goarrg.com/xr/compositor/native"
)

// DisplayDepth keeps the display overlays behind all content.
const DisplayDepth = math.MaxInt32 - 1

/*
DisplayOverlay is the engine's full screen eye output. Without multiview there
is one per eye, each with its own swapchain. With multiview a single overlay
renders both eyes into a two layer texture array whose textures are created on
the render thread.
*/
type DisplayOverlay struct {
	overlayCore
	eye       native.Eye
	multiview bool

	// ready is set by the render thread once multiview textures exist.
	ready   atomic.Bool
	working native.BufferHandle

	// OnRenderTarget is called every frame with the texture the engine must render into.
	OnRenderTarget func(Texture)
}

var _ Overlay = (*DisplayOverlay)(nil)

func newDisplayOverlay(eye native.Eye, multiview bool) *DisplayOverlay {
	name := "display"
	if !multiview {
		name = fmt.Sprintf("display_%s", eye)
	}
	return &DisplayOverlay{
		overlayCore: newOverlayCore(name, DisplayDepth),
		eye:         eye,
		multiview:   multiview,
	}
}

func (d *DisplayOverlay) Dynamic() bool {
	return true
}

func (d *DisplayOverlay) Protected() bool {
	return false
}

func (d *DisplayOverlay) Multiview() bool {
	return d.multiview
}

// Ready reports whether the overlay has textures to render into.
func (d *DisplayOverlay) Ready() bool {
	if d.multiview {
		return d.ready.Load()
	}
	return len(d.textures) > 0
}

/*
TextureCount is 0 while the render thread is still creating multiview
textures, the set is only read once it is published.
*/
func (d *DisplayOverlay) TextureCount() int {
	if d.multiview && !d.ready.Load() {
		return 0
	}
	return len(d.textures)
}

// WorkingTexture is the native pointer of this frame's render target, 0 outside a frame.
func (d *DisplayOverlay) WorkingTexture() native.BufferHandle {
	return d.working
}

func (d *DisplayOverlay) initialize(m *Manager) error {
	size := m.tracker.DisplayResolution()
	if size.X <= 0 || size.Y <= 0 {
		return debug.Errorf("Display resolution %dx%d is invalid", size.X, size.Y)
	}
	d.spec = BufferSpec{
		Size:        size,
		ColorFormat: native.TextureFormatRGBA8,
		DepthFormat: native.TextureFormatDepth24,
		Samples:     1,
	}
	d.state = StateInitialized
	return nil
}

func (d *DisplayOverlay) createTextures(m *Manager) error {
	d.releaseTextures(m)

	if d.multiview {
		d.ready.Store(false)
		m.thread.Issue(Command{Kind: CommandCreateDisplayTextures, Display: d})
		return nil
	}

	d.owned = true
	for i := 0; i < d.spec.BufferCount; i++ {
		rt, err := m.textures.NewRenderTarget(fmt.Sprintf("%s_%d", d.name, i), d.spec.Size, d.spec.ColorFormat)
		if err != nil {
			d.releaseTextures(m)
			return debug.ErrorWrapf(err, "Failed to create render target %d of %q", i, d.name)
		}
		d.addTexture(rt)
	}
	d.bindTextures(m)
	return nil
}

/*
createTexturesOnRenderThread runs on the render thread. Nothing else touches the
texture set until ready is stored, releaseTextures flushes the render thread first.
*/
func (d *DisplayOverlay) createTexturesOnRenderThread(m *Manager) {
	rts, err := m.textures.NewDisplayTextures(d.spec.BufferCount, d.spec.Size, 2)
	if err != nil {
		instance.logger.EPrintf("Failed to create display textures: %v", err)
		return
	}
	d.owned = true
	for _, rt := range rts {
		instance.logger.VPrintf("Display texture %s", rt.NativePtr())
		d.addTexture(rt)
	}
	d.bindTextures(m)
	d.ready.Store(true)
}

func (d *DisplayOverlay) releaseTextures(m *Manager) {
	if d.multiview {
		// the render thread may still be filling the set
		m.thread.Flush()
		d.ready.Store(false)
		d.dropTextures(m.thread.QueueDestroy)
	} else {
		d.dropTextures(destroyNow)
	}
	d.working = 0
}

func (d *DisplayOverlay) createViewports(m *Manager) error {
	if d.multiview {
		d.viewports = []Viewport{
			newViewport(native.EyeLeft, native.ViewportProjection),
			newViewport(native.EyeRight, native.ViewportProjection),
		}
		d.viewports[0].TextureArraySlice = 0
		d.viewports[1].TextureArraySlice = 1
	} else {
		d.viewports = []Viewport{newViewport(d.eye, native.ViewportProjection)}
	}
	d.updatePoses(m)
	return d.createViewportHandles(m)
}

func (d *DisplayOverlay) updatePoses(m *Manager) {
	head := m.tracker.HeadPose()
	for i := range d.viewports {
		v := &d.viewports[i]
		v.Space = native.ReferenceSpaceGlobal
		v.Pose = native.TransformFromMat4(head.Mul4(m.tracker.EyeFromHead(v.TargetEye)))
		v.Fov = m.tracker.EyeFov(v.TargetEye)
	}
}

func (d *DisplayOverlay) populateViewports(m *Manager) {
	d.updatePoses(m)
	for i := range d.viewports {
		m.populateViewport(&d.viewports[i])
	}
}

func (d *DisplayOverlay) populateBuffers(m *Manager, buffer native.BufferHandle) {
	d.working = 0
	t, found := d.lookupTexture(buffer)
	if !found {
		return
	}
	d.working = buffer
	if d.OnRenderTarget != nil {
		d.OnRenderTarget(t)
	}
}

func (d *DisplayOverlay) MarshalJSON() ([]byte, error) {
	buff := bytes.Buffer{}
	buff.WriteString("{")
	d.marshal(&buff, "Display", d.TextureCount())
	buff.WriteString(fmt.Sprintf("\"Multiview\": %t,", d.multiview))
	buff.WriteString(fmt.Sprintf("\"Ready\": %t,", d.Ready()))
	buff.Truncate(buff.Len() - 1)
	buff.WriteString("}")
	return buff.Bytes(), nil
}
