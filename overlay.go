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
	"slices"

	"goarrg.com/xr/compositor/native"
)

type OverlayState int32

const (
	StateUninitialized OverlayState = iota
	StateInitialized
	StateAllocated
	StatePendingRebuild
	StateDestroyed
)

func (s OverlayState) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitialized:
		return "Initialized"
	case StateAllocated:
		return "Allocated"
	case StatePendingRebuild:
		return "PendingRebuild"
	case StateDestroyed:
		return "Destroyed"
	}
	return fmt.Sprintf("OverlayState(%d)", int32(s))
}

/*
Overlay is a compositor managed surface with its own swapchain and one viewport
per targeted eye. The only implementations are DisplayOverlay and ContentOverlay.
All methods must be called from the goroutine driving the Manager.
*/
type Overlay interface {
	Name() string
	CompositionDepth() int
	Active() bool
	State() OverlayState
	Swapchain() native.Handle
	BufferSpec() BufferSpec
	Viewports() []Viewport
	TextureCount() int
	// Dynamic overlays acquire a working buffer every frame.
	Dynamic() bool
	Protected() bool

	core() *overlayCore
	initialize(m *Manager) error
	createTextures(m *Manager) error
	releaseTextures(m *Manager)
	createViewports(m *Manager) error
	populateViewports(m *Manager)
	populateBuffers(m *Manager, buffer native.BufferHandle)
}

// overlayCore is the state and default behavior shared by every overlay.
type overlayCore struct {
	name  string
	depth int

	spec      BufferSpec
	specH     native.Handle
	swapchain native.Handle
	surface   native.SurfaceHandle
	viewports []Viewport

	// textures is keyed by native pointer, order keeps the swapchain buffer order.
	textures map[native.BufferHandle]Texture
	order    []native.BufferHandle
	owned    bool

	active bool
	state  OverlayState
}

func newOverlayCore(name string, depth int) overlayCore {
	return overlayCore{
		name:     name,
		depth:    depth,
		textures: map[native.BufferHandle]Texture{},
		active:   true,
	}
}

func (o *overlayCore) core() *overlayCore {
	return o
}

func (o *overlayCore) Name() string {
	return o.name
}

func (o *overlayCore) CompositionDepth() int {
	return o.depth
}

func (o *overlayCore) Active() bool {
	return o.active
}

func (o *overlayCore) State() OverlayState {
	return o.state
}

func (o *overlayCore) Swapchain() native.Handle {
	return o.swapchain
}

func (o *overlayCore) BufferSpec() BufferSpec {
	return o.spec
}

func (o *overlayCore) Viewports() []Viewport {
	return slices.Clone(o.viewports)
}

func (o *overlayCore) TextureCount() int {
	return len(o.textures)
}

func (o *overlayCore) allocated() bool {
	return o.state == StateAllocated || o.state == StatePendingRebuild
}

func (o *overlayCore) addTexture(t Texture) {
	ptr := t.NativePtr()
	if _, found := o.textures[ptr]; found {
		abort("Overlay %q already owns a texture at %s", o.name, ptr)
	}
	o.textures[ptr] = t
	o.order = append(o.order, ptr)
}

// bindTextures hands the texture set to the native swapchain in creation order.
func (o *overlayCore) bindTextures(m *Manager) {
	if len(o.order) == 0 {
		return
	}
	if !m.Native().SetSwapchainBuffers(o.swapchain, o.order) {
		instance.logger.EPrintf("Overlay %q failed to bind %d buffers", o.name, len(o.order))
	}
}

/*
dropTextures forgets every texture and, if the overlay created them, passes
them to destroy. It is a no-op when the set is already empty.
*/
func (o *overlayCore) dropTextures(destroy func(...Destroyer)) {
	if len(o.textures) == 0 {
		return
	}
	if o.owned {
		destroyers := make([]Destroyer, 0, len(o.order))
		for _, ptr := range o.order {
			if d, ok := o.textures[ptr].(Destroyer); ok {
				destroyers = append(destroyers, d)
			}
		}
		destroy(destroyers...)
	}
	clear(o.textures)
	o.order = o.order[:0]
	o.owned = false
}

func destroyNow(destroyers ...Destroyer) {
	for _, d := range destroyers {
		d.Destroy()
	}
}

// createViewportHandles creates one native viewport per entry of o.viewports, all or nothing.
func (o *overlayCore) createViewportHandles(m *Manager) error {
	for i := range o.viewports {
		h, err := m.Native().CreateViewport()
		if err != nil {
			o.destroyViewportHandles(m)
			return err
		}
		o.viewports[i].handle = h
		o.viewports[i].Swapchain = o.swapchain
		m.Native().PopulateViewport(&o.viewports[i])
	}
	return nil
}

func (o *overlayCore) destroyViewportHandles(m *Manager) {
	for i := range o.viewports {
		m.Native().DestroyViewport(o.viewports[i].handle)
		o.viewports[i].handle = 0
		o.viewports[i].Index = -1
	}
}

func (o *overlayCore) lookupTexture(buffer native.BufferHandle) (Texture, bool) {
	t, found := o.textures[buffer]
	if !found {
		instance.logger.EPrintf("Overlay %q can not find the texture for buffer %s", o.name, buffer)
	}
	return t, found
}

func (o *overlayCore) marshal(buff *bytes.Buffer, kind string, textures int) {
	buff.WriteString(fmt.Sprintf("\"Name\": %q,", o.name))
	buff.WriteString(fmt.Sprintf("\"Kind\": %q,", kind))
	buff.WriteString(fmt.Sprintf("\"Depth\": %d,", o.depth))
	buff.WriteString(fmt.Sprintf("\"State\": %q,", o.state.String()))
	buff.WriteString(fmt.Sprintf("\"Active\": %t,", o.active))
	buff.WriteString(fmt.Sprintf("\"Swapchain\": %q,", toHex(o.swapchain)))
	buff.WriteString(fmt.Sprintf("\"BufferSpec\": %q,", o.spec.String()))
	buff.WriteString(fmt.Sprintf("\"Textures\": %d,", textures))
	buff.WriteString("\"Viewports\": [")
	for i := range o.viewports {
		b, _ := o.viewports[i].MarshalJSON()
		buff.Write(b)
		buff.WriteString(",")
	}
	if len(o.viewports) > 0 {
		buff.Truncate(buff.Len() - 1)
	}
	buff.WriteString("],")
}
