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
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	"goarrg.com/debug"

	"goarrg.com/xr/compositor/internal/container"
	"goarrg.com/xr/compositor/native"
)

type taskOp int

const (
	taskAdd taskOp = iota
	taskRemove
)

type task struct {
	op      taskOp
	overlay Overlay
}

type focusPlane struct {
	point  native.Vector3f
	normal native.Vector3f
}

type FrameStats struct {
	Acquired  uint64
	Submitted uint64
	Dropped   uint64
}

/*
Manager owns every overlay and its native objects. Overlays added or removed
before the compositor is ready are queued and applied in order by Update. All
methods except Stats must be called from the same goroutine.
*/
type Manager struct {
	noCopy    noCopy
	config    Config
	api       native.API
	renderer  *Renderer
	thread    *RenderThread
	tracker   Tracker
	textures  TextureAllocator
	protected ProtectedSession

	nativeSwapchain atomic.Pointer[NativeSwapchain]
	initialized     atomic.Bool

	displays   []*DisplayOverlay
	overlays   []Overlay
	registered map[Overlay]struct{}
	pending    container.Queue[task]

	working       map[native.Handle]native.BufferHandle
	dynSwapchains []native.Handle
	dynBuffers    []native.BufferHandle
	viewportCount int

	frame      native.Handle
	inflight   atomic.Uint64
	submitting sync.WaitGroup

	protectedActive bool
	focus           focusPlane

	acquired  atomic.Uint64
	submitted atomic.Uint64
	dropped   atomic.Uint64

	// OnBeforeSubmit runs on the calling goroutine right before a frame is handed to the render thread.
	OnBeforeSubmit func()
}

/*
NewManager creates the display overlays and registers the render thread
handlers. protected may be nil when protected content is never shown.
*/
func NewManager(api native.API, renderer *Renderer, tracker Tracker, textures TextureAllocator, protected ProtectedSession, config Config) (*Manager, error) {
	config.validate()
	m := &Manager{
		config:     config,
		api:        api,
		renderer:   renderer,
		thread:     renderer.thread,
		tracker:    tracker,
		textures:   textures,
		protected:  protected,
		registered: map[Overlay]struct{}{},
		working:    map[native.Handle]native.BufferHandle{},
	}
	m.noCopy.init()
	m.ResetFocusPlane()
	instance.logger.VPrintf("Manager config: %s", prettyString(&m.config))

	m.thread.Handle(CommandInitSwapchain, func(Command) {
		m.initOnRenderThread()
	})
	m.thread.Handle(CommandSubmitFrame, m.submitOnRenderThread)
	m.thread.Handle(CommandCreateDisplayTextures, func(c Command) {
		c.Display.createTexturesOnRenderThread(m)
	})

	if config.Multiview {
		m.displays = []*DisplayOverlay{newDisplayOverlay(native.EyeLeft, true)}
	} else {
		m.displays = []*DisplayOverlay{
			newDisplayOverlay(native.EyeLeft, false),
			newDisplayOverlay(native.EyeRight, false),
		}
	}
	for _, d := range m.displays {
		if err := m.Add(d); err != nil {
			return nil, debug.ErrorWrapf(err, "Failed to add display overlay")
		}
	}
	return m, nil
}

func (m *Manager) initOnRenderThread() {
	if m.initialized.Load() {
		return
	}
	h := m.renderer.Handle()
	if h == 0 {
		instance.logger.WPrintf("Swapchain init requested without a rendering handle")
		return
	}
	m.nativeSwapchain.Store(newNativeSwapchain(m.api, h))
	m.initialized.Store(true)
	instance.logger.IPrintf("Native swapchain initialized on rendering %s", h)
}

// Native returns the native swapchain bridge, nil until the render thread initialized it.
func (m *Manager) Native() *NativeSwapchain {
	return m.nativeSwapchain.Load()
}

func (m *Manager) Initialized() bool {
	return m.initialized.Load()
}

/*
Ready reports whether native objects can be created and frames submitted. With
multiview the renderer state is not required since the engine drives it.
*/
func (m *Manager) Ready() bool {
	if !m.initialized.Load() || !m.tracker.SessionRunning() {
		return false
	}
	return m.config.Multiview || m.renderer.State() == RendererRunning
}

func (m *Manager) Config() Config {
	return m.config
}

func (m *Manager) Displays() []*DisplayOverlay {
	return slices.Clone(m.displays)
}

// Overlays returns the allocated overlays in composition order.
func (m *Manager) Overlays() []Overlay {
	m.noCopy.check()
	return slices.Clone(m.overlays)
}

func (m *Manager) Registered(o Overlay) bool {
	_, found := m.registered[o]
	return found
}

func (m *Manager) Pending() int {
	return m.pending.Len()
}

// ViewportCount is the number of frame slots used by active overlays.
func (m *Manager) ViewportCount() int {
	return m.viewportCount
}

// WorkingBuffer is the buffer acquired for swapchain in the current frame, 0 if none.
func (m *Manager) WorkingBuffer(swapchain native.Handle) native.BufferHandle {
	return m.working[swapchain]
}

func (m *Manager) ProtectedActive() bool {
	return m.protectedActive
}

func (m *Manager) Stats() FrameStats {
	return FrameStats{
		Acquired:  m.acquired.Load(),
		Submitted: m.submitted.Load(),
		Dropped:   m.dropped.Load(),
	}
}

/*
Add registers o. Its buffer spec is computed immediately, native objects are
created now if the compositor is ready and nothing is queued, otherwise on a
later Update. Adding a registered overlay does nothing.
*/
func (m *Manager) Add(o Overlay) error {
	m.noCopy.check()
	if _, found := m.registered[o]; found {
		instance.logger.WPrintf("Overlay %q is already registered", o.Name())
		return nil
	}
	if len(m.registered) >= m.config.MaxOverlays {
		return debug.ErrorWrapf(ErrorCapacityExceeded{Max: m.config.MaxOverlays}, "Failed to add overlay %q", o.Name())
	}
	// an overlay with a queued remove keeps its spec until the remove runs
	if !o.core().allocated() {
		if err := o.initialize(m); err != nil {
			return debug.ErrorWrapf(err, "Failed to initialize overlay %q", o.Name())
		}
	}
	m.registered[o] = struct{}{}

	if m.Ready() && m.pending.Empty() {
		if err := m.allocate(o); err != nil {
			delete(m.registered, o)
			return err
		}
		return nil
	}
	m.pending.Push(task{op: taskAdd, overlay: o})
	instance.logger.VPrintf("Overlay %q queued for allocation", o.Name())
	return nil
}

/*
Remove unregisters o. A queued add that never ran is canceled instead,
removing an unknown overlay does nothing.
*/
func (m *Manager) Remove(o Overlay) {
	m.noCopy.check()
	if _, found := m.registered[o]; !found {
		return
	}
	delete(m.registered, o)

	if i := m.pending.LastIndexFunc(func(t task) bool { return t.overlay == o }); i >= 0 && m.pending.At(i).op == taskAdd {
		m.pending.Remove(i)
		if c := o.core(); !c.allocated() {
			c.state = StateDestroyed
		}
		instance.logger.VPrintf("Overlay %q canceled before allocation", o.Name())
		return
	}

	if m.Ready() && m.pending.Empty() {
		m.release(o)
		return
	}
	m.pending.Push(task{op: taskRemove, overlay: o})
}

// SetActive shows or hides o without touching its native objects.
func (m *Manager) SetActive(o Overlay, active bool) {
	m.noCopy.check()
	c := o.core()
	if c.active == active {
		return
	}
	c.active = active
	if c.allocated() {
		m.reindex()
		m.updateProtected()
	}
}

/*
SetFocusPlane is applied to every non external projection viewport from the
next frame on. point and normal are in view space.
*/
func (m *Manager) SetFocusPlane(point, normal mgl32.Vec3) {
	m.noCopy.check()
	m.focus = focusPlane{point: point, normal: normal.Normalize()}
}

// ResetFocusPlane restores the plane facing the viewer at Config.FocusDistance.
func (m *Manager) ResetFocusPlane() {
	m.focus = focusPlane{
		point:  mgl32.Vec3{0, 0, -m.config.FocusDistance},
		normal: mgl32.Vec3{0, 0, 1},
	}
}

func (m *Manager) FocusPlane() (point, normal mgl32.Vec3) {
	return m.focus.point, m.focus.normal
}

/*
Update applies queued adds and removes once the compositor is ready, rebuilds
viewports of overlays whose parameters changed and starts or stops protected
content. Failed allocations are unregistered and joined into the error.
*/
func (m *Manager) Update() error {
	m.noCopy.check()
	if !m.Ready() {
		return nil
	}

	var errs []error
	for !m.pending.Empty() {
		t := m.pending.Pop()
		switch t.op {
		case taskAdd:
			if err := m.allocate(t.overlay); err != nil {
				delete(m.registered, t.overlay)
				errs = append(errs, err)
			}
		case taskRemove:
			m.release(t.overlay)
		}
	}

	rebuilt := false
	for _, o := range m.overlays {
		c := o.core()
		if c.state != StatePendingRebuild {
			continue
		}
		c.destroyViewportHandles(m)
		c.state = StateAllocated
		if err := o.createViewports(m); err != nil {
			c.viewports = nil
			errs = append(errs, debug.ErrorWrapf(err, "Failed to rebuild viewports of %q", c.name))
		}
		rebuilt = true
	}
	if rebuilt {
		m.reindex()
	}

	m.updateProtected()
	return errors.Join(errs...)
}

func (m *Manager) insert(o Overlay) {
	i := slices.IndexFunc(m.overlays, func(x Overlay) bool {
		return x.CompositionDepth() > o.CompositionDepth()
	})
	if i < 0 {
		m.overlays = append(m.overlays, o)
	} else {
		m.overlays = slices.Insert(m.overlays, i, o)
	}
}

// reindex assigns contiguous frame slots to the viewports of active overlays in composition order.
func (m *Manager) reindex() {
	index := 0
	for _, o := range m.overlays {
		c := o.core()
		for i := range c.viewports {
			v := &c.viewports[i]
			if !c.active || v.handle == 0 {
				v.Index = -1
				continue
			}
			v.Index = index
			index++
		}
	}
	m.viewportCount = index
}

func (m *Manager) allocate(o Overlay) error {
	n := m.Native()
	c := o.core()

	textureArray := false
	if d, ok := o.(*DisplayOverlay); ok {
		textureArray = d.multiview
	}
	external := false
	if co, ok := o.(*ContentOverlay); ok {
		external = co.info.ExternalSurface
	}

	specH, err := n.CreateBufferSpec(c.spec, textureArray)
	if err != nil {
		return debug.ErrorWrapf(err, "Failed to create buffer spec of %q", c.name)
	}
	c.specH = specH

	if external {
		c.swapchain, c.surface, err = n.CreateSwapchainWithSurface(specH)
	} else {
		c.swapchain, err = n.CreateSwapchain(specH)
	}
	if err != nil {
		m.rollback(o)
		return debug.ErrorWrapf(err, "Failed to create swapchain of %q", c.name)
	}

	count, err := n.RecommendedBufferCount(c.swapchain)
	if err != nil {
		m.rollback(o)
		return debug.ErrorWrapf(err, "Failed to query buffer count of %q", c.name)
	}
	c.spec.BufferCount = count

	if err := o.createTextures(m); err != nil {
		m.rollback(o)
		return err
	}
	if err := o.createViewports(m); err != nil {
		m.rollback(o)
		return debug.ErrorWrapf(err, "Failed to create viewports of %q", c.name)
	}

	c.state = StateAllocated
	m.insert(o)
	m.reindex()
	m.updateProtected()
	instance.logger.IPrintf("Overlay %q allocated: swapchain %s %s", c.name, c.swapchain, c.spec)
	return nil
}

// rollback destroys whatever allocate created so far, in reverse order.
func (m *Manager) rollback(o Overlay) {
	m.destroyNative(o)
	o.core().state = StateDestroyed
}

func (m *Manager) destroyNative(o Overlay) {
	n := m.Native()
	c := o.core()
	o.releaseTextures(m)
	c.destroyViewportHandles(m)
	c.viewports = nil
	n.DestroySwapchain(c.swapchain)
	n.DestroyBufferSpec(c.specH)
	delete(m.working, c.swapchain)
	c.swapchain, c.specH, c.surface = 0, 0, 0
	c.spec.BufferCount = 0
	if co, ok := o.(*ContentOverlay); ok {
		co.surfaceNotified = false
	}
}

func (m *Manager) release(o Overlay) {
	c := o.core()
	if !c.allocated() {
		c.state = StateDestroyed
		return
	}
	// a submitted frame may still reference the swapchain
	m.submitting.Wait()
	m.destroyNative(o)
	c.state = StateDestroyed
	m.overlays = slices.DeleteFunc(m.overlays, func(x Overlay) bool { return x == o })
	m.reindex()
	m.updateProtected()
	instance.logger.IPrintf("Overlay %q released", c.name)
}

/*
updateProtected starts the protected session when the first active overlay
needs it and stops it when the last one goes away. A failed transition is
retried on the next call.
*/
func (m *Manager) updateProtected() {
	want := false
	for _, o := range m.overlays {
		if o.Active() && o.Protected() {
			want = true
			break
		}
	}
	if want == m.protectedActive {
		return
	}
	if m.protected == nil {
		instance.logger.WPrintf("Protected content requested without a protected session")
		m.protectedActive = want
		return
	}
	var err error
	if want {
		err = m.protected.Start()
	} else {
		err = m.protected.Stop()
	}
	if err != nil {
		instance.logger.EPrintf("Failed to switch protected content to %t: %v", want, err)
		return
	}
	m.protectedActive = want
	instance.logger.IPrintf("Protected content: %t", want)
}

/*
Destroy releases every overlay, waiting for in flight render thread work first.
The renderer and render thread are left to their owner.
*/
func (m *Manager) Destroy() {
	m.noCopy.check()
	m.submitting.Wait()
	m.thread.Flush()

	m.pending.Clear()
	for i := len(m.overlays) - 1; i >= 0; i-- {
		m.release(m.overlays[i])
	}
	for o := range m.registered {
		o.core().state = StateDestroyed
	}
	clear(m.registered)
	clear(m.working)
	m.overlays = nil
	m.updateProtected()
	m.noCopy.close()
}

func (m *Manager) MarshalJSON() ([]byte, error) {
	buff := bytes.Buffer{}
	buff.WriteString("{")

	buff.WriteString(fmt.Sprintf("\"Config\": %s,", jsonString(&m.config)))
	buff.WriteString(fmt.Sprintf("\"Ready\": %t,", m.Ready()))
	buff.WriteString(fmt.Sprintf("\"Pending\": %d,", m.pending.Len()))
	buff.WriteString(fmt.Sprintf("\"ViewportCount\": %d,", m.viewportCount))
	buff.WriteString(fmt.Sprintf("\"ProtectedActive\": %t,", m.protectedActive))

	buff.WriteString("\"Overlays\": [")
	for _, o := range m.overlays {
		buff.WriteString(jsonString(o))
		buff.WriteString(",")
	}
	if len(m.overlays) > 0 {
		buff.Truncate(buff.Len() - 1)
	}
	buff.WriteString("],")

	buff.WriteString("\"WorkingBuffers\": {")
	err := mapRunFuncSorted(m.working, func(k native.Handle, v native.BufferHandle) error {
		buff.WriteString(fmt.Sprintf("%q: %q,", toHex(k), toHex(v)))
		return nil
	})
	if err == nil {
		buff.Truncate(buff.Len() - 1)
	}
	buff.WriteString("},")

	s := m.Stats()
	buff.WriteString(fmt.Sprintf("\"Stats\": {\"Acquired\": %d, \"Submitted\": %d, \"Dropped\": %d},", s.Acquired, s.Submitted, s.Dropped))

	buff.Truncate(buff.Len() - 1)
	buff.WriteString("}")
	return buff.Bytes(), nil
}
