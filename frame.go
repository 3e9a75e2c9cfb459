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
	"goarrg.com/xr/compositor/native"
)

/*
PopulateFrame acquires the next native frame together with one working buffer
per dynamic swapchain and fills in every active viewport. It returns false when
no frame was acquired, in which case EndFrame submits nothing.
*/
func (m *Manager) PopulateFrame() bool {
	m.noCopy.check()
	if !m.Ready() {
		return false
	}
	if m.config.Multiview && !m.displays[0].Ready() {
		instance.logger.VPrintf("Display textures not ready, skipping frame")
		return false
	}
	if len(m.overlays) == 0 {
		return false
	}

	// previous submit must run before its buffers are reacquired
	m.submitting.Wait()
	if m.frame != 0 {
		instance.logger.WPrintf("Frame %s was acquired but never submitted", m.frame)
		m.frame = 0
	}

	n := m.Native()
	m.dynSwapchains = m.dynSwapchains[:0]
	for _, o := range m.overlays {
		if o.Dynamic() {
			m.dynSwapchains = append(m.dynSwapchains, o.Swapchain())
		}
	}
	m.dynBuffers = growSlice(m.dynBuffers, len(m.dynSwapchains))[:len(m.dynSwapchains)]

	frame, ok := n.AcquireFrame(m.dynSwapchains, m.dynBuffers)
	if !ok {
		m.dropped.Add(1)
		return false
	}
	m.frame = frame
	m.inflight.Store(uint64(frame))
	m.acquired.Add(1)

	clear(m.working)
	for i, swapchain := range m.dynSwapchains {
		m.working[swapchain] = m.dynBuffers[i]
	}

	for _, o := range m.overlays {
		if !o.Active() {
			continue
		}
		if o.Dynamic() {
			if buffer := m.working[o.Swapchain()]; buffer != 0 {
				o.populateBuffers(m, buffer)
			} else {
				instance.logger.EPrintf("Overlay %q has no working buffer in frame %s", o.Name(), frame)
			}
		}
		o.populateViewports(m)
	}

	n.SetPresentTime(frame, m.tracker.PresentTime())

	if m.config.ValidateFrames {
		if count, ok := n.FrameViewportCount(frame); ok && count != m.viewportCount {
			instance.logger.EPrintf("Frame %s has %d viewports, expected %d", frame, count, m.viewportCount)
		}
	}
	return true
}

func (m *Manager) populateViewport(v *Viewport) {
	if v.handle == 0 {
		return
	}
	if v.Index < 0 {
		instance.logger.EPrintf("Viewport %s has no frame index", v.handle)
		return
	}
	n := m.Native()
	n.PopulateViewport(v)
	if v.Type == native.ViewportProjection && !v.ExternalSurface {
		n.SetFocusPlane(v, m.focus.point, m.focus.normal)
	}
	n.SetFrameViewport(m.frame, v.Index, v.handle)
}

/*
EndFrame hands the populated frame to the render thread. Before the native
swapchain exists it instead requests its creation once the session and the
renderer are running.
*/
func (m *Manager) EndFrame() {
	m.noCopy.check()
	if !m.initialized.Load() {
		if m.tracker.SessionRunning() && m.renderer.State() == RendererRunning {
			m.thread.Issue(Command{Kind: CommandInitSwapchain})
		}
		return
	}
	if !m.Ready() || m.frame == 0 {
		return
	}
	if m.OnBeforeSubmit != nil {
		m.OnBeforeSubmit()
	}
	frame := m.frame
	m.frame = 0
	m.submitting.Add(1)
	if !m.thread.Issue(Command{Kind: CommandSubmitFrame, Frame: frame}) {
		m.submitting.Done()
		m.dropped.Add(1)
	}
}

func (m *Manager) submitOnRenderThread(c Command) {
	defer m.submitting.Done()

	n := m.Native()
	if n == nil || c.Frame == 0 {
		instance.logger.WPrintf("Can not submit frame %s before the swapchain is initialized", c.Frame)
		return
	}
	if cur := native.Handle(m.inflight.Load()); cur != c.Frame {
		instance.logger.EPrintf("Submitting frame %s but the acquired frame is %s", c.Frame, cur)
	}
	if n.SubmitFrame(c.Frame) {
		m.submitted.Add(1)
	} else {
		m.dropped.Add(1)
	}
	m.inflight.CompareAndSwap(uint64(c.Frame), 0)
}

// Tick runs one display refresh: Update, PopulateFrame and EndFrame.
func (m *Manager) Tick() error {
	err := m.Update()
	m.PopulateFrame()
	m.EndFrame()
	return err
}

// DisplayTime returns the display time and period of the last presented frame, zero before the first.
func (m *Manager) DisplayTime() (uint64, uint64) {
	if n := m.Native(); n != nil {
		return n.DisplayTime()
	}
	return 0, 0
}
