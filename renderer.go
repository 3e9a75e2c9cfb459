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
Package compositor multiplexes independently created overlays onto the two eyes
of a stereo display through the native glasses compositor. A Manager owns the
overlays and their native swapchains, and submits one frame per display
refresh through a RenderThread.
*/
package compositor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"goarrg.com"
	"goarrg.com/debug"

	"goarrg.com/xr/compositor/internal/util"
	"goarrg.com/xr/compositor/native"
)

type Destroyer interface {
	Destroy()
}

type platform struct{}

func (platform) Abort()                           { panic("Fatal Error") }
func (platform) AbortPopup(f string, args ...any) { panic("Fatal Error") }

var instanceInitOnce sync.Once

var instance = struct {
	platform goarrg.PlatformInterface
	logger   *debug.Logger
}{
	platform: platform{},
	logger:   debug.NewLogger("compositor"),
}

func SetLogLevel(l uint32) {
	instance.logger.SetLevel(l)
}

// InitPlatform replaces the default platform, which panics on abort. Only the first call has any effect.
func InitPlatform(platform goarrg.PlatformInterface) {
	instanceInitOnce.Do(func() {
		instance.platform = platform
		util.Init(platform)
	})
}

type RendererState int32

const (
	RendererUninitialized RendererState = iota
	RendererInitialized
	RendererRunning
	RendererPaused
	RendererDestroyed
)

func (s RendererState) String() string {
	switch s {
	case RendererUninitialized:
		return "Uninitialized"
	case RendererInitialized:
		return "Initialized"
	case RendererRunning:
		return "Running"
	case RendererPaused:
		return "Paused"
	case RendererDestroyed:
		return "Destroyed"
	}
	return fmt.Sprintf("RendererState(%d)", int32(s))
}

/*
Renderer is the native rendering session. Start, Pause and Resume are executed
on the render thread, State reflects the result once the command ran.
*/
type Renderer struct {
	api    native.API
	thread *RenderThread
	handle atomic.Uint64
	state  atomic.Int32
}

func NewRenderer(api native.API, thread *RenderThread) *Renderer {
	r := &Renderer{api: api, thread: thread}
	thread.Handle(CommandStartRenderer, func(Command) {
		r.transition("RenderingStart", r.api.RenderingStart, RendererRunning, RendererInitialized)
	})
	thread.Handle(CommandPauseRenderer, func(Command) {
		r.transition("RenderingPause", r.api.RenderingPause, RendererPaused, RendererRunning)
	})
	thread.Handle(CommandResumeRenderer, func(Command) {
		r.transition("RenderingResume", r.api.RenderingResume, RendererRunning, RendererPaused)
	})
	return r
}

func (r *Renderer) transition(op string, call func(native.Handle) native.Result, to RendererState, from ...RendererState) {
	cur := r.State()
	allowed := false
	for _, f := range from {
		if cur == f {
			allowed = true
			break
		}
	}
	if !allowed {
		instance.logger.WPrintf("%s ignored in renderer state %s", op, cur)
		return
	}
	if !check(op, call(r.Handle())) {
		return
	}
	r.state.Store(int32(to))
	instance.logger.IPrintf("Renderer %s -> %s", cur, to)
}

// Create obtains the native rendering handle.
func (r *Renderer) Create() error {
	if s := r.State(); s != RendererUninitialized {
		return debug.Errorf("Renderer.Create called in state %s", s)
	}
	h, ret := r.api.RenderingCreate()
	if err := mustCheck("RenderingCreate", ret); err != nil {
		return debug.ErrorWrapf(err, "Failed to create renderer")
	}
	r.handle.Store(uint64(h))
	r.state.Store(int32(RendererInitialized))
	instance.logger.IPrintf("Renderer created: %s", h)
	return nil
}

func (r *Renderer) Start() {
	r.thread.Issue(Command{Kind: CommandStartRenderer})
}

func (r *Renderer) Pause() {
	r.thread.Issue(Command{Kind: CommandPauseRenderer})
}

func (r *Renderer) Resume() {
	r.thread.Issue(Command{Kind: CommandResumeRenderer})
}

// Destroy waits for the render thread and releases the native rendering handle.
func (r *Renderer) Destroy() {
	r.thread.Flush()
	s := r.State()
	if s == RendererUninitialized || s == RendererDestroyed {
		r.state.Store(int32(RendererDestroyed))
		return
	}
	h := r.Handle()
	if s == RendererRunning || s == RendererPaused {
		check("RenderingStop", r.api.RenderingStop(h))
	}
	check("RenderingDestroy", r.api.RenderingDestroy(h))
	r.handle.Store(0)
	r.state.Store(int32(RendererDestroyed))
	instance.logger.IPrintf("Renderer destroyed: %s", h)
}

func (r *Renderer) Handle() native.Handle {
	return native.Handle(r.handle.Load())
}

func (r *Renderer) State() RendererState {
	return RendererState(r.state.Load())
}
