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
Package sim is an in memory native compositor. It validates handles the way the
device runtime does, records every call in order and lets callers inject failures
per operation.
*/
package sim

import (
	"slices"
	"sync"

	"goarrg.com/xr/compositor/native"
)

type Call struct {
	Op         string
	Target     native.Handle
	Swapchains []native.Handle
	Index      int32
}

type objectKind int

const (
	kindRendering objectKind = iota
	kindBufferSpec
	kindSwapchain
	kindViewport
	kindFrame
)

type BufferSpec struct {
	Size            native.Resolution
	ColorFormat     native.TextureFormat
	DepthFormat     native.TextureFormat
	Samples         int32
	SurfaceFlags    native.SurfaceFlags
	CreateFlags     native.SwapchainCreateFlags
	MultiviewLayers int32
}

type Swapchain struct {
	Spec     native.Handle
	Surface  native.SurfaceHandle
	Buffers  []native.BufferHandle
	Acquired int

	ExternalUpdates int
	LastFrameIndex  int32
	LastTransforms  []native.Transform
}

type Viewport struct {
	SourceUV       native.Rectf
	Eye            native.Eye
	Swapchain      native.Handle
	Type           native.ViewportType
	Space          native.ReferenceSpace
	Transform      native.Transform
	QuadW, QuadH   float32
	Fov            native.Fov4f
	MultiviewLayer int32
	FocusSet       bool
	FocusPoint     native.Vector3f
	FocusNormal    native.Vector3f
}

type Frame struct {
	Viewports   map[int32]native.Handle
	PresentTime uint64
}

type API struct {
	mtx sync.Mutex

	next     native.Handle
	objects  map[native.Handle]objectKind
	specs    map[native.Handle]*BufferSpec
	chains   map[native.Handle]*Swapchain
	views    map[native.Handle]*Viewport
	frames   map[native.Handle]*Frame
	fail     map[string]native.Result
	failOnce map[string]native.Result
	calls    []Call

	// RecommendedBufferCount is reported by SwapchainGetRecommendedBufferCount.
	RecommendedBufferCount int32
	DisplayPeriod          uint64

	running   bool
	submitted int
	displayAt uint64
}

var _ native.API = (*API)(nil)

func New() *API {
	return &API{
		next:                   0x1000,
		objects:                map[native.Handle]objectKind{},
		specs:                  map[native.Handle]*BufferSpec{},
		chains:                 map[native.Handle]*Swapchain{},
		views:                  map[native.Handle]*Viewport{},
		frames:                 map[native.Handle]*Frame{},
		fail:                   map[string]native.Result{},
		failOnce:               map[string]native.Result{},
		RecommendedBufferCount: 3,
		DisplayPeriod:          16_666_666,
	}
}

// Fail makes every following call to op return r until Clear is called.
func (a *API) Fail(op string, r native.Result) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.fail[op] = r
}

// FailOnce makes only the next call to op return r.
func (a *API) FailOnce(op string, r native.Result) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.failOnce[op] = r
}

func (a *API) Clear(op string) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	delete(a.fail, op)
	delete(a.failOnce, op)
}

func (a *API) Calls() []Call {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return slices.Clone(a.calls)
}

// CallsOf returns the recorded calls to op in order.
func (a *API) CallsOf(op string) []Call {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	var ret []Call
	for _, c := range a.calls {
		if c.Op == op {
			ret = append(ret, c)
		}
	}
	return ret
}

// Count returns the number of calls per op.
func (a *API) Count() map[string]int {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	ret := map[string]int{}
	for _, c := range a.calls {
		ret[c.Op]++
	}
	return ret
}

func (a *API) ResetCalls() {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.calls = a.calls[:0]
}

// Live returns the number of native objects that have not been destroyed,
// the rendering handle and in flight frames excluded.
func (a *API) Live() int {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return len(a.specs) + len(a.chains) + len(a.views)
}

func (a *API) Swapchain(h native.Handle) (Swapchain, bool) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	s, ok := a.chains[h]
	if !ok {
		return Swapchain{}, false
	}
	ret := *s
	ret.Buffers = slices.Clone(s.Buffers)
	return ret, true
}

func (a *API) BufferSpec(h native.Handle) (BufferSpec, bool) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	s, ok := a.specs[h]
	if !ok {
		return BufferSpec{}, false
	}
	return *s, true
}

func (a *API) Viewport(h native.Handle) (Viewport, bool) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	v, ok := a.views[h]
	if !ok {
		return Viewport{}, false
	}
	return *v, true
}

func (a *API) Submitted() int {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.submitted
}

// record must be called with the lock held, it returns the injected failure for op if any.
func (a *API) record(c Call) native.Result {
	a.calls = append(a.calls, c)
	if r, ok := a.failOnce[c.Op]; ok {
		delete(a.failOnce, c.Op)
		return r
	}
	if r, ok := a.fail[c.Op]; ok {
		return r
	}
	return native.Success
}

func (a *API) alloc(kind objectKind) native.Handle {
	a.next++
	a.objects[a.next] = kind
	return a.next
}

func (a *API) is(h native.Handle, kind objectKind) bool {
	k, ok := a.objects[h]
	return ok && k == kind
}

func (a *API) free(h native.Handle) {
	delete(a.objects, h)
}
