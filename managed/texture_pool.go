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
package managed

import (
	"fmt"
	"sync"

	"goarrg.com/xr/compositor"
	"goarrg.com/xr/compositor/internal/container"
	"goarrg.com/xr/compositor/internal/util"
	"goarrg.com/xr/compositor/native"
)

type poolKey struct {
	size   native.Resolution
	format native.TextureFormat
}

func (k poolKey) String() string {
	return fmt.Sprintf("%dx%d %s", k.size.X, k.size.Y, k.format)
}

type PoolStats struct {
	Allocated int
	Reused    int
	Free      int
}

/*
TexturePool recycles render targets between overlays of the same size and
format. Destroying a pooled render target returns it to the pool, Release
destroys everything that is free. Texture arrays for the display are not pooled.
It is safe to use from the render thread and the main goroutine at once.
*/
type TexturePool struct {
	noCopy util.NoCopy
	mtx    sync.Mutex
	inner  compositor.TextureAllocator
	free   map[poolKey]*container.Stack[compositor.RenderTarget]
	live   map[native.BufferHandle]struct{}
	stats  PoolStats
}

var _ compositor.TextureAllocator = (*TexturePool)(nil)

func NewTexturePool(inner compositor.TextureAllocator) *TexturePool {
	p := &TexturePool{
		inner: inner,
		free:  map[poolKey]*container.Stack[compositor.RenderTarget]{},
		live:  map[native.BufferHandle]struct{}{},
	}
	p.noCopy.Init()
	return p
}

type pooledRenderTarget struct {
	compositor.RenderTarget
	release compositor.Destroyer
}

func (t *pooledRenderTarget) Destroy() {
	t.release.Destroy()
}

func (p *TexturePool) NewRenderTarget(name string, size native.Resolution, format native.TextureFormat) (compositor.RenderTarget, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.noCopy.Check()

	key := poolKey{size: size, format: format}
	var rt compositor.RenderTarget
	if s, found := p.free[key]; found && !s.Empty() {
		rt = s.Pop()
		p.stats.Reused++
		p.stats.Free--
		instance.logger.VPrintf("Reusing %s render target %s for %q", key, rt.NativePtr(), name)
	} else {
		var err error
		rt, err = p.inner.NewRenderTarget(name, size, format)
		if err != nil {
			return nil, err
		}
		p.stats.Allocated++
	}
	p.live[rt.NativePtr()] = struct{}{}

	return &pooledRenderTarget{
		RenderTarget: rt,
		release: destroyFunc{func() {
			p.put(key, rt)
		}},
	}, nil
}

func (p *TexturePool) put(key poolKey, rt compositor.RenderTarget) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	ptr := rt.NativePtr()
	if _, found := p.live[ptr]; !found {
		abort("Render target %s returned to the pool twice", ptr)
	}
	delete(p.live, ptr)

	if !p.noCopy.Alive() {
		rt.Destroy()
		return
	}
	s, found := p.free[key]
	if !found {
		s = &container.Stack[compositor.RenderTarget]{}
		p.free[key] = s
	}
	s.Push(rt)
	p.stats.Free++
}

func (p *TexturePool) NewDisplayTextures(count int, size native.Resolution, layers int32) ([]compositor.RenderTarget, error) {
	p.noCopy.Check()
	return p.inner.NewDisplayTextures(count, size, layers)
}

func (p *TexturePool) Stats() PoolStats {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.stats
}

// Release destroys every free render target, targets still in use are destroyed once they are returned.
func (p *TexturePool) Release() {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.noCopy.Check()

	for key, s := range p.free {
		for !s.Empty() {
			s.Pop().Destroy()
		}
		delete(p.free, key)
	}
	p.stats.Free = 0
	p.noCopy.Close()
}
