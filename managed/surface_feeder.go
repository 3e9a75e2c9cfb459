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
	"context"
	"errors"

	"github.com/go-gl/mathgl/mgl32"
	"goarrg.com/debug"
	"golang.org/x/sync/errgroup"

	"goarrg.com/xr/compositor"
	"goarrg.com/xr/compositor/internal/util"
	"goarrg.com/xr/compositor/native"
)

// SurfaceSample is one frame an external producer finished rendering into the overlay surface.
type SurfaceSample struct {
	Poses     []mgl32.Mat4
	Eyes      []native.Eye
	Timestamp int64
}

/*
SurfaceFeeder connects producers running on their own goroutines to an external
surface overlay. Producers emit samples, Pump forwards them from the goroutine
driving the Manager with a frame index that increases by one per forwarded sample.
*/
type SurfaceFeeder struct {
	noCopy     util.NoCopy
	overlay    *compositor.ContentOverlay
	samples    chan SurfaceSample
	group      *errgroup.Group
	ctx        context.Context
	cancel     context.CancelFunc
	frameIndex int32
	dropped    int
}

func NewSurfaceFeeder(ctx context.Context, overlay *compositor.ContentOverlay, depth int) *SurfaceFeeder {
	if !overlay.ExternalSurface() {
		abort("Overlay %q does not have an external surface", overlay.Name())
	}
	if depth < 1 {
		abort("SurfaceFeeder depth must be >= 1")
	}
	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	f := &SurfaceFeeder{
		overlay: overlay,
		samples: make(chan SurfaceSample, depth),
		group:   group,
		ctx:     ctx,
		cancel:  cancel,
	}
	f.noCopy.Init()
	return f
}

/*
Go starts a producer. emit blocks until the sample is queued and returns false
once the feeder is closed or another producer failed, the producer should then
return.
*/
func (f *SurfaceFeeder) Go(produce func(ctx context.Context, emit func(SurfaceSample) bool) error) {
	f.noCopy.Check()
	f.group.Go(func() error {
		return produce(f.ctx, func(s SurfaceSample) bool {
			if f.ctx.Err() != nil {
				return false
			}
			select {
			case f.samples <- s:
				return true
			case <-f.ctx.Done():
				return false
			}
		})
	})
}

/*
Pump forwards every queued sample to the overlay and returns how many were
accepted. Samples arriving before the overlay is allocated are dropped.
*/
func (f *SurfaceFeeder) Pump(m *compositor.Manager) (int, error) {
	f.noCopy.Check()
	forwarded := 0
	for {
		select {
		case s := <-f.samples:
			err := f.overlay.UpdateExternalSurface(m, s.Poses, s.Eyes, s.Timestamp, f.frameIndex)
			if errors.Is(err, compositor.ErrorNotReady{}) {
				f.dropped++
				continue
			}
			if err != nil {
				return forwarded, debug.ErrorWrapf(err, "Failed to forward surface frame %d", f.frameIndex)
			}
			f.frameIndex++
			forwarded++
		default:
			return forwarded, nil
		}
	}
}

// FrameIndex is the index the next forwarded sample gets.
func (f *SurfaceFeeder) FrameIndex() int32 {
	return f.frameIndex
}

func (f *SurfaceFeeder) Dropped() int {
	return f.dropped
}

// Close stops the producers and returns the first error any of them returned.
func (f *SurfaceFeeder) Close() error {
	f.noCopy.Check()
	f.cancel()
	err := f.group.Wait()
	f.noCopy.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
