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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"goarrg.com/debug"

	"goarrg.com/xr/compositor"
	"goarrg.com/xr/compositor/managed"
	"goarrg.com/xr/compositor/native"
	"goarrg.com/xr/compositor/native/sim"
)

var flags flag.FlagSet

type failure struct {
	op     string
	result native.Result
}

type failures []failure

func (f *failures) UnmarshalText(data []byte) error {
	str := string(data)
	i := strings.Index(str, "=")
	if i <= 0 {
		return debug.Errorf("Failure not in the format \"op=result\"")
	}
	r, ok := native.ParseResult(str[i+1:])
	if !ok {
		return debug.Errorf("Invalid result: %q", str[i+1:])
	}
	*f = append(*f, failure{op: str[:i], result: r})
	return nil
}

func (f failures) MarshalText() (text []byte, err error) {
	str := ""
	for _, i := range f {
		str += fmt.Sprintf("%s=%s\n", i.op, i.result)
	}
	return ([]byte)(strings.TrimSuffix(str, "\n")), nil
}

type tracker struct {
	frame uint64
	api   *sim.API
}

func (t *tracker) SessionRunning() bool { return true }

func (t *tracker) HeadPose() mgl32.Mat4 {
	// slow sweep so quads move in and out of view
	angle := float32(t.frame%720) * (mgl32.DegToRad(0.5))
	return mgl32.Translate3D(0, 1.6, 0).Mul4(mgl32.HomogRotate3DY(angle))
}

func (t *tracker) EyeFromHead(eye native.Eye) mgl32.Mat4 {
	if eye == native.EyeLeft {
		return mgl32.Translate3D(-0.032, 0, 0)
	}
	return mgl32.Translate3D(0.032, 0, 0)
}

func (t *tracker) EyeFov(native.Eye) native.Fov4f {
	return native.Fov4f{Left: -0.9, Right: 0.9, Top: 0.9, Bottom: -0.9}
}

func (t *tracker) DisplayResolution() native.Resolution { return native.Resolution{X: 1920, Y: 1920} }
func (t *tracker) WorldOffset() mgl32.Mat4              { return mgl32.Ident4() }

func (t *tracker) PresentTime() uint64 {
	return (t.frame + 1) * t.api.DisplayPeriod
}

type hostTexture struct {
	ptr  native.BufferHandle
	size native.Resolution
}

func (t *hostTexture) NativePtr() native.BufferHandle { return t.ptr }
func (t *hostTexture) Size() native.Resolution        { return t.size }
func (t *hostTexture) Destroy()                       {}

type hostAllocator struct {
	mtx  sync.Mutex
	next native.BufferHandle
}

func (a *hostAllocator) NewRenderTarget(name string, size native.Resolution, format native.TextureFormat) (compositor.RenderTarget, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.next += 0x1000
	debug.VPrintf("Allocated %q %dx%d %s at %s", name, size.X, size.Y, format, a.next)
	return &hostTexture{ptr: a.next, size: size}, nil
}

func (a *hostAllocator) NewDisplayTextures(count int, size native.Resolution, layers int32) ([]compositor.RenderTarget, error) {
	ret := make([]compositor.RenderTarget, count)
	for i := range ret {
		rt, err := a.NewRenderTarget(fmt.Sprintf("display[%d]", i), size, native.TextureFormatRGBA8)
		if err != nil {
			return nil, err
		}
		ret[i] = rt
	}
	return ret, nil
}

func main() {
	debug.SetLevel(debug.LogLevelWarn)

	flags.Usage = help
	flags.Init("", flag.ExitOnError)

	v := flags.Bool("v", false, "Verbose - Print high level tasks")
	vv := flags.Bool("vv", false, "Very Verbose - Print everything")

	frames := flags.Int("frames", 120, "Number of frames to composite.")
	overlays := flags.Int("overlays", 4, "Number of quad overlays in the scene.")
	video := flags.Bool("video", false, "Adds a projection overlay backed by an external surface fed from a producer goroutine.")
	multithread := flags.Bool("multithread", true, "Runs render thread commands on a dedicated OS thread.")
	multiview := flags.Bool("multiview", false, "Composites both eyes from one texture array.")
	out := flags.String("out", "", "Writes the final compositor state as json to the file instead of stdout.")

	fail := failures{}
	flags.TextVar(&fail, "fail", failures{}, "Makes a native call fail in the format \"op=result\", e.g. \"SwapchainCreate=ErrorFailure\".")

	err := flags.Parse(os.Args[1:])
	if err != nil {
		panic(err)
	}

	if *v {
		debug.SetLevel(debug.LogLevelInfo)
	} else if *vv {
		debug.SetLevel(debug.LogLevelVerbose)
	}

	if len(flags.Args()) > 0 {
		debug.EPrintf("compositorsim does not take positional arguments.")
		help()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	api := sim.New()
	for _, f := range fail {
		debug.IPrintf("Injecting %s for %q", f.result, f.op)
		api.Fail(f.op, f.result)
	}

	config := compositor.DefaultConfig()
	config.UseMultiThread = *multithread
	config.Multiview = *multiview
	config.ValidateFrames = true

	thread := compositor.NewRenderThread(config)
	defer thread.Release()
	renderer := compositor.NewRenderer(api, thread)
	defer renderer.Destroy()

	t := &tracker{api: api}
	pool := managed.NewTexturePool(&hostAllocator{})
	defer pool.Release()

	m, err := compositor.NewManager(api, renderer, t, pool, nil, config)
	if err != nil {
		panic(err)
	}
	defer m.Destroy()

	if err := renderer.Create(); err != nil {
		panic(err)
	}
	renderer.Start()

	scene := buildScene(*overlays)
	for _, o := range scene {
		if err := m.Add(o); err != nil {
			debug.EPrintf("Failed to add %q: %v", o.Name(), err)
		}
	}

	var feeder *managed.SurfaceFeeder
	if *video {
		feeder = startVideo(ctx, m)
		defer func() {
			if err := feeder.Close(); err != nil {
				debug.EPrintf("Video producer failed: %v", err)
			}
		}()
	}

	debug.IPrintf("Compositing %d frames", *frames)
	for ; t.frame < uint64(*frames) && ctx.Err() == nil; t.frame++ {
		// churn the scene so allocation and release run under load
		if len(scene) > 0 && t.frame == uint64(*frames)/2 {
			o := scene[0]
			m.Remove(o)
			o.SetTransform(mgl32.Translate3D(0, 0, -1).Mul4(mgl32.Scale3D(0.2, 0.2, 1)), true)
			if err := m.Add(o); err != nil {
				debug.EPrintf("Failed to re-add %q: %v", o.Name(), err)
			}
		}
		if feeder != nil {
			if _, err := feeder.Pump(m); err != nil {
				debug.WPrintf("Video frame rejected: %v", err)
			}
		}
		if err := m.Tick(); err != nil {
			debug.EPrintf("Frame %d: %v", t.frame, err)
		}
	}
	thread.Flush()

	j, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	buff := bytes.Buffer{}
	if err := json.Indent(&buff, j, "", "\t"); err != nil {
		panic(err)
	}
	buff.WriteString("\n")

	if *out == "" {
		os.Stdout.Write(buff.Bytes())
		return
	}
	debug.IPrintf("Writing state to: %q", *out)
	if err := os.WriteFile(*out, buff.Bytes(), 0o644); err != nil {
		panic(err)
	}
}

func buildScene(count int) []*compositor.ContentOverlay {
	alloc := &hostAllocator{next: 0x7000_0000}
	scene := make([]*compositor.ContentOverlay, 0, count)
	for i := 0; i < count; i++ {
		size := native.Resolution{X: 512, Y: 512 >> (i % 3)}
		src, _ := alloc.NewRenderTarget(fmt.Sprintf("panel[%d]", i), size, native.TextureFormatRGBA8)
		x := float32(i-count/2) * 0.6
		o := compositor.NewContentOverlay(fmt.Sprintf("panel[%d]", i), compositor.ContentOverlayInfo{
			CompositionDepth: count - i,
			Texture:          src,
			// every other panel is redrawn each frame
			Dynamic: i%2 == 1,
			Model:   mgl32.Translate3D(x, 1.5, -2).Mul4(mgl32.Scale3D(0.5, 0.5*float32(size.Y)/float32(size.X), 1)),
		})
		o.OnBufferChanged = func(t compositor.Texture) {
			debug.VPrintf("%s draws into %s", o.Name(), t.NativePtr())
		}
		scene = append(scene, o)
	}
	return scene
}

func startVideo(ctx context.Context, m *compositor.Manager) *managed.SurfaceFeeder {
	o := compositor.NewContentOverlay("video", compositor.ContentOverlayInfo{
		CompositionDepth:    -1,
		ExternalSurface:     true,
		ExternalSurfaceSize: native.Resolution{X: 1920, Y: 1080},
		Dynamic:             true,
		Projection:          true,
	})
	o.OnSurfaceCreated = func(s native.SurfaceHandle) {
		debug.IPrintf("Video surface ready: 0x%X", uintptr(s))
	}
	if err := m.Add(o); err != nil {
		panic(err)
	}

	f := managed.NewSurfaceFeeder(ctx, o, 4)
	f.Go(func(ctx context.Context, emit func(managed.SurfaceSample) bool) error {
		for ts := int64(0); ; ts += 33_333_333 {
			ok := emit(managed.SurfaceSample{
				Poses:     []mgl32.Mat4{mgl32.Translate3D(-0.032, 0, 0), mgl32.Translate3D(0.032, 0, 0)},
				Eyes:      []native.Eye{native.EyeLeft, native.EyeRight},
				Timestamp: ts,
			})
			if !ok {
				return nil
			}
		}
	})
	return f
}

func help() {
	fmt.Fprintf(os.Stderr, "compositorsim drives the overlay compositor against the simulated native runtime\n"+
		"and prints the final compositor state as json.\n"+
		"\nNative failures can be injected by name to watch allocation rollback and frame drops.\n"+
		"\n")
	args := ""
	flags.VisitAll(func(f *flag.Flag) {
		n, u := flag.UnquoteUsage(f)
		if f.DefValue != "" {
			u += "\n\nDefaults to \"" + f.DefValue + "\"."
		}
		args += "\t-" + f.Name + " " + n + "\n\t\t" + strings.ReplaceAll(strings.TrimSpace(u), "\n", "\n\t\t") + "\n"
	})
	fmt.Fprintf(os.Stderr, "Usage:\n\t%s [arguments]\n\nArguments:\n%s", filepath.Base(os.Args[0]), args)
}
