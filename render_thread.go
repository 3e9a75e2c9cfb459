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
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"goarrg.com/xr/compositor/native"
)

type CommandKind int32

const (
	CommandInitSwapchain CommandKind = iota
	CommandSubmitFrame
	CommandCreateDisplayTextures
	CommandStartRenderer
	CommandPauseRenderer
	CommandResumeRenderer
	CommandDestroy
)

func (k CommandKind) String() string {
	switch k {
	case CommandInitSwapchain:
		return "InitSwapchain"
	case CommandSubmitFrame:
		return "SubmitFrame"
	case CommandCreateDisplayTextures:
		return "CreateDisplayTextures"
	case CommandStartRenderer:
		return "StartRenderer"
	case CommandPauseRenderer:
		return "PauseRenderer"
	case CommandResumeRenderer:
		return "ResumeRenderer"
	case CommandDestroy:
		return "Destroy"
	}
	return fmt.Sprintf("CommandKind(%d)", int32(k))
}

/*
Command is executed on the render thread. Handlers read everything else from
shared state, the issuer must finish writing that state before calling Issue.
*/
type Command struct {
	Kind       CommandKind
	Frame      native.Handle
	Display    *DisplayOverlay
	Destroyers []Destroyer
}

/*
RenderThread owns the graphics context. Commands run in the order they were
issued, either on a goroutine locked to its OS thread or, when the config
disables multithreading, inline inside Issue.
*/
type RenderThread struct {
	mtx      sync.Mutex
	handlers map[CommandKind]func(Command)

	multiThread bool
	commands    chan Command
	pending     sync.WaitGroup
	stop        chan struct{}
	stopped     chan struct{}
	executed    atomic.Uint64

	// issueMtx orders accepting a command against Release.
	issueMtx sync.Mutex
	released bool
}

func NewRenderThread(config Config) *RenderThread {
	config.validate()
	t := &RenderThread{
		handlers:    map[CommandKind]func(Command){},
		multiThread: config.UseMultiThread,
	}
	t.handlers[CommandDestroy] = func(c Command) {
		for _, d := range c.Destroyers {
			d.Destroy()
		}
	}
	if t.multiThread {
		t.commands = make(chan Command, config.RenderQueueSize)
		t.stop = make(chan struct{})
		t.stopped = make(chan struct{})
		go t.loop()
	}
	return t
}

func (t *RenderThread) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.stopped)

	instance.logger.VPrintf("Render thread started")
	for {
		select {
		case c := <-t.commands:
			t.run(c)
			t.pending.Done()
		case <-t.stop:
			instance.logger.VPrintf("Render thread stopped")
			return
		}
	}
}

func (t *RenderThread) run(c Command) {
	t.mtx.Lock()
	h := t.handlers[c.Kind]
	t.mtx.Unlock()

	if h == nil {
		instance.logger.WPrintf("No handler for render thread command %s", c.Kind)
		return
	}
	if c.Kind != CommandSubmitFrame {
		instance.logger.VPrintf("Render thread command: %s", c.Kind)
	}
	h(c)
	t.executed.Add(1)
}

// Handle registers f as the handler of kind, replacing the previous one.
func (t *RenderThread) Handle(kind CommandKind, f func(Command)) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.handlers[kind] = f
}

// Issue queues c, it returns false if c was dropped because the thread was released.
func (t *RenderThread) Issue(c Command) bool {
	t.issueMtx.Lock()
	if t.released {
		t.issueMtx.Unlock()
		instance.logger.WPrintf("Render thread command %s issued after Release, dropping", c.Kind)
		return false
	}
	if t.multiThread {
		t.pending.Add(1)
	}
	t.issueMtx.Unlock()

	if !t.multiThread {
		t.run(c)
		return true
	}
	// Release waits for pending before stopping the loop, so the send is always received
	t.commands <- c
	return true
}

// QueueDestroy runs the destroyers on the render thread after every previously issued command.
func (t *RenderThread) QueueDestroy(destroyers ...Destroyer) {
	if len(destroyers) == 0 {
		return
	}
	t.Issue(Command{Kind: CommandDestroy, Destroyers: destroyers})
}

// Flush blocks until every issued command has executed.
func (t *RenderThread) Flush() {
	if t.multiThread {
		t.pending.Wait()
	}
}

func (t *RenderThread) Executed() uint64 {
	return t.executed.Load()
}

func (t *RenderThread) MultiThreaded() bool {
	return t.multiThread
}

// Release flushes and stops the render thread, it is safe to call more than once.
func (t *RenderThread) Release() {
	t.issueMtx.Lock()
	if t.released {
		t.issueMtx.Unlock()
		return
	}
	t.released = true
	t.issueMtx.Unlock()

	if t.multiThread {
		t.pending.Wait()
		close(t.stop)
		<-t.stopped
	}
}
