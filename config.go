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

	"goarrg.com/gmath"
)

const (
	DefaultMaxOverlays     = 7
	DefaultRenderQueueSize = 16
	DefaultFocusDistance   = 1.4
)

type Config struct {
	// MaxOverlays caps registered overlays, display overlays included.
	MaxOverlays int
	// UseMultiThread runs render thread commands on a dedicated OS thread,
	// otherwise they run inline on the issuing goroutine.
	UseMultiThread bool
	// Multiview composites both eyes from one texture array display overlay.
	Multiview       bool
	RenderQueueSize int
	// ValidateFrames compares the native viewport count of every frame against the expected count.
	ValidateFrames bool
	FocusDistance  float32
}

func DefaultConfig() Config {
	return Config{
		MaxOverlays:     DefaultMaxOverlays,
		UseMultiThread:  true,
		RenderQueueSize: DefaultRenderQueueSize,
		FocusDistance:   DefaultFocusDistance,
	}
}

func (c *Config) MarshalJSON() ([]byte, error) {
	buff := bytes.Buffer{}
	buff.WriteString("{")

	buff.WriteString(fmt.Sprintf("\"MaxOverlays\": %d,", c.MaxOverlays))
	buff.WriteString(fmt.Sprintf("\"UseMultiThread\": %t,", c.UseMultiThread))
	buff.WriteString(fmt.Sprintf("\"Multiview\": %t,", c.Multiview))
	buff.WriteString(fmt.Sprintf("\"RenderQueueSize\": %d,", c.RenderQueueSize))
	buff.WriteString(fmt.Sprintf("\"ValidateFrames\": %t,", c.ValidateFrames))
	buff.WriteString(fmt.Sprintf("\"FocusDistance\": %g,", c.FocusDistance))

	buff.Truncate(buff.Len() - 1)
	buff.WriteString("}")
	return buff.Bytes(), nil
}

func (c *Config) validate() {
	if c.MaxOverlays == 0 {
		c.MaxOverlays = DefaultMaxOverlays
	} else if !gmath.InRange(c.MaxOverlays, 1, 64) {
		abort("Config.MaxOverlays must be in range [1, 64]")
	}
	if c.Multiview && c.MaxOverlays < 1 || !c.Multiview && c.MaxOverlays < 2 {
		abort("Config.MaxOverlays must leave room for the display overlays")
	}
	if c.RenderQueueSize == 0 {
		c.RenderQueueSize = DefaultRenderQueueSize
	} else if c.RenderQueueSize < 0 {
		abort("Config.RenderQueueSize must be >= 1")
	}
	if c.FocusDistance == 0 {
		c.FocusDistance = DefaultFocusDistance
	} else if c.FocusDistance < 0 {
		abort("Config.FocusDistance must be > 0")
	}
}
