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

	"goarrg.com/xr/compositor/native"
)

type ErrorCapacityExceeded struct {
	Max int
}

func (ErrorCapacityExceeded) Is(target error) bool {
	_, ok := target.(ErrorCapacityExceeded)
	return ok
}

func (e ErrorCapacityExceeded) Error() string {
	return fmt.Sprintf("Overlay count exceeds the maximum of %d", e.Max)
}

type ErrorNotReady struct{}

func (ErrorNotReady) Is(target error) bool {
	_, ok := target.(ErrorNotReady)
	return ok
}

func (ErrorNotReady) Error() string {
	return "Compositor Not Ready"
}

/*
ErrorNativeCall is returned when a native call the overlay cannot work without fails.
errors.Is matches any ErrorNativeCall regardless of Op and Result.
*/
type ErrorNativeCall struct {
	Op     string
	Result native.Result
}

func (ErrorNativeCall) Is(target error) bool {
	_, ok := target.(ErrorNativeCall)
	return ok
}

func (e ErrorNativeCall) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Result)
}

type ErrorSurfaceUnavailable struct{}

func (ErrorSurfaceUnavailable) Is(target error) bool {
	_, ok := target.(ErrorSurfaceUnavailable)
	return ok
}

func (ErrorSurfaceUnavailable) Error() string {
	return "External Surface Unavailable"
}
