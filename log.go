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

func abort(fmt string, args ...any) {
	instance.logger.EPrintf(fmt, args...)
	instance.platform.Abort()
}

/*
check logs a failed native call that the compositor can survive, it returns
false so callers can skip the work that depended on the call.
*/
func check(op string, r native.Result) bool {
	if r == native.Success {
		return true
	}
	instance.logger.EPrintf("%s failed: %s", op, r)
	return false
}

// mustCheck is for calls whose failure leaves an overlay unusable.
func mustCheck(op string, r native.Result) error {
	if r == native.Success {
		return nil
	}
	return ErrorNativeCall{Op: op, Result: r}
}
