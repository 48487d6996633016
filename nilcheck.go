/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

package tiercache

import "reflect"

// isNilViaReflection reports whether v holds a nil pointer, interface,
// slice, map, channel, or function — the set of kinds Go allows to be nil.
// A generic Loader[T] may be instantiated with any of these for a "the
// loader found nothing" sentinel; value kinds (structs, ints, strings)
// cannot be nil and are never treated as a memoizable null result.
func isNilViaReflection(v interface{}) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}
