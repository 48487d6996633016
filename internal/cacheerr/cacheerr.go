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

// Package cacheerr splits tiercache's errors into the two classes the engine
// treats differently: Misconfiguration errors are surfaced to the caller of
// tiercache.Load/LoadBatch, everything else is a transient fault the engine
// swallows, logs, and falls through to the loader for.
package cacheerr

import (
	"errors"
	"fmt"

	"github.com/go-stack/stack"
)

// MisconfigurationError is returned when a descriptor or backend setting
// cannot be used at all: a key or condition expression that fails to
// evaluate, or an unrecognized remote cache_type. It always carries the
// caller-frame that raised it.
type MisconfigurationError struct {
	Op     string
	Detail string
	frame  stack.Call
	err    error
}

func (e *MisconfigurationError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v (at %+v)", e.Op, e.Detail, e.err, e.frame)
	}
	return fmt.Sprintf("%s: %s (at %+v)", e.Op, e.Detail, e.frame)
}

// Unwrap exposes the wrapped error, if any, to errors.Is/errors.As.
func (e *MisconfigurationError) Unwrap() error { return e.err }

// Misconfiguration constructs a surfaced MisconfigurationError, capturing the
// caller's frame the way the teacher's panics capture a stack trace.
func Misconfiguration(op, detail string, err error) error {
	return &MisconfigurationError{
		Op:     op,
		Detail: detail,
		frame:  stack.Caller(1),
		err:    err,
	}
}

// IsMisconfiguration reports whether err (or any error it wraps) is a
// MisconfigurationError and therefore must be surfaced rather than swallowed.
func IsMisconfiguration(err error) bool {
	var m *MisconfigurationError
	return errors.As(err, &m)
}

// Transient wraps a swallowed, logged-and-continued fault: remote tier I/O,
// codec failures, or a TTL expression that failed to evaluate for one key.
// It is never returned from tiercache.Load; it exists so internal
// packages share one wrapping idiom before logging and falling through.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
