/*
 * Copyright 2025 ringloop Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ringloop

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrCode categorizes structural failures of the runtime itself, as
// opposed to I/O results: a negative recv/send/read/write result is data
// returned to the caller, never wrapped in an Error.
type ErrCode string

const (
	ErrCodeRingSetup          ErrCode = "ring setup failed"
	ErrCodeRingFull           ErrCode = "ring full"
	ErrCodeSubmissionRejected ErrCode = "submission rejected"
	ErrCodeContextStopped     ErrCode = "context stopped"
	ErrCodeProgrammerError    ErrCode = "programmer error"
	ErrCodeTaskPanicked       ErrCode = "task panicked"
)

// Error is the runtime's structured error type. Op names the failing
// operation, Code gives the high-level category, Errno carries the kernel
// errno when one applies, and Inner wraps whatever underlying error (if
// any) caused it.
type Error struct {
	Op    string
	Code  ErrCode
	Errno syscall.Errno
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op == "" {
		return fmt.Sprintf("ringloop: %s", msg)
	}
	if e.Errno != 0 {
		return fmt.Sprintf("ringloop: %s: %s (errno=%d)", e.Op, msg, e.Errno)
	}
	return fmt.Sprintf("ringloop: %s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError builds a structured error with no kernel errno attached.
func NewError(op string, code ErrCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewErrnoError builds a structured error around a kernel errno.
func NewErrnoError(op string, code ErrCode, errno syscall.Errno) *Error {
	return &Error{Op: op, Code: code, Errno: errno, Msg: errno.Error()}
}

// WrapError attaches op/code context to an arbitrary error. If inner is (or
// wraps) an *Error, that error's Code and Errno are kept; otherwise code is
// used as given, and a syscall.Errno found in inner is copied into Errno.
func WrapError(op string, code ErrCode, inner error) *Error {
	if inner == nil {
		return nil
	}
	var ringErr *Error
	if errors.As(inner, &ringErr) {
		return &Error{Op: op, Code: ringErr.Code, Errno: ringErr.Errno, Msg: ringErr.Msg, Inner: inner}
	}
	var errno syscall.Errno
	if errors.As(inner, &errno) {
		return &Error{Op: op, Code: code, Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err (or something it wraps) is a *Error with the
// given code.
func IsCode(err error, code ErrCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
