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
	"time"
	"unsafe"

	"github.com/ringloop/ringloop/internal/iouring"
)

// ioRequest is the fixed-size completion record whose address is the
// kernel user-data cookie: result and flags are populated verbatim from
// the matching CQE, and wake is invoked exactly once when that happens.
//
// Lifetime note: nothing holds a conventional Go pointer to an armed
// ioRequest except the local variable in the call stack of the goroutine
// that's blocked suspending on it. That's sufficient — a parked goroutine
// is itself a GC root, so its stack (and anything it still references,
// including the buffer an in-flight recv/read writes into) stays alive
// for exactly as long as the submission is outstanding, with no need for
// an explicit keep-alive.
type ioRequest struct {
	result int32
	flags  uint32
	wake   func()
}

// IOAwaitable is an unarmed description of a single ring operation: which
// opcode, against which file descriptor, over which buffer. Awaiting it
// arms the submission and suspends until its completion; two IOAwaitables
// can instead be passed to Both to land in the same flush.
type IOAwaitable struct {
	opcode  iouring.Opcode
	fd      int32
	addr    uintptr
	length  uint32
	off     uint64
	opFlags uint32
}

func bufAddr(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

// RecvAwaitable describes a recv(2)-equivalent read from fd into buf.
func RecvAwaitable(fd int32, buf []byte) IOAwaitable {
	return IOAwaitable{opcode: iouring.OpRecv, fd: fd, addr: bufAddr(buf), length: uint32(len(buf))}
}

// SendAwaitable describes a send(2)-equivalent write of buf to fd.
func SendAwaitable(fd int32, buf []byte) IOAwaitable {
	return IOAwaitable{opcode: iouring.OpSend, fd: fd, addr: bufAddr(buf), length: uint32(len(buf))}
}

// AcceptAwaitable describes accepting one connection on listening fd. Its
// result is the new connection's file descriptor, or -errno.
func AcceptAwaitable(fd int32) IOAwaitable {
	return IOAwaitable{opcode: iouring.OpAccept, fd: fd}
}

// ConnectAwaitable describes connecting fd to addr. The kernel reads the
// sockaddr length from the SQE's off field; len stays zero.
func ConnectAwaitable(fd int32, addr Address) IOAwaitable {
	raw := addr.sockaddr()
	return IOAwaitable{opcode: iouring.OpConnect, fd: fd, addr: bufAddr(raw), off: uint64(len(raw))}
}

// ReadAwaitable describes a plain read(2)-equivalent from fd into buf.
func ReadAwaitable(fd int32, buf []byte) IOAwaitable {
	return IOAwaitable{opcode: iouring.OpRead, fd: fd, addr: bufAddr(buf), length: uint32(len(buf))}
}

// WriteAwaitable describes a plain write(2)-equivalent of buf to fd.
func WriteAwaitable(fd int32, buf []byte) IOAwaitable {
	return IOAwaitable{opcode: iouring.OpWrite, fd: fd, addr: bufAddr(buf), length: uint32(len(buf))}
}

// NopAwaitable describes a submission that does nothing but round-trip
// through the ring; useful for wake-ups and for exercising the
// submission/completion path without a real file descriptor.
func NopAwaitable() IOAwaitable {
	return IOAwaitable{opcode: iouring.OpNop, fd: -1}
}

// Await arms io and suspends the calling task until the kernel completes
// it, returning the signed result: non-negative is success (bytes
// transferred, or a new fd for accept), negative is -errno.
func (io IOAwaitable) Await(t *T) int32 {
	req := &ioRequest{}
	t.suspendUntil(func(wake func()) {
		req.wake = wake
		t.ctx.arm(io.opcode, io.fd, io.addr, io.length, io.off, io.opFlags, req)
	})
	return req.result
}

// Recv suspends t until fd has data available or errors, filling buf.
func Recv(t *T, fd int32, buf []byte) int32 { return RecvAwaitable(fd, buf).Await(t) }

// Send suspends t until buf has been written to fd (or the write fails).
func Send(t *T, fd int32, buf []byte) int32 { return SendAwaitable(fd, buf).Await(t) }

// Accept suspends t until a connection arrives on listening fd.
func Accept(t *T, fd int32) int32 { return AcceptAwaitable(fd).Await(t) }

// Connect suspends t until fd's connection to addr completes or fails.
func Connect(t *T, fd int32, addr Address) int32 { return ConnectAwaitable(fd, addr).Await(t) }

// Read suspends t until fd yields bytes into buf (or errors).
func Read(t *T, fd int32, buf []byte) int32 { return ReadAwaitable(fd, buf).Await(t) }

// Write suspends t until buf has been written to fd (or the write fails).
func Write(t *T, fd int32, buf []byte) int32 { return WriteAwaitable(fd, buf).Await(t) }

// Nop round-trips a no-op submission through the ring, primarily useful
// for tests exercising the submission/completion path without a socket.
func Nop(t *T) int32 { return NopAwaitable().Await(t) }

// Timeout suspends t for rel, sugar for TimeoutAt(t, time.Now().Add(rel)).
func Timeout(t *T, rel time.Duration) {
	TimeoutAt(t, time.Now().Add(rel))
}

// TimeoutAt suspends t until the absolute deadline abs. If abs has
// already passed at the moment of suspension, the continuation is
// scheduled onto the ready queue immediately rather than waiting for the
// timer wheel to next be polled.
func TimeoutAt(t *T, abs time.Time) {
	ctx := t.ctx
	deadline := ctx.toMonotonicNs(abs)
	t.suspendUntil(func(wake func()) {
		if deadline <= ctx.nowMonotonicNs() {
			ctx.enqueueReady(wake)
			return
		}
		ctx.timers.Insert(deadline, wake)
	})
}

// Both submits two I/O awaitables in a single batch — both SQEs land in
// the same flush — and resumes the caller only once both have completed.
// Per the design's resolution of an otherwise-unexercised case, one side
// failing never short-circuits the other: both always run to completion.
func Both(t *T, a, b IOAwaitable) (int32, int32) {
	reqA := &ioRequest{}
	reqB := &ioRequest{}
	remaining := 2
	var wake func()
	settle := func() {
		remaining--
		if remaining == 0 && wake != nil {
			wake()
		}
	}
	reqA.wake = settle
	reqB.wake = settle

	t.suspendUntil(func(w func()) {
		wake = w
		t.ctx.arm(a.opcode, a.fd, a.addr, a.length, a.off, a.opFlags, reqA)
		t.ctx.arm(b.opcode, b.fd, b.addr, b.length, b.off, b.opFlags, reqB)
	})
	return reqA.result, reqB.result
}
