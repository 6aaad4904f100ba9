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
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/ringloop/ringloop/internal/iouring"
	"github.com/ringloop/ringloop/internal/mpsc"
	"github.com/ringloop/ringloop/internal/timer"
)

type contextState int32

const (
	contextConstructed contextState = iota
	contextRunning
	contextStopping
	contextStopped
)

// fnQueue is a FIFO of thunks backed by a single slice, compacted back to
// an empty backing array whenever it's fully drained so a busy context
// doesn't creep memory across millions of iterations.
type fnQueue struct {
	items []func()
	head  int
}

func (q *fnQueue) push(fn func()) { q.items = append(q.items, fn) }

func (q *fnQueue) len() int { return len(q.items) - q.head }

func (q *fnQueue) pop() func() {
	fn := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return fn
}

// pendingSubmission is a fully-described SQE that couldn't be armed
// because the ring's submission queue was momentarily full; Context
// retries these each iteration as slots free up.
type pendingSubmission struct {
	opcode   iouring.Opcode
	fd       int32
	addr     uint64
	length   uint32
	off      uint64
	opFlags  uint32
	userData uint64
}

// Context is a single-threaded execution context: one goroutine drives one
// io_uring instance, one timer wheel, one ready queue, and one cross-thread
// inbox. Every Task bound to a Context runs interleaved on that Context's
// own drive-loop goroutine — concurrency across Contexts comes from running
// more than one, typically one per Pool worker thread.
type Context struct {
	cfg   Config
	ring  iouring.Ring
	timers *timer.Wheel
	inbox  *mpsc.Inbox
	panicPool *taskPanicPool
	log    Logger

	startInstant time.Time

	ready    fnQueue
	overflow []pendingSubmission

	// ringMu guards every access to ring (AcquireSQE/FlushSubmissions),
	// mirroring the teacher's own eventloop ring mutex: the owning
	// drive-loop goroutine takes it just like any other caller, so the one
	// genuinely cross-thread path (wakeRemote, invoked by another
	// context's goroutine via postToInbox) is safe without requiring the
	// ring implementation itself to support concurrent submission.
	ringMu sync.Mutex

	sleeping     int32 // atomic bool: drive loop is blocked in WaitForCompletion
	wakeAttempts int64 // atomic: count of cross-thread wake nops submitted

	state  int32 // atomic contextState
	doneCh chan struct{}
}

// NewContext builds a Context backed by a real Linux io_uring instance of
// the configured depth.
func NewContext(cfg Config) (*Context, error) {
	ring, err := iouring.NewLinuxRing(cfg.RingDepth)
	if err != nil {
		return nil, WrapError("context setup", ErrCodeRingSetup, err)
	}
	return newContextWithRing(cfg, ring), nil
}

// newContextWithRing builds a Context over an already-constructed Ring,
// letting tests substitute iouring.NewFakeRing for a real kernel instance.
func newContextWithRing(cfg Config, ring iouring.Ring) *Context {
	ctx := &Context{
		cfg:          cfg,
		ring:         ring,
		timers:       timer.New(),
		inbox:        mpsc.NewInbox(),
		log:          cfg.logger(),
		startInstant: time.Now(),
		doneCh:       make(chan struct{}),
	}
	ctx.panicPool = newTaskPanicPool(ctx.log)
	return ctx
}

// Logger returns the logger this context was configured with.
func (ctx *Context) Logger() Logger { return ctx.log }

// nowMonotonicNs returns nanoseconds elapsed since the context was
// constructed, comparable to deadlines stored in the timer wheel.
func (ctx *Context) nowMonotonicNs() int64 {
	return int64(time.Since(ctx.startInstant))
}

// toMonotonicNs converts a wall-clock deadline (typically produced via
// time.Now().Add(d)) to the same monotonic-since-start basis the timer
// wheel uses.
func (ctx *Context) toMonotonicNs(t time.Time) int64 {
	return int64(t.Sub(ctx.startInstant))
}

// enqueueReady appends fn to the ready queue. Only ever called from the
// context's own goroutine — either the drive loop itself, or a nested
// fiber that's currently holding the baton.
func (ctx *Context) enqueueReady(fn func()) {
	ctx.ready.push(fn)
}

// stepFiber hands the baton to f and blocks until it yields or finishes.
func (ctx *Context) stepFiber(f *fiber) {
	f.step()
}

// postToInbox is the single cross-thread entry point: any goroutine,
// belonging to this context or otherwise, may call it to schedule fn to
// run on this context's own goroutine. If the context may currently be
// parked in WaitForCompletion, a wake nop is submitted to its ring so it
// doesn't wait out the rest of its poll interval before noticing.
func (ctx *Context) postToInbox(fn func()) {
	ctx.inbox.Push(fn)
	if atomic.LoadInt32(&ctx.sleeping) == 1 {
		ctx.wakeRemote()
	}
}

func (ctx *Context) wakeRemote() {
	atomic.AddInt64(&ctx.wakeAttempts, 1)
	ctx.ringMu.Lock()
	defer ctx.ringMu.Unlock()
	sqe := ctx.ring.AcquireSQE()
	if sqe == nil {
		// Lost wake: the context will still notice the inbox item at its
		// next poll-interval timeout, or the next successful wakeRemote.
		return
	}
	sqe.Opcode = iouring.OpNop
	sqe.UserData = 0 // reserved: "no associated request record"
	if _, err := ctx.ring.FlushSubmissions(); err != nil {
		ctx.log.Warning().Err(err).Log("wake nop submission failed")
	}
}

// WakeAttempts reports how many cross-thread wake nops this context has
// submitted, for tests.
func (ctx *Context) WakeAttempts() int64 {
	return atomic.LoadInt64(&ctx.wakeAttempts)
}

// arm fills the next available SQE with the given operation, or queues it
// onto the overflow list if the ring's submission queue is momentarily
// full. userData is computed from req's address: req must stay reachable
// (it will, via the suspended fiber's own stack — see ioRequest's doc
// comment) until the matching completion is reaped.
func (ctx *Context) arm(opcode iouring.Opcode, fd int32, addr uintptr, length uint32, off uint64, opFlags uint32, req *ioRequest) {
	userData := uint64(uintptr(unsafe.Pointer(req)))
	ctx.ringMu.Lock()
	defer ctx.ringMu.Unlock()
	sqe := ctx.ring.AcquireSQE()
	if sqe == nil {
		ctx.overflow = append(ctx.overflow, pendingSubmission{
			opcode: opcode, fd: fd, addr: uint64(addr), length: length, off: off, opFlags: opFlags, userData: userData,
		})
		return
	}
	fillSQE(sqe, opcode, fd, uint64(addr), length, off, opFlags, userData)
}

func fillSQE(sqe *iouring.SQE, opcode iouring.Opcode, fd int32, addr uint64, length uint32, off uint64, opFlags uint32, userData uint64) {
	sqe.Opcode = opcode
	sqe.Fd = fd
	sqe.Addr = addr
	sqe.Len = length
	sqe.Off = off
	sqe.OpcodeFlags = opFlags
	sqe.UserData = userData
}

// retryOverflowLocked re-attempts every queued overflow submission against
// now-available SQE slots, preserving FIFO order, and logs once the queue's
// depth crosses the configured warn threshold. Caller must hold ringMu.
func (ctx *Context) retryOverflowLocked() {
	i := 0
	for i < len(ctx.overflow) {
		sqe := ctx.ring.AcquireSQE()
		if sqe == nil {
			break
		}
		p := ctx.overflow[i]
		fillSQE(sqe, p.opcode, p.fd, p.addr, p.length, p.off, p.opFlags, p.userData)
		i++
	}
	if i > 0 {
		remaining := len(ctx.overflow) - i
		copy(ctx.overflow, ctx.overflow[i:])
		ctx.overflow = ctx.overflow[:remaining]
	}
	if n := len(ctx.overflow); ctx.cfg.OverflowWarnThreshold > 0 && n >= ctx.cfg.OverflowWarnThreshold {
		ctx.log.Warning().Int("depth", n).Log("submission overflow queue above warn threshold")
	}
}

// drainInbox moves up to the configured quota of pending cross-thread
// thunks onto the ready queue, pushing any excess back onto the inbox for
// a later iteration so one noisy producer can't starve the fairness
// accounting of everything else this iteration.
func (ctx *Context) drainInbox() {
	items := ctx.inbox.PopAll(nil)
	quota := ctx.cfg.InboxDrainQuota
	if quota > 0 && len(items) > quota {
		for _, fn := range items[quota:] {
			ctx.inbox.Push(fn)
		}
		items = items[:quota]
	}
	for _, fn := range items {
		ctx.ready.push(fn)
	}
}

// handleCompletion dispatches one reaped CQE. A zero user-data cookie is
// a bare wake nop with no associated request and is simply dropped;
// anything else recovers the ioRequest the cookie points at and invokes
// its wake callback.
func (ctx *Context) handleCompletion(res iouring.Result) {
	if res.UserData == 0 {
		return
	}
	req := (*ioRequest)(unsafe.Pointer(uintptr(res.UserData)))
	req.result = res.Value
	req.flags = res.Flags
	if req.wake != nil {
		req.wake()
	}
}

// Start launches the context's drive-loop goroutine. It returns an error
// if the context was already started.
func (ctx *Context) Start() error {
	if !atomic.CompareAndSwapInt32(&ctx.state, int32(contextConstructed), int32(contextRunning)) {
		return NewError("start", ErrCodeProgrammerError, "context already started")
	}
	go ctx.driveLoop()
	return nil
}

// Stop requests the drive loop to exit. It returns immediately; the loop
// checks for the request after its flush (step 6) and after its reap
// (step 9), and exits at whichever of those it reaches next — Join blocks
// until it actually has.
func (ctx *Context) Stop() {
	atomic.CompareAndSwapInt32(&ctx.state, int32(contextRunning), int32(contextStopping))
}

// Join blocks until the drive loop has exited.
func (ctx *Context) Join() {
	<-ctx.doneCh
}

// Spawn detaches a task's body to run on this context, per the
// context.spawn(task) free function. It is equivalent to Spawn(ctx, body)
// for callers that already have a *Context in hand rather than a *T.
func (ctx *Context) Spawn(body func(t *T) int) *Task[int] {
	return Spawn(ctx, body)
}

func (ctx *Context) driveLoop() {
	defer close(ctx.doneCh)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	reapBuf := make([]iouring.Result, 128)

	for {
		now := ctx.nowMonotonicNs()

		// 1-2: fire every timer whose deadline has passed.
		ctx.timers.FireExpired(now)

		// 3: drain the cross-thread inbox, bounded by fairness quota.
		ctx.drainInbox()

		// 4: resume ready continuations, bounded by fairness quota.
		resumed := 0
		for resumed < ctx.cfg.ResumeQuota && ctx.ready.len() > 0 {
			fn := ctx.ready.pop()
			fn()
			resumed++
		}

		// 5-6: retry overflowed submissions, then flush.
		ctx.ringMu.Lock()
		ctx.retryOverflowLocked()
		_, flushErr := ctx.ring.FlushSubmissions()
		ctx.ringMu.Unlock()
		if flushErr != nil {
			ctx.log.Warning().Err(flushErr).Log("submission flush failed")
		}

		if ctx.shouldStop() {
			return
		}

		// 7: work remains, don't block this iteration.
		if ctx.ready.len() > 0 {
			continue
		}

		// 8: compute how long we may safely block.
		timeout := ctx.cfg.PollInterval
		if deadline, ok := ctx.timers.NextDeadline(); ok {
			if untilNext := time.Duration(deadline - now); untilNext < timeout {
				timeout = untilNext
			}
		}
		if timeout < 0 {
			timeout = 0
		}

		atomic.StoreInt32(&ctx.sleeping, 1)
		waitErr := ctx.ring.WaitForCompletion(int64(timeout))
		atomic.StoreInt32(&ctx.sleeping, 0)
		if waitErr != nil {
			ctx.log.Warning().Err(waitErr).Log("wait for completion failed")
		}

		// 9: reap whatever's ready into completions.
		for {
			n := ctx.ring.ReapBatch(reapBuf)
			for i := 0; i < n; i++ {
				ctx.handleCompletion(reapBuf[i])
			}
			if n < len(reapBuf) {
				break
			}
		}

		if ctx.shouldStop() {
			return
		}
	}
}

func (ctx *Context) shouldStop() bool {
	return atomic.LoadInt32(&ctx.state) == int32(contextStopping)
}

// Close releases the context's ring. Call only after Join has returned.
func (ctx *Context) Close() error {
	atomic.StoreInt32(&ctx.state, int32(contextStopped))
	return ctx.ring.Close()
}
