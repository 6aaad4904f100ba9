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

// fiber is Go's stand-in for a compiler-generated coroutine frame: a
// goroutine that runs a task's body, paused and resumed by handing a
// baton back and forth with whichever goroutine is driving it (the
// context's own drive-loop goroutine, or a transitively awaiting fiber).
// Exactly one of {the fiber, its driver} runs at any instant — resume
// blocks the driver until the fiber yields again, and suspend blocks the
// fiber until the driver resumes it — so a context's single-threaded
// invariants hold even though each task is its own goroutine.
type fiber struct {
	resume chan struct{}
	yield  chan struct{}
	done   bool
}

func newFiber() *fiber {
	return &fiber{resume: make(chan struct{}), yield: make(chan struct{})}
}

// start launches the fiber's goroutine. body does not run until the first
// step call; the goroutine blocks immediately waiting for the baton.
func (f *fiber) start(body func()) {
	go func() {
		<-f.resume
		body()
		f.done = true
		f.yield <- struct{}{}
	}()
}

// step hands the baton to the fiber and blocks until it's handed back,
// either because the fiber suspended (via suspend) or because it finished.
func (f *fiber) step() {
	f.resume <- struct{}{}
	<-f.yield
}

// suspend hands the baton back to whoever called step, and blocks until
// step is called again. Must only be called from the fiber's own
// goroutine.
func (f *fiber) suspend() {
	f.yield <- struct{}{}
	<-f.resume
}

// T is the handle a task body receives, used to await other awaitables.
// It identifies both the fiber that can be suspended and the context that
// owns it.
type T struct {
	fiber *fiber
	ctx   *Context
}

// Context returns the execution context this task body is running on.
func (t *T) Context() *Context { return t.ctx }

// suspendUntil registers a wake callback (via register, called
// synchronously before suspending) and then parks the calling fiber.
// Awaitables use this as their single suspension primitive: register
// arms whatever external event will eventually fire wake (an SQE
// completion, a timer, another task finishing), and wake — when called,
// from any context-owning goroutine — re-enqueues this fiber's
// continuation onto the ready queue rather than resuming it inline, so
// every resumption flows through the drive loop's fairness accounting.
func (t *T) suspendUntil(register func(wake func())) {
	fiber := t.fiber
	ctx := t.ctx
	register(func() {
		ctx.enqueueReady(func() { ctx.stepFiber(fiber) })
	})
	fiber.suspend()
}

// Task is a lazily-started, suspendable computation that produces exactly
// one result of type R. Construction does not start it; awaiting or
// spawning it does. A Task belongs to exactly one Context for its entire
// lifetime.
type Task[R any] struct {
	ctx       *Context
	body      func(t *T) R
	fiber     *fiber
	started   bool
	completed bool
	detached  bool
	result    R
	failure   any
	awaiters  []func()
}

// NewTask constructs a Task bound to ctx, lazily running body when first
// started.
func NewTask[R any](ctx *Context, body func(t *T) R) *Task[R] {
	return &Task[R]{ctx: ctx, body: body}
}

// Start begins the task's execution eagerly rather than waiting for the
// first await, matching the spec's context.spawn(task) semantics when the
// result is not needed by the caller. It is a no-op if already started.
func (task *Task[R]) Start() {
	task.ensureStarted()
}

func (task *Task[R]) ensureStarted() {
	if task.started {
		return
	}
	task.started = true
	task.fiber = newFiber()
	handle := &T{fiber: task.fiber, ctx: task.ctx}
	task.fiber.start(func() {
		defer func() {
			if r := recover(); r != nil {
				task.failure = r
			}
		}()
		task.result = task.body(handle)
	})
	task.ctx.stepFiber(task.fiber)
	if task.fiber.done {
		task.finish()
	}
}

func (task *Task[R]) finish() {
	task.completed = true
	awaiters := task.awaiters
	task.awaiters = nil
	for _, wake := range awaiters {
		wake()
	}
	if task.detached && task.failure != nil {
		failure := task.failure
		task.failure = nil
		task.ctx.panicPool.report(failure)
	}
}

// await starts task if necessary, suspending the awaiter's fiber until it
// completes, and returns its result (or propagates its panic).
func (task *Task[R]) await(awaiter *T) R {
	task.ensureStarted()
	if !task.completed {
		awaiter.suspendUntil(func(wake func()) {
			task.awaiters = append(task.awaiters, wake)
		})
	}
	return task.resultOrPanic()
}

func (task *Task[R]) resultOrPanic() R {
	if task.failure != nil {
		panic(task.failure)
	}
	return task.result
}

// Await starts task (if not already started) and suspends awaiter until it
// completes, returning its result. A task whose body panicked re-panics
// into the awaiter at the point of Await.
func Await[R any](awaiter *T, task *Task[R]) R {
	return task.await(awaiter)
}

// Spawn detaches task: it begins running (if not already) and its result
// is discarded. A panic in a detached task's body is logged and swallowed
// rather than propagated anywhere — there is no awaiter left to propagate
// it to.
func Spawn[R any](ctx *Context, body func(t *T) R) *Task[R] {
	task := NewTask(ctx, body)
	task.detached = true
	ctx.enqueueReady(func() { task.ensureStarted() })
	return task
}

// SpawnOn posts task to start on a possibly different context's
// cross-thread inbox, waking it if it may be sleeping. Use this, rather
// than Spawn, to hand work to another worker context.
func SpawnOn[R any](target *Context, body func(t *T) R) *Task[R] {
	task := NewTask(target, body)
	task.detached = true
	target.postToInbox(func() { task.ensureStarted() })
	return task
}

// SpawnFrom detaches body onto the same context the caller's own task t is
// running on, the free-standing form of spawn described for code that
// already holds a *T rather than the *Context it belongs to.
func SpawnFrom[R any](t *T, body func(t *T) R) *Task[R] {
	return Spawn(t.ctx, body)
}

// DetachTask spawns a previously constructed Task, starting it (if
// necessary) detached, discarding its result. Prefer Spawn/SpawnFrom when
// constructing the task fresh; use DetachTask when a Task built elsewhere
// needs to be handed off to run to completion without an awaiter.
func DetachTask[R any](ctx *Context, task *Task[R]) {
	task.detached = true
	ctx.enqueueReady(func() { task.ensureStarted() })
}

// Void is the result type for a task whose only purpose is its side
// effects.
type Void = struct{}

// SharedTask may be awaited more than once; every await before the final
// one yields a copy of the stored result. Awaiting with Move on the last
// remaining reference yields the value and leaves the stored copy
// zero-valued, an intentional "moved-from" state for any further awaits
// reachable only through a separately retained reference.
type SharedTask[R any] struct {
	task     *Task[R]
	refs     int
	consumed bool
}

// NewSharedTask constructs a reference-counted task with refs initial
// observers. Each distinct holder of the SharedTask should have been
// accounted for in refs; Move decrements it and only clears the stored
// value once the last reference moves.
func NewSharedTask[R any](ctx *Context, refs int, body func(t *T) R) *SharedTask[R] {
	return &SharedTask[R]{task: NewTask(ctx, body), refs: refs}
}

// Await returns a copy of the shared result, starting the underlying task
// if necessary.
func (s *SharedTask[R]) Await(awaiter *T) R {
	return s.task.await(awaiter)
}

// Move returns the shared result; if this is the last outstanding
// reference, it also clears the stored copy to R's zero value, so any
// further Await calls through another retained reference observe the
// moved-from state described in the type's doc comment.
func (s *SharedTask[R]) Move(awaiter *T) R {
	v := s.task.await(awaiter)
	if s.refs > 0 {
		s.refs--
	}
	if s.refs == 0 && !s.consumed {
		s.consumed = true
		var zero R
		s.task.result = zero
	}
	return v
}
