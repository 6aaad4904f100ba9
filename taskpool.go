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
	"fmt"
	"runtime/debug"
	"sync/atomic"
)

// taskPanicPool reports panics from detached task bodies so one failing
// task can never take down its owning context's drive-loop goroutine. The
// panic itself is recovered on the task's own fiber goroutine
// (Task.ensureStarted) and handed to report by Task.finish; guard offers
// the same recover-and-report around an arbitrary function. This isn't a
// worker pool in the gopool/goroutine-per-submission sense: each context
// owns one, and it starts no goroutines of its own.
type taskPanicPool struct {
	log     Logger
	handler func(r interface{})
	count   int64
}

func newTaskPanicPool(log Logger) *taskPanicPool {
	return &taskPanicPool{log: log}
}

// SetPanicHandler overrides how a detached task's panic is reported. By
// default it's logged as an error-level event and swallowed, matching
// spec-level semantics: "detached task failures are logged and swallowed
// (no process exit)".
func (p *taskPanicPool) SetPanicHandler(f func(r interface{})) {
	p.handler = f
}

// guard runs f, recovering any panic and routing it to report. It returns
// whether a panic occurred.
func (p *taskPanicPool) guard(f func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			p.reportWithStack(r, debug.Stack())
		}
	}()
	f()
	return false
}

// report routes an already-recovered panic value from a detached task's
// completion to the configured handler, or to logging by default.
func (p *taskPanicPool) report(r interface{}) {
	p.reportWithStack(r, nil)
}

func (p *taskPanicPool) reportWithStack(r interface{}, stack []byte) {
	atomic.AddInt64(&p.count, 1)
	if p.handler != nil {
		p.handler(r)
		return
	}
	event := p.log.Err().Err(NewError("spawn", ErrCodeTaskPanicked, fmt.Sprint(r)))
	if len(stack) > 0 {
		event = event.Str("stack", string(stack))
	}
	event.Log("detached task panicked")
}

// PanicCount reports how many detached task panics this pool has
// recovered, for tests and diagnostics.
func (p *taskPanicPool) PanicCount() int64 {
	return atomic.LoadInt64(&p.count)
}
