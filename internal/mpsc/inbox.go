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

// Package mpsc is the cross-thread handoff queue an execution context
// drains once per drive-loop iteration. Any number of foreign goroutines
// may Push concurrently; only the context's own loop goroutine may call
// PopAll, making this a classic multi-producer, single-consumer queue.
package mpsc

import "github.com/bytedance/gopkg/collection/lscq"

// Inbox is a lock-free MPSC queue of thunks. It wraps bytedance/gopkg's
// lock-free queue rather than hand-rolling a Michael-Scott or ring-based
// variant: the underlying LSCQ already handles the ABA-safe CAS loop a
// correct lock-free queue needs.
type Inbox struct {
	q *lscq.Queue[func()]
}

// NewInbox returns an empty Inbox.
func NewInbox() *Inbox {
	return &Inbox{q: lscq.NewQueue[func()]()}
}

// Push enqueues fn for later execution by the owning context. Safe to call
// from any goroutine, including concurrently from many.
func (ib *Inbox) Push(fn func()) {
	ib.q.Enqueue(fn)
}

// PopAll drains every thunk currently queued, appending to out and
// returning the extended slice. Must only be called from the owning
// context's loop goroutine. Thunks pushed concurrently with a PopAll call
// may or may not be observed by that call; they are guaranteed to be
// observed by some later call.
func (ib *Inbox) PopAll(out []func()) []func() {
	for {
		fn, ok := ib.q.Dequeue()
		if !ok {
			return out
		}
		out = append(out, fn)
	}
}
