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

package iouring

import (
	"sync"
	"time"
)

// fakeRing is an in-memory Ring used by tests that have no kernel io_uring
// to talk to. It accepts any SQE. A nop completes on its own (result 0)
// when it is flushed; every other completion must be injected directly via
// Complete rather than arising from real I/O.
type fakeRing struct {
	mu       sync.Mutex
	depth    uint32
	pending  []SQE
	inflight map[uint64]SQE
	ready    []Result
	waiters  []chan struct{}
	closed   bool
}

// NewFakeRing builds a fakeRing with the given submission queue depth.
func NewFakeRing(depth uint32) Ring {
	return &fakeRing{
		depth:    depth,
		inflight: make(map[uint64]SQE),
	}
}

func (r *fakeRing) AcquireSQE() *SQE {
	r.mu.Lock()
	defer r.mu.Unlock()
	if uint32(len(r.pending)+len(r.inflight)) >= r.depth {
		return nil
	}
	r.pending = append(r.pending, SQE{})
	return &r.pending[len(r.pending)-1]
}

func (r *fakeRing) FlushSubmissions() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.pending)
	for _, sqe := range r.pending {
		r.inflight[sqe.UserData] = sqe
		if sqe.Opcode == OpNop {
			r.ready = append(r.ready, Result{UserData: sqe.UserData, Value: 0})
			delete(r.inflight, sqe.UserData)
		}
	}
	r.pending = r.pending[:0]
	r.wakeLocked()
	return n, nil
}

// Complete injects a completion for a previously-submitted SQE, simulating
// the kernel finishing an operation. Tests drive every non-nop completion
// of fakeRing through this method.
func (r *fakeRing) Complete(userData uint64, value int32, flags uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, userData)
	r.ready = append(r.ready, Result{UserData: userData, Value: value, Flags: flags})
	r.wakeLocked()
}

func (r *fakeRing) wakeLocked() {
	for _, w := range r.waiters {
		close(w)
	}
	r.waiters = nil
}

func (r *fakeRing) WaitForCompletion(timeoutNs int64) error {
	r.mu.Lock()
	if len(r.ready) > 0 || r.closed {
		r.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	r.waiters = append(r.waiters, ch)
	r.mu.Unlock()

	if timeoutNs <= 0 {
		<-ch
		return nil
	}
	t := time.NewTimer(time.Duration(timeoutNs))
	defer t.Stop()
	select {
	case <-ch:
	case <-t.C:
	}
	return nil
}

func (r *fakeRing) ReapBatch(out []Result) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := copy(out, r.ready)
	r.ready = r.ready[n:]
	return n
}

func (r *fakeRing) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.wakeLocked()
	return nil
}
