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

// awaitable is satisfied by any *Task[R], regardless of R: onComplete
// starts the task if needed and either invokes fn right away (already
// completed) or registers it to run the moment finish() does. Unlike
// suspendUntil's wake, onComplete's fn runs synchronously and inline —
// it's bookkeeping for an aggregate, not a fiber resumption — only the
// aggregate's own final wake (registered via suspendUntil) flows through
// the ready queue.
type awaitable interface {
	onComplete(fn func(result any))
}

func (task *Task[R]) onComplete(fn func(result any)) {
	task.ensureStarted()
	if task.completed {
		fn(task.resultOrPanicAny())
		return
	}
	task.awaiters = append(task.awaiters, func() {
		fn(task.resultOrPanicAny())
	})
}

func (task *Task[R]) resultOrPanicAny() any {
	if task.failure != nil {
		panic(task.failure)
	}
	return task.result
}

func (s *SharedTask[R]) onComplete(fn func(result any)) {
	s.task.onComplete(fn)
}

// All awaits every child to completion and returns their results in
// argument order; the order in which the children themselves complete is
// unspecified. All children are started (if not already) before All
// suspends, so they make progress interleaved with one another rather
// than one at a time.
func All(t *T, children ...awaitable) []any {
	results := make([]any, len(children))
	if len(children) == 0 {
		return results
	}
	pending := len(children)
	var wake func()
	for i, child := range children {
		i := i
		child.onComplete(func(result any) {
			results[i] = result
			pending--
			if pending == 0 && wake != nil {
				wake()
			}
		})
	}
	if pending == 0 {
		return results
	}
	t.suspendUntil(func(w func()) { wake = w })
	return results
}

// Completion is one child's contribution to a Some/Any result: its
// position in the argument list, and its value.
type Completion struct {
	Index int
	Value any
}

// Some awaits until exactly k of children have completed, returning their
// completions in the order they actually finished. The children that
// haven't yet finished when Some resumes keep running and keep writing
// into the internal aggregate state after the fact — those later writes
// are simply discarded, since nothing is left awaiting them. A k of zero
// resolves immediately with no children started.
func Some(t *T, k int, children ...awaitable) []Completion {
	if k <= 0 {
		return nil
	}
	if k > len(children) {
		panic(NewError("some", ErrCodeProgrammerError, "k exceeds number of children"))
	}
	var results []Completion
	remaining := k
	resolved := false
	var wake func()
	for i, child := range children {
		i := i
		child.onComplete(func(result any) {
			if resolved {
				return
			}
			results = append(results, Completion{Index: i, Value: result})
			remaining--
			if remaining == 0 {
				resolved = true
				if wake != nil {
					wake()
				}
			}
		})
	}
	if resolved {
		return results
	}
	t.suspendUntil(func(w func()) { wake = w })
	return results
}

// Any is Some(1, children...), returning the single completion reached
// first.
func Any(t *T, children ...awaitable) Completion {
	return Some(t, 1, children...)[0]
}
