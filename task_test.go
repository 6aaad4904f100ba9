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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringloop/ringloop/internal/iouring"
)

func newTestContext() *Context {
	return newContextWithRing(DefaultConfig(), iouring.NewFakeRing(64))
}

func TestTaskAwaitReturnsResult(t *testing.T) {
	ctx := newTestContext()
	inner := NewTask(ctx, func(tk *T) int { return 42 })

	var got int
	outer := NewTask(ctx, func(tk *T) int {
		got = Await(tk, inner)
		return 0
	})
	outer.Start()

	assert.Equal(t, 42, got)
}

func TestTaskAwaitDoesNotRestartAnAlreadyCompletedTask(t *testing.T) {
	ctx := newTestContext()
	runs := 0
	inner := NewTask(ctx, func(tk *T) int { runs++; return runs })

	outer := NewTask(ctx, func(tk *T) int {
		a := Await(tk, inner)
		b := Await(tk, inner)
		return a + b
	})
	outer.Start()

	assert.Equal(t, 1, runs)
	assert.Equal(t, 2, outer.resultOrPanic())
}

func TestTaskPanicPropagatesToAwaiter(t *testing.T) {
	ctx := newTestContext()
	inner := NewTask(ctx, func(tk *T) int { panic("boom") })
	outer := NewTask(ctx, func(tk *T) int { return Await(tk, inner) })

	outer.Start()
	assert.PanicsWithValue(t, "boom", func() { outer.resultOrPanic() })
}

func TestSpawnDetachedPanicIsRecoveredNotPropagated(t *testing.T) {
	ctx := newTestContext()
	Spawn(ctx, func(tk *T) int { panic("boom") })

	require.Equal(t, 1, ctx.ready.len())
	assert.NotPanics(t, func() { ctx.ready.pop()() })
	assert.EqualValues(t, 1, ctx.panicPool.PanicCount())
}

func TestSharedTaskMoveZeroesStoredValueOnLastReference(t *testing.T) {
	ctx := newTestContext()
	shared := NewSharedTask(ctx, 1, func(tk *T) int { return 7 })

	var a, b, c int
	outer := NewTask(ctx, func(tk *T) int {
		a = shared.Await(tk)
		b = shared.Move(tk)
		c = shared.Move(tk)
		return 0
	})
	outer.Start()

	assert.Equal(t, 7, a)
	assert.Equal(t, 7, b)
	assert.Equal(t, 0, c, "value should be moved-from after the last reference consumes it")
}

func TestSpawnFromUsesCallersContext(t *testing.T) {
	ctx := newTestContext()
	ran := false
	outer := NewTask(ctx, func(tk *T) int {
		SpawnFrom(tk, func(inner *T) int {
			ran = true
			return 0
		})
		return 0
	})
	outer.Start()

	// SpawnFrom enqueues rather than running inline.
	require.Equal(t, 1, ctx.ready.len())
	ctx.ready.pop()()
	assert.True(t, ran)
}
