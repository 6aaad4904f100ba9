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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringloop/ringloop/internal/iouring"
)

func TestContextStartTwiceReturnsProgrammerError(t *testing.T) {
	ctx := newContextWithRing(DefaultConfig(), iouring.NewFakeRing(8))
	require.NoError(t, ctx.Start())
	defer func() {
		ctx.Stop()
		ctx.Join()
	}()

	err := ctx.Start()
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeProgrammerError))
}

func TestStopThenJoinReturns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	ctx := newContextWithRing(cfg, iouring.NewFakeRing(8))
	require.NoError(t, ctx.Start())

	ctx.Stop()

	done := make(chan struct{})
	go func() {
		ctx.Join()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("context never stopped")
	}
}

func TestSpawnOnWakesASleepingTargetContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollInterval = 500 * time.Millisecond
	target := newContextWithRing(cfg, iouring.NewFakeRing(64))
	require.NoError(t, target.Start())
	defer func() {
		target.Stop()
		target.Join()
	}()

	// Give the drive loop a moment to settle into WaitForCompletion with an
	// empty ready queue before posting cross-thread work.
	time.Sleep(20 * time.Millisecond)

	doneCh := make(chan struct{})
	SpawnOn(target, func(tk *T) int {
		close(doneCh)
		return 0
	})

	select {
	case <-doneCh:
	case <-time.After(1 * time.Second):
		t.Fatal("cross-context spawn never ran")
	}
	assert.GreaterOrEqual(t, target.WakeAttempts(), int64(1))
}

func TestFnQueueFIFOOrder(t *testing.T) {
	var q fnQueue
	var order []int
	q.push(func() { order = append(order, 1) })
	q.push(func() { order = append(order, 2) })
	q.push(func() { order = append(order, 3) })

	require.Equal(t, 3, q.len())
	q.pop()()
	q.pop()()
	q.pop()()

	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, q.len())
}
