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

func newTestPool(n int) *Pool {
	cfg := DefaultConfig()
	cfg.Contexts = n
	cfg.PollInterval = 5 * time.Millisecond
	contexts := make([]*Context, n)
	for i := range contexts {
		contexts[i] = newContextWithRing(cfg, iouring.NewFakeRing(64))
	}
	return newPoolFromContexts(cfg, contexts)
}

func TestPoolNextRoundRobinsAndWraps(t *testing.T) {
	p := newTestPool(3)
	first := p.Next()
	second := p.Next()
	third := p.Next()
	fourth := p.Next()

	assert.NotSame(t, first, second)
	assert.NotSame(t, second, third)
	assert.Same(t, first, fourth)
}

func TestPoolSpawnDistributesWorkAndCompletes(t *testing.T) {
	p := newTestPool(2)
	require.NoError(t, p.Start())
	defer func() {
		p.Stop()
		p.Join()
	}()

	const n = 4
	doneCh := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		p.Spawn(func(tk *T) int {
			doneCh <- struct{}{}
			return 0
		})
	}
	for i := 0; i < n; i++ {
		select {
		case <-doneCh:
		case <-time.After(2 * time.Second):
			t.Fatal("spawned task never ran")
		}
	}
}
