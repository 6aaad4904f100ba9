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
	"sync"

	"github.com/ringloop/ringloop/internal/ringbuf"
)

// Pool runs cfg.Contexts worker Contexts, each its own goroutine and its
// own io_uring instance, and dispatches SpawnOn calls across them
// round-robin. Accept loops typically live on one context and hand
// accepted connections to the pool via Next, spreading connection
// handling across every worker thread.
type Pool struct {
	cfg      Config
	contexts []*Context

	mu     sync.Mutex
	cursor *ringbuf.Cursor[*Context]
}

// NewPool constructs cfg.Contexts worker contexts sharing cfg, each backed
// by its own real Linux io_uring instance.
func NewPool(cfg Config) (*Pool, error) {
	n := cfg.Contexts
	if n <= 0 {
		n = 1
	}
	contexts := make([]*Context, n)
	for i := 0; i < n; i++ {
		ctx, err := NewContext(cfg)
		if err != nil {
			for _, c := range contexts[:i] {
				c.Close()
			}
			return nil, err
		}
		contexts[i] = ctx
	}
	return newPoolFromContexts(cfg, contexts), nil
}

func newPoolFromContexts(cfg Config, contexts []*Context) *Pool {
	return &Pool{cfg: cfg, contexts: contexts, cursor: ringbuf.NewCursor(contexts)}
}

// Start launches every worker context's drive loop.
func (p *Pool) Start() error {
	for _, ctx := range p.contexts {
		if err := ctx.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Stop requests every worker context to exit its drive loop.
func (p *Pool) Stop() {
	for _, ctx := range p.contexts {
		ctx.Stop()
	}
}

// Join blocks until every worker context's drive loop has exited.
func (p *Pool) Join() {
	for _, ctx := range p.contexts {
		ctx.Join()
	}
}

// Close releases every worker context's ring. Call only after Join.
func (p *Pool) Close() error {
	var first error
	for _, ctx := range p.contexts {
		if err := ctx.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Len reports how many worker contexts this pool runs.
func (p *Pool) Len() int { return len(p.contexts) }

// Next returns the next context in round-robin order.
func (p *Pool) Next() *Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	ctx, ok := p.cursor.Next()
	if !ok {
		return nil
	}
	return ctx
}

// Spawn starts body detached on the pool's next context in round-robin
// order, via SpawnOn (safe to call from any goroutine, including one
// belonging to a different context in the same pool).
func (p *Pool) Spawn(body func(t *T) int) *Task[int] {
	return SpawnOn(p.Next(), body)
}
