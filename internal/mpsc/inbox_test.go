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

package mpsc

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInboxPopAllDrainsEverything(t *testing.T) {
	ib := NewInbox()
	const n = 1000
	for i := 0; i < n; i++ {
		ib.Push(func() {})
	}
	out := ib.PopAll(nil)
	assert.Len(t, out, n)
	assert.Empty(t, ib.PopAll(nil))
}

func TestInboxConcurrentProducers(t *testing.T) {
	ib := NewInbox()
	var counter int64
	const producers = 8
	const perProducer = 2000

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				ib.Push(func() { atomic.AddInt64(&counter, 1) })
			}
		}()
	}
	wg.Wait()

	var batch []func()
	for len(batch) < producers*perProducer {
		batch = ib.PopAll(batch)
	}
	for _, fn := range batch {
		fn()
	}
	assert.EqualValues(t, producers*perProducer, atomic.LoadInt64(&counter))
}
