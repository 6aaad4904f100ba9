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

package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCursorRoundRobin(t *testing.T) {
	c := NewCursor([]string{"a", "b", "c"})

	var seen []string
	for i := 0; i < 7; i++ {
		item, ok := c.Next()
		assert.True(t, ok)
		seen = append(seen, item)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c", "a"}, seen)
}

func TestCursorOnEmptyCursorReportsNotOK(t *testing.T) {
	c := NewCursor[int](nil)
	_, ok := c.Next()
	assert.False(t, ok)
}

func TestCursorLenReportsItemCount(t *testing.T) {
	c := NewCursor([]int{1, 2, 3, 4})
	assert.Equal(t, 4, c.Len())
}
