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

package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWheelFiresInDeadlineOrder(t *testing.T) {
	w := New()
	var order []int
	w.Insert(30, func() { order = append(order, 3) })
	w.Insert(10, func() { order = append(order, 1) })
	w.Insert(20, func() { order = append(order, 2) })

	w.FireExpired(100)
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, w.Len())
}

func TestWheelOnlyFiresExpired(t *testing.T) {
	w := New()
	fired := 0
	w.Insert(50, func() { fired++ })
	w.Insert(150, func() { fired++ })

	w.FireExpired(100)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, w.Len())

	next, ok := w.NextDeadline()
	require.True(t, ok)
	assert.EqualValues(t, 150, next)

	w.FireExpired(200)
	assert.Equal(t, 2, fired)
	assert.Equal(t, 0, w.Len())
}

func TestWheelCancel(t *testing.T) {
	w := New()
	fired := false
	h := w.Insert(10, func() { fired = true })
	w.Cancel(h)

	w.FireExpired(1000)
	assert.False(t, fired)
	assert.Equal(t, 0, w.Len())

	_, ok := w.NextDeadline()
	assert.False(t, ok)
}

func TestWheelCancelIsIdempotent(t *testing.T) {
	w := New()
	h := w.Insert(10, func() {})
	w.Cancel(h)
	assert.NotPanics(t, func() { w.Cancel(h) })
	assert.NotPanics(t, func() { w.Cancel(Handle(99999)) })
}

func TestWheelNextDeadlineEmpty(t *testing.T) {
	w := New()
	_, ok := w.NextDeadline()
	assert.False(t, ok)
}
