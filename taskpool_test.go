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
)

func TestTaskPanicPoolGuardRecoversAndCounts(t *testing.T) {
	p := newTaskPanicPool(noopLogger)

	panicked := p.guard(func() { panic("boom") })
	assert.True(t, panicked)
	assert.EqualValues(t, 1, p.PanicCount())

	panicked = p.guard(func() {})
	assert.False(t, panicked)
	assert.EqualValues(t, 1, p.PanicCount())
}

func TestTaskPanicPoolCustomHandlerOverridesDefaultLogging(t *testing.T) {
	p := newTaskPanicPool(noopLogger)

	var got interface{}
	p.SetPanicHandler(func(r interface{}) { got = r })

	p.guard(func() { panic("custom") })

	require.Equal(t, "custom", got)
	assert.EqualValues(t, 1, p.PanicCount())
}

func TestTaskPanicPoolReportWithoutGuardStillCounts(t *testing.T) {
	p := newTaskPanicPool(noopLogger)
	p.report("direct report")
	assert.EqualValues(t, 1, p.PanicCount())
}
