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

package mempool

import (
	"runtime/debug"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestMallocFree(t *testing.T) {
	for i := 127; i < 1<<20; i += 1000 { // malloc 127B - 1MB, step 1000
		b := Malloc(i)
		Free(b)
	}
}

func TestCap(t *testing.T) {
	sz8k := 8 << 10
	b := Malloc(sz8k)
	require.Greater(t, Cap(b), sz8k)
	Free(b)

	b = Malloc(sz8k - footerLen)
	require.Equal(t, sz8k-footerLen, Cap(b))
	require.Equal(t, sz8k, cap(b))
	Free(b)
}

func TestAppend(t *testing.T) {
	debug.SetGCPercent(-1)
	defer debug.SetGCPercent(100)
	str := "TestAppend"
	b := Malloc(0)
	for i := 0; i < 2000; i++ {
		b = Append(b, []byte(str)...)
	}
	Free(b)

	str = "TestAppendStr"
	b = Malloc(0)
	for i := 0; i < 2000; i++ {
		b = AppendStr(b, str)
	}
	Free(b)
}

func TestFree(t *testing.T) {
	minsz := minBufSize

	Free([]byte{})
	Free(make([]byte, 0, minsz+1))
	Free(make([]byte, minsz-1, minsz))

	b := make([]byte, minsz-footerLen, minsz)
	footer := make([]byte, footerLen)

	Free(b) // magic mismatch

	*(*uint64)(unsafe.Pointer(&footer[0])) = footerMagic | 1
	_ = append(b, footer...)
	Free(b) // index out of class range for this cap

	*(*uint64)(unsafe.Pointer(&footer[0])) = footerMagic | 0
	_ = append(b, footer...)
	Free(b) // all good
}

func Benchmark_AppendStr(b *testing.B) {
	str := "Benchmark_AppendStr"
	b.ReportAllocs()
	b.SetBytes(int64(len(str)))
	b.RunParallel(func(pb *testing.PB) {
		i := 1
		buf := Malloc(1)
		for pb.Next() {
			if i&0xff == 0 {
				Free(buf)
				buf = Malloc(1)
			}
			buf = AppendStr(buf, str)
			i++
		}
		Free(buf)
	})
}
