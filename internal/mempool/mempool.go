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

// Package mempool is a size-bucketed buffer allocator for the byte slices
// recv/send/read/write awaitables hand to the kernel. Every buffer handed
// out must stay alive and unmoved from the moment its SQE is submitted
// until the matching CQE arrives, which rules out a plain sync.Pool per
// call site (too many distinct sizes) and rules out letting the GC move or
// reclaim it early. Pooling by power-of-two size class keeps allocations
// rare without needing the caller to know its size class up front.
package mempool

import (
	"math/bits"
	"sync"
	"unsafe"
)

type sizeClass struct {
	sync.Pool

	Size int
}

var classes []*sizeClass

const (
	// minBufSize is one page: the smallest recv/read this runtime's socket
	// facade ever pools for, since a single IORING_OP_RECV rarely returns
	// less than that in one completion and every smaller request just eats
	// internal fragmentation for no reuse benefit.
	minBufSize = 4 << 10
	// maxBufSize caps pooling at a handful of megabytes. Awaitables submit
	// one buffer per SQE and this runtime never assembles multi-gigabyte
	// in-flight reads (that's what repeated Recv/Read calls are for), so
	// classes beyond this would sit unused and just inflate bits2idx and
	// per-size-class sync.Pool bookkeeping. Code that genuinely needs a
	// larger one-shot buffer should allocate it directly rather than route
	// through the pool.
	maxBufSize = 4 << 20
)

// DefaultRecvSize is the buffer size Conn.RecvPooled requests when a caller
// has no better estimate of the next read's size. It's large enough to
// absorb a full-size TCP segment reassembled across several packets without
// a mid-recv realloc, and small enough that a context juggling many
// concurrent connections doesn't pin an outsized amount of pooled memory
// per connection.
const DefaultRecvSize = 16 << 10

const (
	// Every buffer Malloc returns carries an 8-byte footer: a 58-bit magic
	// plus a 6-bit size-class index. The footer lives at the tail rather
	// than the head so that Free stays safe no matter what slice header
	// (len, not cap) the caller passes back in.
	footerLen = 8

	footerMagicMask = uint64(0xFFFFFFFFFFFFFFC0)
	footerIndexMask = uint64(0x000000000000003F)
	footerMagic     = uint64(0xBADC0DEBADC0DEC0) // ends in 6 zero bits, reserved for the index
)

// bits2idx maps bits.Len(size) to an index into classes.
var bits2idx [64]int

func init() {
	i := 0
	for sz := minBufSize; sz <= maxBufSize; sz <<= 1 {
		c := &sizeClass{Size: sz}
		c.New = func() interface{} {
			b := make([]byte, 0, c.Size)
			b = b[:c.Size]
			return &b[0]
		}
		classes = append(classes, c)
		bits2idx[bits.Len(uint(c.Size))] = i
		i++
	}
}

func classIndex(sz int) int {
	if sz <= minBufSize {
		return 0
	}
	i := bits2idx[bits.Len(uint(sz))]
	if uint(sz)&(uint(sz)-1) == 0 {
		return i
	}
	return i + 1
}

type sliceHeader struct {
	Data unsafe.Pointer
	Len  int
	Cap  int
}

// Malloc returns a buffer with at least size usable bytes. The buffer's
// true cap is reserved by this package for the footer; use Cap, not cap(),
// to find how far it can be grown in place. Contents are not zeroed.
// Callers must call Free exactly once, and never touch buf afterward.
// A size too large for the biggest size class (maxBufSize, footer
// included) is allocated directly with make: that buffer is not pooled,
// Free ignores it, and Cap panics on it.
func Malloc(size int) []byte {
	if size == 0 {
		return []byte{}
	}
	c := size + footerLen
	if c > maxBufSize {
		return make([]byte, size)
	}
	i := classIndex(c)
	class := classes[i]
	p := class.Get().(*byte)

	ret := []byte{}
	h := (*sliceHeader)(unsafe.Pointer(&ret))
	h.Data = unsafe.Pointer(p)
	h.Len = size
	h.Cap = class.Size

	*(*uint64)(unsafe.Add(h.Data, h.Cap-footerLen)) = footerMagic | uint64(i)
	return ret
}

// Cap returns the size buf may be grown to in place without reallocating.
// It panics if buf was not obtained from Malloc or its length was changed
// through means other than Cap.
func Cap(buf []byte) int {
	if cap(buf)-len(buf) < footerLen || getFooter(buf)&footerMagicMask != footerMagic {
		panic("mempool: buf not allocated by this package, or resized unsafely")
	}
	return cap(buf) - footerLen
}

// Append appends b to a, growing in place when Cap allows it and falling
// back to a fresh Malloc (freeing a) otherwise. Always use the result:
// a = mempool.Append(a, b...).
func Append(a []byte, b ...byte) []byte {
	if cap(a)-len(a)-footerLen > len(b) {
		return append(a, b...)
	}
	return appendSlow(a, b)
}

func appendSlow(a, b []byte) []byte {
	ret := Malloc(len(a) + len(b))
	copy(ret, a)
	copy(ret[len(a):], b)
	Free(a)
	return ret
}

// AppendStr is Append for a string source.
func AppendStr(a []byte, b string) []byte {
	if cap(a)-len(a)-footerLen > len(b) {
		return append(a, b...)
	}
	return appendStrSlow(a, b)
}

func appendStrSlow(a []byte, b string) []byte {
	ret := Malloc(len(a) + len(b))
	copy(ret, a)
	copy(ret[len(a):], b)
	Free(a)
	return ret
}

// Free returns buf to its size class. Safe to call on a slice this package
// didn't allocate: such slices are silently ignored rather than freed.
func Free(buf []byte) {
	c := cap(buf)
	if c < minBufSize {
		return
	}
	if uint(c)&uint(c-1) != 0 {
		return
	}
	size := len(buf)
	if c-size < footerLen {
		return
	}
	footer := getFooter(buf)
	if footer&footerMagicMask != footerMagic {
		return
	}
	i := int(footer & footerIndexMask)
	if i < len(classes) {
		if class := classes[i]; class.Size == c {
			class.Put(&buf[0])
		}
	}
}

func getFooter(buf []byte) uint64 {
	h := (*sliceHeader)(unsafe.Pointer(&buf))
	return *(*uint64)(unsafe.Add(h.Data, h.Cap-footerLen))
}
