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

// Package iouring is a minimal, from-scratch binding to the Linux io_uring
// submission/completion interface. It deliberately exposes nothing beyond
// what the scheduler in package ringloop needs: reserve a submission slot,
// flush submissions, block for at least one completion, and drain whatever
// completions are ready. Socket address parsing, DNS, and everything above
// raw file descriptors lives outside this package.
package iouring

import "unsafe"

// Opcode identifies the kind of operation an SQE describes. Only the
// operations ringloop's awaitables need are defined; io_uring itself
// supports many more. Each value is the kernel's IORING_OP_* number, since
// NewLinuxRing hands SQEs to the kernel as they are.
type Opcode uint8

const (
	OpNop     Opcode = 0  // IORING_OP_NOP
	OpTimeout Opcode = 11 // IORING_OP_TIMEOUT
	OpAccept  Opcode = 13 // IORING_OP_ACCEPT
	OpConnect Opcode = 16 // IORING_OP_CONNECT
	OpRead    Opcode = 22 // IORING_OP_READ
	OpWrite   Opcode = 23 // IORING_OP_WRITE
	OpSend    Opcode = 26 // IORING_OP_SEND
	OpRecv    Opcode = 27 // IORING_OP_RECV
)

// setup flags
const (
	SetupCQSize = 1 << 3 // IORING_SETUP_CQSIZE
	SetupClamp  = 1 << 4 // IORING_SETUP_CLAMP
)

// enter flags
const (
	EnterGetEvents = 1 << 0 // IORING_ENTER_GETEVENTS
)

// SQE is a submission queue entry. Its layout must match the kernel's
// io_uring_sqe field-for-field: NewLinuxRing mmaps the kernel's real SQE
// array and slices it directly as []SQE, so every field up to and including
// the trailing padding has to land at the same offset the kernel computed
// when it sized that array at a fixed 64-byte stride. Fields this package
// never populates (IoPrio, BufIndex, Personality, SpliceFdIn) still have to
// exist so the ones after them (and the overall size) land correctly.
type SQE struct {
	Opcode      Opcode
	Flags       uint8
	IoPrio      uint16
	Fd          int32
	Off         uint64 // absolute timeout deadline (ns) for OpTimeout; sockaddr length for OpConnect
	Addr        uint64 // pointer to buffer, iovec, or sockaddr
	Len         uint32 // buffer length, or iovec count
	OpcodeFlags uint32
	UserData    uint64 // cookie, returned verbatim on the matching CQE
	BufIndex    uint16
	Personality uint16
	SpliceFdIn  int32
	_           [2]uint64
}

// The kernel's io_uring_sqe is a fixed 64 bytes regardless of which fields
// this binding populates; AcquireSQE's array indexing (ring.go) and every
// multi-entry submission batch depend on SQE matching that stride exactly.
// Whichever direction SQE's size has drifted from 64, the corresponding
// array length below is a negative constant, which fails to compile.
var (
	_ [64 - unsafe.Sizeof(SQE{})]byte
	_ [unsafe.Sizeof(SQE{}) - 64]byte
)

// CQE is a completion queue entry: the (user-data cookie, result, flags)
// triple every completion carries.
type CQE struct {
	UserData uint64
	Res      int32
	Flags    uint32
}

// Params mirrors io_uring_params, used both as setup input (Flags) and
// kernel output (the ring offsets, Features).
type Params struct {
	SQEntries    uint32
	CQEntries    uint32
	Flags        uint32
	SQThreadCPU  uint32
	SQThreadIdle uint32
	Features     uint32
	WQFd         uint32
	Resv         [3]uint32
	SQOff        SQRingOffsets
	CQOff        CQRingOffsets
}

type SQRingOffsets struct {
	Head        uint32
	Tail        uint32
	RingMask    uint32
	RingEntries uint32
	Flags       uint32
	Dropped     uint32
	Array       uint32
	Resv1       uint32
	Resv2       uint64
}

type CQRingOffsets struct {
	Head        uint32
	Tail        uint32
	RingMask    uint32
	RingEntries uint32
	Overflow    uint32
	CQEs        uint32
	Flags       uint64
	Resv1       uint32
	Resv2       uint64
}

const featSingleMmap = 1 << 0

func sizeofSQE() uintptr { return unsafe.Sizeof(SQE{}) }
func sizeofCQE() uintptr { return unsafe.Sizeof(CQE{}) }
