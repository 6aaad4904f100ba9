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

// Package ringloop is a Linux io_uring-backed cooperative async runtime:
// one goroutine per Context drives a single ring, a timer wheel, and a
// ready queue, running Tasks that suspend on I/O, timers, or each other
// without blocking their OS thread.
//
// A Context is the unit of execution: construct one with NewContext,
// Start it, and Spawn Tasks onto it. Tasks are built with NewTask and
// awaited with Await (or the combinators All, Some, Any, Both); I/O
// awaitables (Recv, Send, Accept, Connect, Read, Write, Timeout) suspend
// the calling Task until the kernel — or the timer wheel — completes
// them. A Pool runs several Contexts, one per OS thread, and distributes
// detached work across them round-robin.
package ringloop
