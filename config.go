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

import "time"

// Config configures one Context (and, when used through a Pool, every
// Context the Pool creates shares the same Config).
type Config struct {
	// RingDepth is the submission queue depth passed to the kernel at ring
	// setup. A power of two is recommended; the kernel rounds up otherwise.
	RingDepth uint32

	// Contexts is the number of worker contexts a Pool creates. Unused when
	// constructing a bare Context directly.
	Contexts int

	// PollInterval bounds how long a drive loop iteration may block in
	// wait_for_completion when no timer is sooner, so a stopped context
	// notices within one extra iteration even with nothing else to wake it.
	PollInterval time.Duration

	// InboxDrainQuota bounds how many cross-thread inbox entries the drive
	// loop's step 3 pulls per iteration, so a saturated inbox can't starve
	// timer and I/O resumption.
	InboxDrainQuota int

	// ResumeQuota bounds how many ready-queue entries the drive loop's
	// step 4 resumes per iteration, for the same reason.
	ResumeQuota int

	// OverflowWarnThreshold is how deep the submission overflow queue may
	// grow before a warning is logged. Zero disables the warning.
	OverflowWarnThreshold int

	// Logger receives structured operational log lines. Defaults to a
	// no-op logger when nil.
	Logger Logger
}

// DefaultConfig returns sensible defaults for a single context handling a
// moderate connection count.
func DefaultConfig() Config {
	return Config{
		RingDepth:             256,
		Contexts:              1,
		PollInterval:          100 * time.Millisecond,
		InboxDrainQuota:       256,
		ResumeQuota:           1024,
		OverflowWarnThreshold: 64,
		Logger:                nil,
	}
}

func (c Config) logger() Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return noopLogger
}
