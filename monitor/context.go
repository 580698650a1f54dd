// Copyright 2025 The Secure Partition Monitor authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package monitor constructs the initial execution state of a secure
// partition: its register context, its EL1&0 translation regime and the
// shared boot information channel. Setup runs once per partition at boot,
// before the partition's first instruction; the returned context is then
// owned by the world-switch dispatcher.
package monitor

import (
	"github.com/secure-monitor/spm/xlat"
)

// RegisterContext holds the register state restored into the partition's
// EL1&0 regime on world switch. Every slot is written during setup; nothing
// is inherited from whatever ran before.
type RegisterContext struct {
	// PC and PState are the entry point and its SPSR.
	PC     uint64
	PState uint64

	// X carries the entry arguments; x0..x3 are the channel description
	// and cookies, x4 and up stay zero.
	X [8]uint64

	// SPEL0 is the partition's initial stack pointer. Non-zero signals
	// that the monitor pre-initialized the stack for this core.
	SPEL0 uint64

	// EL1 system registers.
	SCTLR   uint64
	VBAR    uint64
	CPACR   uint64
	CNTKCTL uint64

	// Translation regime registers, derived from the assembled tables.
	MAIR  uint64
	TCR   uint64
	TTBR0 uint64
}

// PartitionContext is one partition's complete setup product. It is owned
// exclusively by Setup until returned; afterwards only the world-switch
// dispatcher mutates it, one core at a time.
type PartitionContext struct {
	Regs RegisterContext
	Xlat *xlat.Context
}
