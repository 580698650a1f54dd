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

// Package sysreg computes the system register values programmed into a
// secure partition's EL1&0 execution regime.
//
// Every value is built through Reg, which enumerates the bits the monitor
// owns in that register. A built value is a pure function of its inputs: no
// owned bit is ever derived from the register's previous contents.
package sysreg

import (
	"github.com/usbarmory/tamago/bits"
)

// SCTLR_EL1 bit positions (ARMv8-A, D13.2.118)
const (
	SCTLR_M    = 0  // MMU enable
	SCTLR_A    = 1  // alignment fault checking
	SCTLR_C    = 2  // data cacheability
	SCTLR_SA0  = 4  // EL0 stack pointer alignment check
	SCTLR_UMA  = 9  // EL0 DAIF access
	SCTLR_I    = 12 // instruction cacheability
	SCTLR_DZE  = 14 // EL0 DC ZVA
	SCTLR_UCT  = 15 // EL0 CTR_EL0 access
	SCTLR_NTWI = 16 // no WFI trap from EL0
	SCTLR_NTWE = 18 // no WFE trap from EL0
	SCTLR_WXN  = 19 // writable implies execute-never
	SCTLR_E0E  = 24 // EL0 data endianness
	SCTLR_UCI  = 26 // EL0 cache maintenance instructions
)

// CPACR_EL1 FPEN field
const (
	CPACR_FPEN         = 20
	CPACR_FPEN_MASK    = 0b11
	CPACR_FP_TRAP_NONE = 0b11
)

// CNTKCTL_EL1 bit positions
const (
	CNTKCTL_EL0PCTEN = 0 // EL0 physical counter access
	CNTKCTL_EL0VCTEN = 1 // EL0 virtual counter access
	CNTKCTL_EL0VTEN  = 8 // EL0 virtual timer access
	CNTKCTL_EL0PTEN  = 9 // EL0 physical timer access
)

// PSTATE (SPSR) encoding
const (
	PSR_MODE_EL0T = 0x0
	PSR_MODE_MASK = 0xf

	PSR_F = 6 // FIQ mask
	PSR_I = 7 // IRQ mask
	PSR_A = 8 // SError mask
	PSR_D = 9 // debug mask
)

// Reg accumulates the owned bits of one system register.
type Reg struct {
	set   uint64
	clear uint64
}

// Set marks the given bit positions as owned and driven to 1.
func (r *Reg) Set(pos ...int) *Reg {
	for _, p := range pos {
		bits.Set64(&r.set, p)
		bits.Clear64(&r.clear, p)
	}
	return r
}

// Clear marks the given bit positions as owned and driven to 0.
func (r *Reg) Clear(pos ...int) *Reg {
	for _, p := range pos {
		bits.Set64(&r.clear, p)
		bits.Clear64(&r.set, p)
	}
	return r
}

// SetField marks the masked field at pos as owned and inserts val.
func (r *Reg) SetField(pos int, mask int, val uint64) *Reg {
	bits.SetN64(&r.set, pos, mask, val)
	bits.SetN64(&r.clear, pos, mask, ^val&uint64(mask))
	return r
}

// Owned returns the mask of bits this register value drives.
func (r *Reg) Owned() uint64 {
	return r.set | r.clear
}

// Value returns the register value with every owned bit explicit and all
// unowned bits zero.
func (r *Reg) Value() uint64 {
	return r.set
}

// Apply merges the owned bits into prev, leaving unowned bits untouched. The
// result restricted to Owned() is identical for any prev.
func (r *Reg) Apply(prev uint64) uint64 {
	return (prev &^ r.Owned()) | r.set
}

// SCTLREL1 returns the partition's system control register: caches and MMU
// on, writable regions forced execute-never, EL0 granted cache maintenance,
// CTR reads, DC ZVA and untrapped WFI/WFE, SP alignment checking at EL0,
// little-endian EL0 data accesses, no alignment faulting (the partition ABI
// permits unaligned access), DAIF access trapped.
func SCTLREL1() *Reg {
	r := &Reg{}
	r.Set(SCTLR_UCI, SCTLR_WXN, SCTLR_NTWI, SCTLR_NTWE, SCTLR_UCT,
		SCTLR_DZE, SCTLR_SA0, SCTLR_C, SCTLR_I, SCTLR_M)
	r.Clear(SCTLR_E0E, SCTLR_A, SCTLR_UMA)
	return r
}

// CPACREL1 returns the access control register granting the partition
// untrapped FP/SIMD. The monitor does not save or restore FP/SIMD state
// across world switches; preserving it is the partition's responsibility.
func CPACREL1() *Reg {
	r := &Reg{}
	r.SetField(CPACR_FPEN, CPACR_FPEN_MASK, CPACR_FP_TRAP_NONE)
	return r
}

// CNTKCTLEL1 returns the timer control register granting EL0 read access to
// the physical and virtual counters and timers.
func CNTKCTLEL1() *Reg {
	r := &Reg{}
	r.Set(CNTKCTL_EL0PCTEN, CNTKCTL_EL0VCTEN, CNTKCTL_EL0PTEN, CNTKCTL_EL0VTEN)
	return r
}

// SPSREL0 returns the entry PSTATE: EL0 with SP_EL0 selected and all
// asynchronous exceptions masked.
func SPSREL0() uint64 {
	r := &Reg{}
	r.SetField(0, PSR_MODE_MASK, PSR_MODE_EL0T)
	r.Set(PSR_D, PSR_A, PSR_I, PSR_F)
	return r.Value()
}
