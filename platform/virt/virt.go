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

// Package virt is the reference platform port: a fixed QEMU virt flavored
// memory map with four cores. It backs the test suite and spmctl; a real
// port replaces the constants with its SoC layout and affinity topology.
package virt

import (
	"fmt"

	"github.com/secure-monitor/spm/bootinfo"
	"github.com/secure-monitor/spm/platform"
	"github.com/secure-monitor/spm/xlat"
)

// Partition memory layout.
const (
	// Secure partition image
	ImageBase = 0x80100000
	ImageSize = 0x00300000 // 3MB

	// Partition heap
	HeapBase = 0x80400000
	HeapSize = 0x00800000 // 8MB

	// Pre-initialized partition stacks
	StackBase     = 0x80f00000
	PCPUStackSize = 0x2000

	// Non-secure communication buffer
	NSCommBufBase = 0x84000000
	NSCommBufSize = 0x00200000 // 2MB

	// Monitor/partition shared channel
	SharedBufBase = 0x86000000
	SharedBufSize = 0x00001000 // 4KB

	// Exception vector trampoline
	VectorBase = 0x07000000
	VectorSize = 0x00001000 // 4KB

	// Monitor-reserved translation table arena
	XlatArenaBase = 0x8e000000
	XlatArenaSize = 0x00100000 // 1MB
)

// Hardware capabilities and topology.
const (
	MaxGranule = 0x1000
	PABits     = 40
	VABits     = 48
	MaxCores   = 4
)

// Platform is the virt port. Fields are exported so tests can describe
// degenerate configurations.
type Platform struct {
	Cfg platform.Config

	// MPIDRs lists the affinity value of each core, by linear index.
	MPIDRs []uint64

	// Self is the linear index of the core running setup.
	Self int

	// NumCPUs is the core count announced in the boot record.
	NumCPUs uint32
}

// New returns the virt platform with its fixed layout and all four cores
// participating, setup running on core 0.
func New() *Platform {
	return &Platform{
		Cfg: platform.Config{
			Map: platform.MemoryMap{
				SharedBufBase: SharedBufBase,
				SharedBufSize: SharedBufSize,
				ImageBase:     ImageBase,
				ImageSize:     ImageSize,
				StackBase:     StackBase,
				PCPUStackSize: PCPUStackSize,
				VectorBase:    VectorBase,
				VectorSize:    VectorSize,
				XlatArenaBase: XlatArenaBase,
				XlatArenaSize: XlatArenaSize,
				Cookie0:       0x53504d30, // "SPM0"
				Cookie1:       0x53504d31, // "SPM1"
			},
			Caps: platform.Capabilities{
				MaxGranule: MaxGranule,
				PABits:     PABits,
				VABits:     VABits,
			},
			MaxCores: MaxCores,
		},
		MPIDRs:  []uint64{0x0, 0x100, 0x200, 0x300},
		NumCPUs: MaxCores,
	}
}

// Config implements platform.Platform.
func (p *Platform) Config() platform.Config {
	return p.Cfg
}

// Regions implements platform.Platform.
func (p *Platform) Regions() []xlat.MemoryRegion {
	m := p.Cfg.Map

	return []xlat.MemoryRegion{
		{Base: m.ImageBase, Size: m.ImageSize, Attr: xlat.Code | xlat.Secure},
		{Base: HeapBase, Size: HeapSize, Attr: xlat.Secure},
		{Base: m.StackBase, Size: uint64(len(p.MPIDRs)) * m.PCPUStackSize, Attr: xlat.Secure},
		{Base: NSCommBufBase, Size: NSCommBufSize},
		{Base: m.SharedBufBase, Size: m.SharedBufSize, Attr: xlat.ReadOnly | xlat.Secure},
	}
}

// BootInfo implements platform.Platform.
func (p *Platform) BootInfo() (*bootinfo.Record, []bootinfo.MPInfo, error) {
	if p.NumCPUs == 0 {
		return nil, nil, fmt.Errorf("no cores described")
	}

	m := p.Cfg.Map

	mp := make([]bootinfo.MPInfo, p.NumCPUs)
	for i := range mp {
		if i < len(p.MPIDRs) {
			mp[i].MPIDR = p.MPIDRs[i]
		} else {
			mp[i].MPIDR = uint64(i) * 0x100
		}
	}

	rec := &bootinfo.Record{
		Version:       bootinfo.Version,
		Flags:         bootinfo.FlagSecure,
		MemBase:       ImageBase,
		MemLimit:      XlatArenaBase + XlatArenaSize,
		ImageBase:     m.ImageBase,
		StackBase:     m.StackBase,
		HeapBase:      HeapBase,
		NSCommBufBase: NSCommBufBase,
		SharedBufBase: m.SharedBufBase,
		ImageSize:     m.ImageSize,
		PCPUStackSize: m.PCPUStackSize,
		HeapSize:      HeapSize,
		NSCommBufSize: NSCommBufSize,
		SharedBufSize: m.SharedBufSize,
		NumMemRegions: uint32(len(p.Regions())),
		NumCPUs:       p.NumCPUs,

		// Monitor-private location of mp prior to relocation into the
		// shared channel.
		MPInfo: bootinfo.Ref(StackBase + uint64(len(p.MPIDRs))*PCPUStackSize),
	}

	return rec, mp, nil
}

// CorePos implements bootinfo.AffinityResolver.
func (p *Platform) CorePos(mpidr uint64) (int, error) {
	for i, m := range p.MPIDRs {
		if m == mpidr {
			return i, nil
		}
	}

	return 0, fmt.Errorf("unknown affinity %#x", mpidr)
}

// MyCorePos implements bootinfo.AffinityResolver.
func (p *Platform) MyCorePos() int {
	return p.Self
}
