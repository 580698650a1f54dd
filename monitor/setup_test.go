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

package monitor

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/secure-monitor/spm/bootinfo"
	"github.com/secure-monitor/spm/platform/virt"
)

func TestSetup(t *testing.T) {
	ctx, buf, err := Setup(virt.New())
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	regs := RegisterContext{
		PC:     virt.ImageBase,
		PState: 0x3c0,
		X: [8]uint64{
			virt.SharedBufBase,
			virt.SharedBufSize,
			0x53504d30,
			0x53504d31,
		},
		SPEL0:   virt.StackBase + virt.PCPUStackSize,
		SCTLR:   0x40dd015,
		VBAR:    virt.VectorBase,
		CPACR:   0x300000,
		CNTKCTL: 0x303,
		MAIR:    0x4400ff,
		TCR:     0x200803510,
		TTBR0:   virt.XlatArenaBase,
	}
	if diff := cmp.Diff(ctx.Regs, regs); diff != "" {
		t.Errorf("register context diff: %s", diff)
	}

	// Entry point and channel are mapped; the table arena itself is not
	// part of the partition address space.
	if _, ok := ctx.Xlat.Walk(virt.ImageBase); !ok {
		t.Errorf("entry point %#x not mapped", uint64(virt.ImageBase))
	}
	if _, ok := ctx.Xlat.Walk(virt.SharedBufBase); !ok {
		t.Errorf("shared channel %#x not mapped", uint64(virt.SharedBufBase))
	}
	if _, ok := ctx.Xlat.Walk(virt.XlatArenaBase); ok {
		t.Errorf("table arena %#x mapped into the partition", uint64(virt.XlatArenaBase))
	}

	rec, mp, err := bootinfo.Decode(buf.Base(), buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got, want := rec.MPInfo, bootinfo.Ref(virt.SharedBufBase+bootinfo.RecordSize); got != want {
		t.Errorf("MP info reference %#x, want %#x", uint64(got), uint64(want))
	}

	want := []bootinfo.MPInfo{
		{MPIDR: 0x0, LinearID: 0, Flags: bootinfo.FlagPrimary},
		{MPIDR: 0x100, LinearID: 1},
		{MPIDR: 0x200, LinearID: 2},
		{MPIDR: 0x300, LinearID: 3},
	}
	if diff := cmp.Diff(mp, want); diff != "" {
		t.Errorf("MP info diff: %s", diff)
	}
}

// Setup on a secondary core hands that core its own stack slice and flags its
// entry primary.
func TestSetupSecondaryCore(t *testing.T) {
	p := virt.New()
	p.Self = 2

	ctx, buf, err := Setup(p)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	if got, want := ctx.Regs.SPEL0, uint64(virt.StackBase+3*virt.PCPUStackSize); got != want {
		t.Errorf("SP_EL0 %#x, want %#x", got, want)
	}

	_, mp, err := bootinfo.Decode(buf.Base(), buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	for i, e := range mp {
		if primary := e.Flags&bootinfo.FlagPrimary != 0; primary != (i == 2) {
			t.Errorf("entry %d primary = %v", i, primary)
		}
	}
}

func TestSetupCoreCountBound(t *testing.T) {
	p := virt.New()
	p.NumCPUs = 5

	if _, _, err := Setup(p); !errors.Is(err, bootinfo.ErrCoreCount) {
		t.Fatalf("Setup: %v, want ErrCoreCount", err)
	}
}

func TestSetupRejectsInvalidConfig(t *testing.T) {
	for _, test := range []struct {
		name    string
		corrupt func(p *virt.Platform)
	}{
		{
			name:    "zero shared buffer",
			corrupt: func(p *virt.Platform) { p.Cfg.Map.SharedBufSize = 0 },
		},
		{
			name:    "zero image base",
			corrupt: func(p *virt.Platform) { p.Cfg.Map.ImageBase = 0 },
		},
		{
			name:    "no cores",
			corrupt: func(p *virt.Platform) { p.Cfg.MaxCores = 0 },
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			p := virt.New()
			test.corrupt(p)

			if _, _, err := Setup(p); err == nil {
				t.Fatal("Setup accepted an invalid configuration")
			}
		})
	}
}

// A platform region colliding with the vector trampoline under different
// attributes aborts setup.
func TestSetupTrampolineCollision(t *testing.T) {
	p := virt.New()
	p.Cfg.Map.ImageBase = virt.VectorBase

	if _, _, err := Setup(p); err == nil {
		t.Fatal("Setup accepted a region colliding with the trampoline")
	}
}
