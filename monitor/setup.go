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
	"fmt"

	"k8s.io/klog/v2"

	"github.com/secure-monitor/spm/bootinfo"
	"github.com/secure-monitor/spm/internal/sysreg"
	"github.com/secure-monitor/spm/platform"
	"github.com/secure-monitor/spm/xlat"
)

// Setup builds one secure partition from the platform description: entry
// state, translation regime, system register values and the populated shared
// channel. It runs to completion on the boot core before the partition's
// first instruction; any error aborts the partition without partial handoff.
func Setup(p platform.Platform) (*PartitionContext, *bootinfo.SharedBuffer, error) {
	cfg := p.Config()

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid platform configuration: %w", err)
	}

	klog.Infof("monitor: secure partition setup, image %#x, %d cores max",
		cfg.Map.ImageBase, cfg.MaxCores)

	ctx := &PartitionContext{}

	buildEntry(&ctx.Regs, cfg.Map, p.MyCorePos())

	xc, err := xlat.NewContext(cfg.Caps.MaxGranule, cfg.Caps.PABits, cfg.Caps.VABits,
		cfg.Map.XlatArenaBase, cfg.Map.XlatArenaSize)
	if err != nil {
		return nil, nil, fmt.Errorf("translation context: %w", err)
	}

	// The trampoline comes first so a platform region colliding with it is
	// reported against the platform, not the monitor.
	if err := xc.MapTrampoline(cfg.Map.VectorBase, cfg.Map.VectorSize); err != nil {
		return nil, nil, fmt.Errorf("vector trampoline: %w", err)
	}

	for _, r := range p.Regions() {
		if err := xc.AddRegion(r); err != nil {
			return nil, nil, fmt.Errorf("platform region: %w", err)
		}
	}

	if err := xc.Assemble(); err != nil {
		return nil, nil, fmt.Errorf("table assembly: %w", err)
	}

	mmu, err := xc.DeriveMMUConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("MMU configuration: %w", err)
	}

	ctx.Xlat = xc
	ctx.Regs.MAIR = mmu.MAIR
	ctx.Regs.TCR = mmu.TCR
	ctx.Regs.TTBR0 = mmu.TTBR0

	ctx.Regs.SCTLR = sysreg.SCTLREL1().Value()
	ctx.Regs.CPACR = sysreg.CPACREL1().Value()
	ctx.Regs.CNTKCTL = sysreg.CNTKCTLEL1().Value()
	ctx.Regs.VBAR = cfg.Map.VectorBase

	rec, mp, err := p.BootInfo()
	if err != nil {
		return nil, nil, fmt.Errorf("platform boot information: %w", err)
	}

	buf, err := bootinfo.NewSharedBuffer(cfg.Map.SharedBufBase, cfg.Map.SharedBufSize)
	if err != nil {
		return nil, nil, fmt.Errorf("shared channel: %w", err)
	}

	if err := buf.Populate(rec, mp, p, cfg.MaxCores); err != nil {
		return nil, nil, fmt.Errorf("shared channel: %w", err)
	}

	klog.Infof("monitor: partition ready, entry %#x, tables %#x, channel %#x",
		ctx.Regs.PC, ctx.Regs.TTBR0, buf.Base())

	return ctx, buf, nil
}
