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
	"github.com/secure-monitor/spm/internal/sysreg"
	"github.com/secure-monitor/spm/platform"
)

// buildEntry writes the partition's entry state: PC at the image base,
// PSTATE targeting EL0 with asynchronous exceptions masked, the channel
// description and cookies in x0..x3 and the core's pre-initialized stack in
// SP_EL0. x4 and up are written to zero so no monitor state leaks into the
// partition.
func buildEntry(regs *RegisterContext, m platform.MemoryMap, core int) {
	regs.PC = m.ImageBase
	regs.PState = sysreg.SPSREL0()

	regs.X[0] = m.SharedBufBase
	regs.X[1] = m.SharedBufSize
	regs.X[2] = m.Cookie0
	regs.X[3] = m.Cookie1
	for i := 4; i < len(regs.X); i++ {
		regs.X[i] = 0
	}

	// Stacks grow down; each core's stack top is the base of the next
	// core's slice.
	regs.SPEL0 = m.StackBase + uint64(core+1)*m.PCPUStackSize
}
