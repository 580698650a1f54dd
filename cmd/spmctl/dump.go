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

package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/secure-monitor/spm/bootinfo"
	"github.com/secure-monitor/spm/monitor"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Run partition setup and dump the resulting context",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPlatform()
		if err != nil {
			return err
		}

		ctx, buf, err := monitor.Setup(p)
		if err != nil {
			return err
		}

		fmt.Println(report(ctx, buf))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}

func report(ctx *monitor.PartitionContext, buf *bootinfo.SharedBuffer) string {
	var out bytes.Buffer

	r := ctx.Regs

	out.WriteString("------------------------------------------------------ Entry context ----\n")
	out.WriteString(fmt.Sprintf("Entry point ............: %#x\n", r.PC))
	out.WriteString(fmt.Sprintf("PSTATE .................: %#x\n", r.PState))
	out.WriteString(fmt.Sprintf("SP_EL0 .................: %#x\n", r.SPEL0))
	for i, x := range r.X {
		out.WriteString(fmt.Sprintf("x%-2d ....................: %#x\n", i, x))
	}

	out.WriteString("------------------------------------------------------ EL1 registers ----\n")
	out.WriteString(fmt.Sprintf("SCTLR_EL1 ..............: %#x\n", r.SCTLR))
	out.WriteString(fmt.Sprintf("VBAR_EL1 ...............: %#x\n", r.VBAR))
	out.WriteString(fmt.Sprintf("CPACR_EL1 ..............: %#x\n", r.CPACR))
	out.WriteString(fmt.Sprintf("CNTKCTL_EL1 ............: %#x\n", r.CNTKCTL))
	out.WriteString(fmt.Sprintf("MAIR_EL1 ...............: %#x\n", r.MAIR))
	out.WriteString(fmt.Sprintf("TCR_EL1 ................: %#x\n", r.TCR))
	out.WriteString(fmt.Sprintf("TTBR0_EL1 ..............: %#x\n", r.TTBR0))

	out.WriteString("------------------------------------------------------ Address space ----\n")
	for _, region := range ctx.Xlat.Regions() {
		out.WriteString(fmt.Sprintf("%s\n", region))
	}

	out.WriteString("------------------------------------------------------ Shared channel ----\n")
	out.WriteString(fmt.Sprintf("Buffer .................: [%#x, %#x)\n", buf.Base(), buf.Base()+buf.Size()))

	if rec, mp, err := bootinfo.Decode(buf.Base(), buf.Bytes()); err == nil {
		out.WriteString(fmt.Sprintf("Record version .........: %d\n", rec.Version))
		out.WriteString(fmt.Sprintf("Cores ..................: %d\n", rec.NumCPUs))

		for _, e := range mp {
			primary := ""
			if e.Flags&bootinfo.FlagPrimary != 0 {
				primary = " primary"
			}
			out.WriteString(fmt.Sprintf("  core %d mpidr %#x%s\n", e.LinearID, e.MPIDR, primary))
		}
	}

	return out.String()
}
