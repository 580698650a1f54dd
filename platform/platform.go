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

// Package platform defines what the monitor consumes from a platform port
// to set up a secure partition. Everything crosses the trust boundary as an
// explicit configuration record or a named collaborator interface; no
// ambient globals.
package platform

import (
	"fmt"

	"github.com/secure-monitor/spm/bootinfo"
	"github.com/secure-monitor/spm/xlat"
)

// MemoryMap holds the fixed base/size constants of one partition's layout.
type MemoryMap struct {
	// Shared monitor/partition channel buffer.
	SharedBufBase uint64 `mapstructure:"shared_buf_base"`
	SharedBufSize uint64 `mapstructure:"shared_buf_size"`

	// Partition image and its entry point.
	ImageBase uint64 `mapstructure:"image_base"`
	ImageSize uint64 `mapstructure:"image_size"`

	// Pre-initialized partition stacks, one PCPUStackSize slice per core.
	StackBase     uint64 `mapstructure:"stack_base"`
	PCPUStackSize uint64 `mapstructure:"pcpu_stack_size"`

	// Shared exception-vector trampoline.
	VectorBase uint64 `mapstructure:"vector_base"`
	VectorSize uint64 `mapstructure:"vector_size"`

	// Monitor-reserved region the translation tables are built in.
	XlatArenaBase uint64 `mapstructure:"xlat_arena_base"`
	XlatArenaSize uint64 `mapstructure:"xlat_arena_size"`

	// Opaque values handed to the partition in x2/x3.
	Cookie0 uint64 `mapstructure:"cookie0"`
	Cookie1 uint64 `mapstructure:"cookie1"`
}

// Capabilities is the hardware capability query result.
type Capabilities struct {
	// MaxGranule is the largest translation granule the MMU supports.
	MaxGranule uint64 `mapstructure:"max_granule"`

	// PABits and VABits are the supported physical and virtual address
	// widths.
	PABits uint `mapstructure:"pa_bits"`
	VABits uint `mapstructure:"va_bits"`
}

// Config is the explicit input record of partition setup.
type Config struct {
	Map      MemoryMap    `mapstructure:"memory_map"`
	Caps     Capabilities `mapstructure:"capabilities"`
	MaxCores int          `mapstructure:"max_cores"`
}

// Validate rejects configurations that cannot describe a partition.
func (c Config) Validate() error {
	switch {
	case c.Map.SharedBufSize == 0:
		return fmt.Errorf("shared buffer size is zero")
	case c.Map.ImageBase == 0:
		return fmt.Errorf("partition image base is zero")
	case c.Map.VectorSize == 0:
		return fmt.Errorf("vector trampoline size is zero")
	case c.Map.XlatArenaSize == 0:
		return fmt.Errorf("translation table arena size is zero")
	case c.Caps.MaxGranule == 0:
		return fmt.Errorf("max granule is zero")
	case c.MaxCores <= 0:
		return fmt.Errorf("max core count %d", c.MaxCores)
	}

	return nil
}

// Platform is one platform port: the configuration record plus the
// collaborators the setup sequence calls out to.
type Platform interface {
	bootinfo.AffinityResolver

	// Config returns the partition's fixed configuration.
	Config() Config

	// Regions returns the partition memory regions to map, already
	// aligned to the maximum supported granule.
	Regions() []xlat.MemoryRegion

	// BootInfo returns the partition's boot record and its per-core MP
	// information.
	BootInfo() (*bootinfo.Record, []bootinfo.MPInfo, error)
}
