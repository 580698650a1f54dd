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

package xlat

import (
	"errors"
	"fmt"

	"github.com/secure-monitor/spm/internal/sysreg"
)

// TCR_EL1 field positions
const (
	tcrT0SZ  = 0
	tcrIRGN0 = 8
	tcrORGN0 = 10
	tcrSH0   = 12
	tcrTG0   = 14
	tcrEPD1  = 23
	tcrIPS   = 32

	tcrWBWA  = 0b01
	tcrInner = 0b11
	tcrTG04K = 0b00
)

// MAIR_EL1: index 0 normal WBWA, index 1 device nGnRnE, index 2 normal
// non-cacheable. Must agree with the attrIdx* descriptor bits.
const mairEL1 = 0x00<<8 | 0x44<<16 | 0xff

// ErrNotAssembled is returned when MMU values are requested before table
// assembly.
var ErrNotAssembled = errors.New("translation context not assembled")

// MMUConfig carries the derived configuration of the partition's EL1&0
// translation regime, written verbatim into its register context.
type MMUConfig struct {
	MAIR  uint64
	TCR   uint64
	TTBR0 uint64
}

// ipsEncode maps a physical address width to the TCR_EL1.IPS encoding.
func ipsEncode(paBits uint) (uint64, error) {
	switch paBits {
	case 32:
		return 0b000, nil
	case 36:
		return 0b001, nil
	case 40:
		return 0b010, nil
	case 42:
		return 0b011, nil
	case 44:
		return 0b100, nil
	case 48:
		return 0b101, nil
	}

	return 0, fmt.Errorf("unsupported physical address width %d", paBits)
}

// DeriveMMUConfig computes the memory attribute, translation control and
// translation table base values for the assembled context. TTBR1 walks are
// disabled; the partition address space lives entirely under TTBR0.
func (c *Context) DeriveMMUConfig() (MMUConfig, error) {
	if !c.assembled {
		return MMUConfig{}, ErrNotAssembled
	}

	if c.vaBits < 25 || c.vaBits > 48 {
		return MMUConfig{}, fmt.Errorf("unsupported virtual address width %d", c.vaBits)
	}

	ips, err := ipsEncode(c.paBits)
	if err != nil {
		return MMUConfig{}, err
	}

	tcr := &sysreg.Reg{}
	tcr.SetField(tcrT0SZ, 0x3f, uint64(64-c.vaBits))
	tcr.SetField(tcrIRGN0, 0b11, tcrWBWA)
	tcr.SetField(tcrORGN0, 0b11, tcrWBWA)
	tcr.SetField(tcrSH0, 0b11, tcrInner)
	tcr.SetField(tcrTG0, 0b11, tcrTG04K)
	tcr.Set(tcrEPD1)
	tcr.SetField(tcrIPS, 0b111, ips)

	return MMUConfig{
		MAIR:  mairEL1,
		TCR:   tcr.Value(),
		TTBR0: c.root,
	}, nil
}
