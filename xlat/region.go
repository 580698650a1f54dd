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
	"fmt"
	"strings"
)

// Attr describes the access attributes of a memory region. The zero value is
// data, non-secure, unprivileged, cacheable memory; flags move each pair to
// its other member.
type Attr uint8

const (
	// Code marks the region executable (and read-only).
	Code Attr = 1 << 0
	// Secure maps the region into the secure physical address space.
	Secure Attr = 1 << 1
	// Privileged restricts the region to EL1.
	Privileged Attr = 1 << 2
	// Device marks the region as device rather than cacheable memory.
	Device Attr = 1 << 3
	// ReadOnly write-protects a data region. Code regions are always
	// read-only.
	ReadOnly Attr = 1 << 4
)

func (a Attr) String() string {
	pick := func(set Attr, on, off string) string {
		if a&set != 0 {
			return on
		}
		return off
	}

	s := strings.Join([]string{
		pick(Code, "code", "data"),
		pick(Secure, "secure", "non-secure"),
		pick(Privileged, "privileged", "unprivileged"),
		pick(Device, "device", "cacheable"),
	}, "|")

	if a&ReadOnly != 0 && a&Code == 0 {
		s += "|ro"
	}

	return s
}

// MemoryRegion is a single mapping request. Immutable once added to a
// Context.
type MemoryRegion struct {
	Base uint64
	Size uint64
	Attr Attr
}

func (r MemoryRegion) String() string {
	return fmt.Sprintf("[%#010x, %#010x) %s", r.Base, r.Base+r.Size, r.Attr)
}

func (r MemoryRegion) overlaps(o MemoryRegion) bool {
	return r.Base < o.Base+o.Size && o.Base < r.Base+r.Size
}

// Stage 3 descriptor bits (VMSAv8-64 level 3 page descriptors).
const (
	descValid = 1 << 0
	descPage  = 1 << 1 // with descValid: page at L3, table at L0..L2
	descNS    = 1 << 5 // non-secure PA space
	descAP1   = 1 << 6 // EL0 access
	descAP2   = 1 << 7 // read-only
	descSH    = 3 << 8 // inner shareable
	descAF    = 1 << 10
	descPXN   = 1 << 53
	descUXN   = 1 << 54

	// MAIR indices, see mairEL1.
	attrIdxNormal = 0 << 2
	attrIdxDevice = 1 << 2
)

// descriptor returns the leaf descriptor attribute bits for a region. The
// translation regime runs with WXN, so every writable mapping is
// execute-never regardless of the PXN/UXN choice here.
func (a Attr) descriptor() uint64 {
	desc := uint64(descValid | descPage | descAF | descSH)

	if a&Device != 0 {
		desc |= attrIdxDevice
	} else {
		desc |= attrIdxNormal
	}

	if a&Secure == 0 {
		desc |= descNS
	}

	if a&Privileged == 0 {
		desc |= descAP1
	}

	if a&Code != 0 {
		// Code is mapped read-only; keep it fetchable only at the
		// privilege level it belongs to.
		desc |= descAP2

		if a&Privileged != 0 {
			desc |= descUXN
		} else {
			desc |= descPXN
		}
	} else {
		desc |= descPXN | descUXN

		if a&ReadOnly != 0 {
			desc |= descAP2
		}
	}

	return desc
}
