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

package bootinfo

import (
	"errors"
	"fmt"

	"k8s.io/klog/v2"
)

// Channel construction errors. These gate a trust boundary and are always
// on, independent of build configuration.
var (
	ErrOverflow    = errors.New("shared buffer wraps the address space")
	ErrCapacity    = errors.New("boot information exceeds shared buffer capacity")
	ErrCoreCount   = errors.New("core count exceeds platform maximum")
	ErrNilBootInfo = errors.New("no boot information from platform")
	ErrMPCount     = errors.New("MP information entry count mismatch")
	ErrAffinity    = errors.New("affinity does not resolve to a core")
	ErrPrimary     = errors.New("setup core missing from MP information")
)

// AffinityResolver maps architectural affinity values to linear core
// indices. Implemented by the platform.
type AffinityResolver interface {
	// CorePos returns the 0-based linear index of the core with the
	// given affinity value.
	CorePos(mpidr uint64) (int, error)

	// MyCorePos returns the linear index of the core running setup.
	MyCorePos() int
}

// SharedBuffer is the only memory both monitor and partition may access,
// mapped read-only and execute-never into the partition's translation
// regime. Once populated it is read-only for both sides.
type SharedBuffer struct {
	base uint64
	mem  []byte
}

// NewSharedBuffer returns the channel buffer at [base, base+size).
func NewSharedBuffer(base, size uint64) (*SharedBuffer, error) {
	if base+size < base {
		return nil, fmt.Errorf("%w: base %#x size %#x", ErrOverflow, base, size)
	}

	return &SharedBuffer{
		base: base,
		mem:  make([]byte, size),
	}, nil
}

// Base returns the address the partition sees the buffer at.
func (b *SharedBuffer) Base() uint64 {
	return b.base
}

// Size returns the buffer capacity in bytes.
func (b *SharedBuffer) Size() uint64 {
	return uint64(len(b.mem))
}

// Bytes returns the populated channel contents.
func (b *SharedBuffer) Bytes() []byte {
	return b.mem
}

// Populate builds the channel snapshot: the record copied to the buffer
// base, its MP info reference relocated to the address immediately past the
// record, and exactly rec.NumCPUs entries copied there, each annotated with
// its linear core index and, on the core running setup, the primary flag.
//
// No entry byte is written once a capacity or core count bound fails. The
// snapshot never references memory outside the buffer.
func (b *SharedBuffer) Populate(rec *Record, mp []MPInfo, res AffinityResolver, maxCores int) error {
	if rec == nil {
		return ErrNilBootInfo
	}

	if RecordSize > len(b.mem) {
		return fmt.Errorf("%w: record needs %d of %d bytes", ErrCapacity, RecordSize, len(b.mem))
	}

	// Copy the record, pointing its array reference at the in-buffer
	// location rather than the monitor-private original.
	reloc, err := Relocate(rec.MPInfo, Ref(b.base+RecordSize))
	if err != nil {
		return err
	}

	cp := *rec
	cp.MPInfo = reloc
	copy(b.mem, cp.Encode())

	klog.V(2).Infof("bootinfo: MP info reference %#x relocated to %#x", uint64(rec.MPInfo), uint64(reloc))

	n := int(rec.NumCPUs)

	if n > maxCores {
		return fmt.Errorf("%w: %d cores, platform maximum %d", ErrCoreCount, n, maxCores)
	}
	if n != len(mp) {
		return fmt.Errorf("%w: record names %d cores, platform supplied %d entries", ErrMPCount, n, len(mp))
	}
	if RecordSize+n*MPInfoSize > len(b.mem) {
		return fmt.Errorf("%w: %d cores need %d of %d bytes", ErrCapacity, n, RecordSize+n*MPInfoSize, len(b.mem))
	}

	self := res.MyCorePos()
	primary := 0

	for i := 0; i < n; i++ {
		entry := mp[i]

		pos, err := res.CorePos(entry.MPIDR)
		if err != nil {
			return fmt.Errorf("%w: %#x: %v", ErrAffinity, entry.MPIDR, err)
		}

		entry.LinearID = uint32(pos)
		if pos == self {
			entry.Flags |= FlagPrimary
			primary++
		}

		copy(b.mem[RecordSize+i*MPInfoSize:], entry.Encode())
	}

	if primary != 1 {
		return fmt.Errorf("%w: %d entries flagged primary", ErrPrimary, primary)
	}

	klog.V(1).Infof("bootinfo: %d byte record and %d MP info entries at %#x", RecordSize, n, b.base)

	return nil
}
