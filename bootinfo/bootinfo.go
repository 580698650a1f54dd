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

// Package bootinfo defines the boot metadata the monitor shares with a
// secure partition and builds the one-way channel carrying it: a bounded
// shared buffer holding one boot information record followed by one MP
// information entry per core, with the record's array reference relocated to
// point inside the buffer itself.
package bootinfo

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Record versioning, after the original parameter header.
const (
	Version = 1

	// FlagSecure marks the record as describing a secure world image.
	FlagSecure = 1 << 0
)

// MP information entry flags.
const (
	// FlagPrimary marks the core that performed partition setup.
	FlagPrimary = 1 << 0
)

// Ref is a reference into a specific address space. Crossing address spaces
// is only possible through Relocate, never through arithmetic on the raw
// value.
type Ref uint64

// ErrNilRef is returned when a record arrives without an MP info reference.
var ErrNilRef = errors.New("nil MP info reference")

// Relocate rewrites old, a reference into monitor-private memory, to its new
// location in the partition-visible address space. A nil incoming reference
// means the platform never attached the array and is rejected rather than
// handed to the partition as a forbidden pointer.
func Relocate(old, new Ref) (Ref, error) {
	if old == 0 {
		return 0, ErrNilRef
	}

	return new, nil
}

// Record is the boot information handed to a secure partition, mirroring the
// layout its loader expects at the shared buffer base. The monitor reads
// only NumCPUs and MPInfo; the remaining fields are opaque platform
// configuration passed through to the partition.
type Record struct {
	Version uint32
	Flags   uint32

	MemBase       uint64
	MemLimit      uint64
	ImageBase     uint64
	StackBase     uint64
	HeapBase      uint64
	NSCommBufBase uint64
	SharedBufBase uint64

	ImageSize     uint64
	PCPUStackSize uint64
	HeapSize      uint64
	NSCommBufSize uint64
	SharedBufSize uint64

	NumMemRegions uint32
	NumCPUs       uint32

	MPInfo Ref
}

// MPInfo describes one core participating in the partition. The platform
// fills the affinity value; the monitor assigns the linear index and flags.
type MPInfo struct {
	MPIDR    uint64
	LinearID uint32
	Flags    uint32
}

// RecordSize and MPInfoSize are the wire sizes of the shared records.
const (
	RecordSize = 120
	MPInfoSize = 16
)

// Encode serializes the record at its wire layout.
func (r *Record) Encode() []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, r)
	return buf.Bytes()
}

// Encode serializes one MP info entry at its wire layout.
func (m *MPInfo) Encode() []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, m)
	return buf.Bytes()
}

// Decode parses a shared buffer populated by the monitor, as the partition
// side does after activation. base is the address the buffer is mapped at;
// the record's MP info reference must land exactly past the record, inside
// the buffer.
func Decode(base uint64, buf []byte) (*Record, []MPInfo, error) {
	if len(buf) < RecordSize {
		return nil, nil, fmt.Errorf("buffer %d bytes, record needs %d", len(buf), RecordSize)
	}

	rec := &Record{}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, rec); err != nil {
		return nil, nil, err
	}

	if rec.MPInfo != Ref(base+RecordSize) {
		return nil, nil, fmt.Errorf("MP info reference %#x escapes shared buffer at %#x", uint64(rec.MPInfo), base)
	}

	n := int(rec.NumCPUs)
	if RecordSize+n*MPInfoSize > len(buf) {
		return nil, nil, fmt.Errorf("%d MP info entries exceed buffer", n)
	}

	mp := make([]MPInfo, n)
	r := bytes.NewReader(buf[RecordSize:])
	for i := range mp {
		if err := binary.Read(r, binary.LittleEndian, &mp[i]); err != nil {
			return nil, nil, err
		}
	}

	return rec, mp, nil
}
