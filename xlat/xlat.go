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

// Package xlat assembles the address space description of a secure
// partition's EL1&0 translation regime: a fixed exception-vector trampoline
// mapping merged with the platform region list, compiled into VMSAv8-64
// translation tables and the MMU configuration values that activate them.
package xlat

import (
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/secure-monitor/spm/internal/assert"
)

const (
	pageSize     = 0x1000
	tableEntries = pageSize / 8

	l0Shift = 39
	l1Shift = 30
	l2Shift = 21
	l3Shift = 12

	idxMask = tableEntries - 1
)

var (
	// ErrAssembled is returned on mutation after table assembly.
	ErrAssembled = errors.New("translation context already assembled")
	// ErrConflict is returned when overlapping regions disagree on
	// attributes.
	ErrConflict = errors.New("conflicting overlapping regions")
	// ErrArena is returned when the table arena is exhausted.
	ErrArena = errors.New("translation table arena exhausted")
)

// arena hands out table-sized chunks of the platform-reserved page table
// region. Tables are modelled in monitor memory and addressed by the
// physical address they occupy in the arena.
type arena struct {
	base   uint64
	size   uint64
	next   uint64
	tables map[uint64][]uint64
}

func (a *arena) alloc() (uint64, []uint64, error) {
	if a.next+pageSize > a.base+a.size {
		return 0, nil, fmt.Errorf("%w: %d tables in %#x bytes", ErrArena, len(a.tables), a.size)
	}

	pa := a.next
	a.next += pageSize

	t := make([]uint64, tableEntries)
	a.tables[pa] = t

	return pa, t, nil
}

// Context owns one partition's translation tables: the region list, the
// arena the tables live in, and the granule they are aligned to. A Context
// is built once during setup; after handoff only the world-switch dispatcher
// touches it.
type Context struct {
	granule uint64
	paBits  uint
	vaBits  uint

	regions []MemoryRegion
	arena   *arena
	root    uint64

	assembled bool
}

// NewContext returns a translation context backed by the platform-reserved
// arena at [arenaBase, arenaBase+arenaSize). granule is the maximum
// translation granule the hardware reports; paBits and vaBits are its
// address width capabilities.
func NewContext(granule uint64, paBits, vaBits uint, arenaBase, arenaSize uint64) (*Context, error) {
	if granule == 0 || granule&(granule-1) != 0 {
		return nil, fmt.Errorf("granule %#x is not a power of two", granule)
	}

	assert.Aligned(arenaBase, pageSize, "table arena base")
	assert.Aligned(arenaSize, pageSize, "table arena size")

	klog.V(1).Infof("xlat: max supported granule %d KiB", granule/1024)

	return &Context{
		granule: granule,
		paBits:  paBits,
		vaBits:  vaBits,
		arena: &arena{
			base:   arenaBase,
			size:   arenaSize,
			next:   arenaBase,
			tables: map[uint64][]uint64{},
		},
	}, nil
}

// MapTrampoline adds the shared exception-vector trampoline mapping. It is
// the first region of every partition address space and the only one mapped
// {code, secure, privileged}.
func (c *Context) MapTrampoline(base, size uint64) error {
	return c.AddRegion(MemoryRegion{
		Base: base,
		Size: size,
		Attr: Code | Secure | Privileged,
	})
}

// AddRegion merges one region into the address space description. Regions
// are immutable once added; a region overlapping an existing one with
// different attributes is rejected.
func (c *Context) AddRegion(r MemoryRegion) error {
	if c.assembled {
		return ErrAssembled
	}

	if r.Size == 0 || r.Base+r.Size < r.Base {
		return fmt.Errorf("invalid region %s", r)
	}

	// Base and size must come pre-aligned to the maximum supported
	// granule; a correctly built image never violates this.
	assert.Aligned(r.Base, c.granule, "region base")
	assert.Aligned(r.Size, c.granule, "region size")

	for _, o := range c.regions {
		if r.overlaps(o) && r.Attr != o.Attr {
			return fmt.Errorf("%w: %s vs %s", ErrConflict, r, o)
		}
	}

	klog.V(2).Infof("xlat: add %s", r)
	c.regions = append(c.regions, r)

	return nil
}

// Regions returns the merged region list.
func (c *Context) Regions() []MemoryRegion {
	return append([]MemoryRegion(nil), c.regions...)
}

// Assemble compiles the merged region list into translation tables rooted in
// the arena. The context accepts no further regions afterwards.
func (c *Context) Assemble() error {
	if c.assembled {
		return ErrAssembled
	}

	root, _, err := c.arena.alloc()
	if err != nil {
		return err
	}
	c.root = root

	for _, r := range c.regions {
		desc := r.Attr.descriptor()

		for off := uint64(0); off < r.Size; off += pageSize {
			if err = c.mapPage(r.Base+off, r.Base+off|desc); err != nil {
				return fmt.Errorf("mapping %s: %w", r, err)
			}
		}
	}

	c.assembled = true

	klog.V(1).Infof("xlat: assembled %d regions into %d tables, base table %#x",
		len(c.regions), len(c.arena.tables), c.root)

	return nil
}

// mapPage installs a single L3 descriptor, allocating intermediate tables on
// first use.
func (c *Context) mapPage(va uint64, desc uint64) error {
	table := c.arena.tables[c.root]

	for _, shift := range []uint{l0Shift, l1Shift, l2Shift} {
		idx := (va >> shift) & idxMask

		if table[idx]&descValid == 0 {
			pa, _, err := c.arena.alloc()
			if err != nil {
				return err
			}
			table[idx] = pa | descValid | descPage
		}

		table = c.arena.tables[table[idx]&^(pageSize-1)]
	}

	table[(va>>l3Shift)&idxMask] = desc

	return nil
}

// Walk resolves va through the assembled tables and returns its leaf
// descriptor.
func (c *Context) Walk(va uint64) (uint64, bool) {
	if !c.assembled {
		return 0, false
	}

	table := c.arena.tables[c.root]

	for _, shift := range []uint{l0Shift, l1Shift, l2Shift} {
		entry := table[(va>>shift)&idxMask]
		if entry&descValid == 0 {
			return 0, false
		}
		table = c.arena.tables[entry&^(pageSize-1)]
	}

	desc := table[(va>>l3Shift)&idxMask]
	if desc&descValid == 0 {
		return 0, false
	}

	return desc, true
}

// BaseTable returns the physical address of the root translation table.
func (c *Context) BaseTable() uint64 {
	return c.root
}
