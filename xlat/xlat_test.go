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
	"testing"

	"github.com/google/go-cmp/cmp"
)

const (
	testGranule   = 0x1000
	testArenaBase = 0x8e000000
	testArenaSize = 0x100000
)

func testContext(t *testing.T) *Context {
	t.Helper()

	c, err := NewContext(testGranule, 40, 48, testArenaBase, testArenaSize)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}

	return c
}

func TestAddRegionConflicts(t *testing.T) {
	for _, test := range []struct {
		name    string
		regions []MemoryRegion
		wantErr error
	}{
		{
			name: "disjoint",
			regions: []MemoryRegion{
				{Base: 0x80000000, Size: 0x10000, Attr: Code | Secure},
				{Base: 0x80010000, Size: 0x10000, Attr: Secure},
			},
		},
		{
			name: "overlap same attributes",
			regions: []MemoryRegion{
				{Base: 0x80000000, Size: 0x10000, Attr: Secure},
				{Base: 0x80008000, Size: 0x10000, Attr: Secure},
			},
		},
		{
			name: "overlap conflicting attributes",
			regions: []MemoryRegion{
				{Base: 0x80000000, Size: 0x10000, Attr: Secure},
				{Base: 0x80008000, Size: 0x10000, Attr: Code | Secure},
			},
			wantErr: ErrConflict,
		},
		{
			name: "zero size",
			regions: []MemoryRegion{
				{Base: 0x80000000, Size: 0},
			},
			wantErr: errors.New("invalid region"),
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			c := testContext(t)

			var err error
			for _, r := range test.regions {
				if err = c.AddRegion(r); err != nil {
					break
				}
			}

			if gotErr := err != nil; gotErr != (test.wantErr != nil) {
				t.Fatalf("got %v, wantErr %v", err, test.wantErr)
			}
		})
	}
}

func TestAssembleCoversRegions(t *testing.T) {
	c := testContext(t)

	const (
		trampolineBase = 0x7000000
		trampolineSize = 0x1000
	)

	if err := c.MapTrampoline(trampolineBase, trampolineSize); err != nil {
		t.Fatalf("MapTrampoline: %v", err)
	}

	regions := []MemoryRegion{
		{Base: 0x80000000, Size: 0x4000, Attr: Code | Secure},
		{Base: 0x80004000, Size: 0x8000, Attr: Secure},
		{Base: 0x90000000, Size: 0x2000, Attr: Device | Secure | Privileged},
		{Base: 0xa0000000, Size: 0x1000},
	}

	for _, r := range regions {
		if err := c.AddRegion(r); err != nil {
			t.Fatalf("AddRegion(%s): %v", r, err)
		}
	}

	if err := c.Assemble(); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	// Every page of every region resolves, with the expected permission
	// and attribute bits.
	for _, r := range append(regions, MemoryRegion{
		Base: trampolineBase, Size: trampolineSize, Attr: Code | Secure | Privileged,
	}) {
		for off := uint64(0); off < r.Size; off += pageSize {
			va := r.Base + off

			desc, ok := c.Walk(va)
			if !ok {
				t.Fatalf("Walk(%#x): unmapped", va)
			}

			if got, want := desc&^uint64(pageSize-1)&(1<<48-1), va; got != want {
				t.Errorf("Walk(%#x): output address %#x", want, got)
			}
			if got, want := desc&(descPXN|descUXN|descAP1|descAP2|descNS|attrIdxDevice),
				r.Attr.descriptor()&(descPXN|descUXN|descAP1|descAP2|descNS|attrIdxDevice); got != want {
				t.Errorf("Walk(%#x): attr bits %#x, want %#x (%s)", va, got, want, r.Attr)
			}
		}
	}

	// Unmapped addresses fault.
	for _, va := range []uint64{0x0, 0x80004000 + 0x8000, 0xff00000000} {
		if desc, ok := c.Walk(va); ok {
			t.Errorf("Walk(%#x) = %#x, want unmapped", va, desc)
		}
	}
}

// The trampoline must be the only {code, secure, privileged} mapping in the
// final address space.
func TestTrampolineAttributesAreUnique(t *testing.T) {
	c := testContext(t)

	if err := c.MapTrampoline(0x7000000, 0x1000); err != nil {
		t.Fatalf("MapTrampoline: %v", err)
	}
	if err := c.AddRegion(MemoryRegion{Base: 0x80000000, Size: 0x10000, Attr: Code | Secure}); err != nil {
		t.Fatalf("AddRegion: %v", err)
	}

	var privCode []MemoryRegion
	for _, r := range c.Regions() {
		if r.Attr == Code|Secure|Privileged {
			privCode = append(privCode, r)
		}
	}

	want := []MemoryRegion{{Base: 0x7000000, Size: 0x1000, Attr: Code | Secure | Privileged}}
	if diff := cmp.Diff(privCode, want); diff != "" {
		t.Errorf("privileged code mappings diff: %s", diff)
	}
}

func TestAssembledIsImmutable(t *testing.T) {
	c := testContext(t)

	if err := c.AddRegion(MemoryRegion{Base: 0x80000000, Size: 0x1000, Attr: Secure}); err != nil {
		t.Fatalf("AddRegion: %v", err)
	}
	if err := c.Assemble(); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if err := c.AddRegion(MemoryRegion{Base: 0x90000000, Size: 0x1000}); !errors.Is(err, ErrAssembled) {
		t.Errorf("AddRegion after assembly: %v, want ErrAssembled", err)
	}
	if err := c.Assemble(); !errors.Is(err, ErrAssembled) {
		t.Errorf("second Assemble: %v, want ErrAssembled", err)
	}
}

func TestArenaExhaustion(t *testing.T) {
	// Arena with room for the root table only.
	c, err := NewContext(testGranule, 40, 48, testArenaBase, pageSize)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}

	if err := c.AddRegion(MemoryRegion{Base: 0x80000000, Size: 0x1000, Attr: Secure}); err != nil {
		t.Fatalf("AddRegion: %v", err)
	}

	if err := c.Assemble(); !errors.Is(err, ErrArena) {
		t.Errorf("Assemble: %v, want ErrArena", err)
	}
}

func TestDeriveMMUConfig(t *testing.T) {
	c := testContext(t)

	if _, err := c.DeriveMMUConfig(); !errors.Is(err, ErrNotAssembled) {
		t.Errorf("DeriveMMUConfig before assembly: %v, want ErrNotAssembled", err)
	}

	if err := c.AddRegion(MemoryRegion{Base: 0x80000000, Size: 0x1000, Attr: Secure}); err != nil {
		t.Fatalf("AddRegion: %v", err)
	}
	if err := c.Assemble(); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	cfg, err := c.DeriveMMUConfig()
	if err != nil {
		t.Fatalf("DeriveMMUConfig: %v", err)
	}

	want := MMUConfig{
		// attr0 normal WBWA, attr1 device, attr2 normal NC
		MAIR: 0x4400ff,
		// T0SZ=16 TG0=4K IRGN0/ORGN0=WBWA SH0=inner EPD1 IPS=40bit
		TCR:   0x200803510,
		TTBR0: c.BaseTable(),
	}
	if diff := cmp.Diff(cfg, want); diff != "" {
		t.Errorf("MMU config diff: %s", diff)
	}

	if cfg.TTBR0 != testArenaBase {
		t.Errorf("base table %#x outside arena base %#x", cfg.TTBR0, uint64(testArenaBase))
	}
}

func TestIPSEncodings(t *testing.T) {
	for _, test := range []struct {
		paBits  uint
		want    uint64
		wantErr bool
	}{
		{paBits: 32, want: 0b000},
		{paBits: 36, want: 0b001},
		{paBits: 40, want: 0b010},
		{paBits: 42, want: 0b011},
		{paBits: 44, want: 0b100},
		{paBits: 48, want: 0b101},
		{paBits: 52, wantErr: true},
		{paBits: 0, wantErr: true},
	} {
		got, err := ipsEncode(test.paBits)
		if gotErr := err != nil; gotErr != test.wantErr {
			t.Errorf("ipsEncode(%d): %v, wantErr %t", test.paBits, err, test.wantErr)
			continue
		}
		if got != test.want {
			t.Errorf("ipsEncode(%d) = %#b, want %#b", test.paBits, got, test.want)
		}
	}
}
