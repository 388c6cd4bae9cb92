package pagetable

import (
	"testing"

	"riscvkern/internal/frame"
)

func newTestAlloc(n int) *frame.Allocator {
	a := &frame.Allocator{}
	a.Init(0x100, n)
	return a
}

func TestMapTranslateUnmap(t *testing.T) {
	alloc := newTestAlloc(16)
	pt, err := New(alloc)
	if err != 0 {
		t.Fatalf("New: %v", err)
	}
	leaf, _ := alloc.Alloc()
	vaddr := uint64(0x4000_1000)
	vpn := AddrToVPN(vaddr)
	if err := pt.Map(vpn, leaf, V|R|W|U); err != 0 {
		t.Fatalf("Map: %v", err)
	}

	pa, ok := pt.Translate(vaddr + 0x10)
	if !ok {
		t.Fatalf("translate miss")
	}
	if pa != leaf.PhysAddr()+0x10 {
		t.Fatalf("pa = %#x, want %#x", pa, leaf.PhysAddr()+0x10)
	}

	pt.Unmap(vpn)
	if _, ok := pt.Translate(vaddr); ok {
		t.Fatalf("expected unmapped after Unmap")
	}
}

func TestRemapOfValidLeafPanics(t *testing.T) {
	alloc := newTestAlloc(16)
	pt, _ := New(alloc)
	leaf, _ := alloc.Alloc()
	vpn := AddrToVPN(0x2000)
	pt.Map(vpn, leaf, V|R|U)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic remapping a valid leaf")
		}
	}()
	pt.Map(vpn, leaf, V|R|W|U)
}

func TestGetUserSliceSpansPages(t *testing.T) {
	alloc := newTestAlloc(16)
	pt, _ := New(alloc)
	p0, _ := alloc.Alloc()
	p1, _ := alloc.Alloc()
	pt.Map(AddrToVPN(0x10000), p0, V|R|W|U)
	pt.Map(AddrToVPN(0x11000), p1, V|R|W|U)

	b0 := alloc.Bytes(p0)
	b1 := alloc.Bytes(p1)
	b0[4095] = 0xAA
	b1[0] = 0xBB

	slices, err := pt.GetUserSlice(0x10FFF, 2)
	if err != 0 {
		t.Fatalf("GetUserSlice: %v", err)
	}
	if len(slices) != 2 || slices[0][0] != 0xAA || slices[1][0] != 0xBB {
		t.Fatalf("unexpected chunking: %v", slices)
	}
}
