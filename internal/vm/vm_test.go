package vm

import (
	"bytes"
	"debug/elf"
	"testing"

	"riscvkern/internal/frame"
	"riscvkern/internal/kconfig"
	"riscvkern/internal/kerr"
	"riscvkern/internal/mmcache"
	"riscvkern/internal/pagetable"
)

func newFixture(t *testing.T, pages int) (*frame.Allocator, *mmcache.Cache) {
	t.Helper()
	a := &frame.Allocator{}
	a.Init(0x1000, pages)
	return a, mmcache.New()
}

func TestVmaddAnonAndFault(t *testing.T) {
	alloc, cache := newFixture(t, 64)
	ms, err := NewEmpty(alloc, cache)
	if err != 0 {
		t.Fatalf("NewEmpty: %v", err)
	}
	start := pagetable.AddrToVPN(0x2000_0000)
	end := start + 3
	if err := ms.VmaddAnon(start, end, PermR|PermW); err != 0 {
		t.Fatalf("VmaddAnon: %v", err)
	}
	for vpn := start; vpn <= end; vpn++ {
		if _, ok := ms.PT.FindLeaf(vpn); !ok {
			t.Fatalf("expected eager PTE at %v", vpn)
		}
	}
}

func TestMmapPrivateAnonymousLazyFault(t *testing.T) {
	alloc, cache := newFixture(t, 64)
	ms, _ := NewEmpty(alloc, cache)

	addr, err := ms.Mmap(0, 2*kconfig.PageSize, PermR|PermW, MapPrivate|MapAnonymous, nil, 0)
	if err != 0 {
		t.Fatalf("Mmap: %v", err)
	}
	vpn := pagetable.AddrToVPN(addr)
	if _, ok := ms.PT.FindLeaf(vpn); ok {
		t.Fatalf("mmap area must not be eagerly faulted in")
	}
	if err := ms.Fault(vpn, false); err != 0 {
		t.Fatalf("Fault: %v", err)
	}
	if pte, ok := ms.PT.FindLeaf(vpn); !ok || !pte.Valid() {
		t.Fatalf("expected valid leaf after fault")
	}
}

func TestMmapSharedAnonymousSiblingsShareFrame(t *testing.T) {
	alloc, cache := newFixture(t, 64)
	ms, _ := NewEmpty(alloc, cache)

	a1, _ := ms.Mmap(0, kconfig.PageSize, PermR|PermW, MapShared|MapAnonymous, nil, 0)
	a2, _ := ms.Mmap(0, kconfig.PageSize, PermR|PermW, MapShared|MapAnonymous, nil, 0)

	// Force the two areas to reference the same MmapID, simulating two
	// mappings of the same shared region (spec.md §3's anon key is
	// keyed by mmap_id, not by address).
	ms.Areas[1].Mmap.MmapID = ms.Areas[0].Mmap.MmapID

	v1 := pagetable.AddrToVPN(a1)
	v2 := pagetable.AddrToVPN(a2)
	if err := ms.Fault(v1, true); err != 0 {
		t.Fatalf("fault 1: %v", err)
	}
	if err := ms.Fault(v2, true); err != 0 {
		t.Fatalf("fault 2: %v", err)
	}
	p1, _ := ms.PT.FindLeaf(v1)
	p2, _ := ms.PT.FindLeaf(v2)
	if p1.PPN() != p2.PPN() {
		t.Fatalf("shared anon mappings of the same mmap_id must resolve to the same frame")
	}
}

func TestMunmapRemovesArea(t *testing.T) {
	alloc, cache := newFixture(t, 64)
	ms, _ := NewEmpty(alloc, cache)
	addr, _ := ms.Mmap(0, kconfig.PageSize, PermR|PermW, MapPrivate|MapAnonymous, nil, 0)
	vpn := pagetable.AddrToVPN(addr)
	ms.Fault(vpn, true)

	if err := ms.Munmap(addr, kconfig.PageSize); err != 0 {
		t.Fatalf("Munmap: %v", err)
	}
	if len(ms.Areas) != 0 {
		t.Fatalf("expected area removed")
	}
	if _, ok := ms.PT.FindLeaf(vpn); ok {
		t.Fatalf("expected PTE unmapped")
	}
}

// fakeBacking is a minimal in-memory Backing for exercising file-backed
// mmap areas without pulling in the VFS.
type fakeBacking struct {
	inode uint64
	data  []byte
}

func (b *fakeBacking) ReadAt(buf []byte, off int64) (int, kerr.Err_t) {
	n := copy(buf, b.data[off:])
	return n, 0
}

func (b *fakeBacking) WriteAt(buf []byte, off int64) (int, kerr.Err_t) {
	need := int(off) + len(buf)
	if need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[off:], buf)
	return len(buf), 0
}

func (b *fakeBacking) InodeNum() uint64 { return b.inode }

func TestMunmapPartialRangeSplitsArea(t *testing.T) {
	alloc, cache := newFixture(t, 64)
	ms, _ := NewEmpty(alloc, cache)

	addr, err := ms.Mmap(0, 4*kconfig.PageSize, PermR|PermW, MapPrivate|MapAnonymous, nil, 0)
	if err != 0 {
		t.Fatalf("Mmap: %v", err)
	}
	start := pagetable.AddrToVPN(addr)
	for vpn := start; vpn <= start+3; vpn++ {
		if err := ms.Fault(vpn, true); err != 0 {
			t.Fatalf("Fault %v: %v", vpn, err)
		}
	}

	// Unmap only the middle two pages, leaving a not-unmapped page on
	// each side.
	if err := ms.Munmap((start+1).Addr(), 2*kconfig.PageSize); err != 0 {
		t.Fatalf("Munmap: %v", err)
	}

	if len(ms.Areas) != 2 {
		t.Fatalf("expected split into 2 subareas, got %d", len(ms.Areas))
	}
	for _, vpn := range []pagetable.VPN{start + 1, start + 2} {
		if _, ok := ms.PT.FindLeaf(vpn); ok {
			t.Fatalf("expected %v unmapped", vpn)
		}
	}
	for _, vpn := range []pagetable.VPN{start, start + 3} {
		if _, ok := ms.PT.FindLeaf(vpn); !ok {
			t.Fatalf("expected %v to remain mapped", vpn)
		}
	}
}

func TestMunmapNonMmapAreaReturnsENOTOWNED(t *testing.T) {
	alloc, cache := newFixture(t, 64)
	ms, _ := NewEmpty(alloc, cache)

	start := pagetable.AddrToVPN(0x5000_0000)
	if err := ms.VmaddAnon(start, start+1, PermR|PermW); err != 0 {
		t.Fatalf("VmaddAnon: %v", err)
	}
	if err := ms.Munmap(start.Addr(), 2*kconfig.PageSize); err != kerr.ENOTOWNED {
		t.Fatalf("Munmap on a non-mmap area: got %v, want ENOTOWNED", err)
	}
}

func TestMunmapWritesBackSharedFilePage(t *testing.T) {
	alloc, cache := newFixture(t, 64)
	ms, _ := NewEmpty(alloc, cache)
	backing := &fakeBacking{inode: 7, data: make([]byte, kconfig.PageSize)}

	addr, err := ms.Mmap(0, kconfig.PageSize, PermR|PermW, MapShared, backing, 0)
	if err != 0 {
		t.Fatalf("Mmap: %v", err)
	}
	vpn := pagetable.AddrToVPN(addr)
	if err := ms.Fault(vpn, true); err != 0 {
		t.Fatalf("Fault: %v", err)
	}
	leaf, _ := ms.PT.FindLeaf(vpn)
	alloc.Bytes(leaf.PPN())[0] = 0x7a

	if err := ms.Munmap(addr, kconfig.PageSize); err != 0 {
		t.Fatalf("Munmap: %v", err)
	}
	if backing.data[0] != 0x7a {
		t.Fatalf("expected dirty shared page written back to backing store")
	}
}

func TestCloneMmapPrivateAreaDoesNotShareFaultedFrame(t *testing.T) {
	alloc, cache := newFixture(t, 64)
	parent, _ := NewEmpty(alloc, cache)

	addr, err := parent.Mmap(0, kconfig.PageSize, PermR|PermW, MapPrivate|MapAnonymous, nil, 0)
	if err != 0 {
		t.Fatalf("Mmap: %v", err)
	}
	vpn := pagetable.AddrToVPN(addr)
	if err := parent.Fault(vpn, true); err != 0 {
		t.Fatalf("Fault: %v", err)
	}
	pLeaf, _ := parent.PT.FindLeaf(vpn)
	alloc.Bytes(pLeaf.PPN())[0] = 0x11

	child, err := parent.Clone()
	if err != 0 {
		t.Fatalf("Clone: %v", err)
	}
	if _, ok := child.PT.FindLeaf(vpn); ok {
		t.Fatalf("expected private mmap area to install no PTE in the child")
	}
	if err := child.Fault(vpn, true); err != 0 {
		t.Fatalf("child Fault: %v", err)
	}
	cLeaf, _ := child.PT.FindLeaf(vpn)
	if cLeaf.PPN() == pLeaf.PPN() {
		t.Fatalf("private mmap area must not share the parent's already-faulted frame")
	}
	alloc.Bytes(cLeaf.PPN())[0] = 0x22
	if alloc.Bytes(pLeaf.PPN())[0] != 0x11 {
		t.Fatalf("child write must not affect the parent's private mmap page")
	}
}

func TestCloneIdenticalSharesFramesPrivateCopies(t *testing.T) {
	alloc, cache := newFixture(t, 64)
	parent, _ := NewEmpty(alloc, cache)

	idStart := pagetable.AddrToVPN(0x1000)
	parent.addAreaLocked(idStart, idStart, PermR|PermX, Identical, nil, nil)

	privStart := pagetable.AddrToVPN(0x5000_0000)
	parent.VmaddAnon(privStart, privStart, PermR|PermW)
	leaf, _ := parent.PT.FindLeaf(privStart)
	alloc.Bytes(leaf.PPN())[0] = 0x42

	child, err := parent.Clone()
	if err != 0 {
		t.Fatalf("Clone: %v", err)
	}

	cIDLeaf, _ := child.PT.FindLeaf(idStart)
	pIDLeaf, _ := parent.PT.FindLeaf(idStart)
	if cIDLeaf.PPN() != pIDLeaf.PPN() {
		t.Fatalf("identical area must share the same frame after clone")
	}

	cPrivLeaf, _ := child.PT.FindLeaf(privStart)
	if cPrivLeaf.PPN() == leaf.PPN() {
		t.Fatalf("private area must get a distinct frame after clone")
	}
	if alloc.Bytes(cPrivLeaf.PPN())[0] != 0x42 {
		t.Fatalf("expected private area contents copied into the child")
	}
}

func buildMinimalELF(t *testing.T) []byte {
	t.Helper()
	// A hand-assembled minimal ELF64/RISC-V with a single PT_LOAD
	// segment, just enough for debug/elf to parse program headers.
	var buf bytes.Buffer
	const vaddr = 0x1_0000
	text := []byte{0x13, 0x00, 0x00, 0x00} // addi x0,x0,0 (nop), arbitrary payload

	ehsize := 64
	phsize := 56
	phoff := uint64(ehsize)
	dataOff := phoff + uint64(phsize)

	hdr := make([]byte, ehsize)
	copy(hdr[0:4], []byte{0x7f, 'E', 'L', 'F'})
	hdr[4] = 2 // ELFCLASS64
	hdr[5] = 1 // little-endian
	hdr[6] = 1 // EV_CURRENT
	putLE16 := func(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
	putLE32 := func(b []byte, v uint32) {
		for i := 0; i < 4; i++ {
			b[i] = byte(v >> (8 * i))
		}
	}
	putLE64 := func(b []byte, v uint64) {
		for i := 0; i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
	}
	putLE16(hdr[16:], uint16(elf.ET_EXEC))
	putLE16(hdr[18:], uint16(elf.EM_RISCV))
	putLE32(hdr[20:], 1) // e_version
	putLE64(hdr[24:], vaddr)
	putLE64(hdr[32:], phoff)
	putLE64(hdr[40:], 0) // shoff
	putLE32(hdr[48:], 0) // flags
	putLE16(hdr[52:], uint16(ehsize))
	putLE16(hdr[54:], uint16(phsize))
	putLE16(hdr[56:], 1) // phnum
	putLE16(hdr[58:], 0)
	putLE16(hdr[60:], 0)
	putLE16(hdr[62:], 0)

	ph := make([]byte, phsize)
	putLE32(ph[0:], uint32(elf.PT_LOAD))
	putLE32(ph[4:], uint32(elf.PF_R|elf.PF_X))
	putLE64(ph[8:], dataOff)
	putLE64(ph[16:], vaddr)
	putLE64(ph[24:], vaddr)
	putLE64(ph[32:], uint64(len(text)))
	putLE64(ph[40:], uint64(len(text)))
	putLE64(ph[48:], 4) // align

	buf.Write(hdr)
	buf.Write(ph)
	buf.Write(text)
	return buf.Bytes()
}

func TestFromELFLoadsPTLoadSegment(t *testing.T) {
	alloc, cache := newFixture(t, 64)
	image := buildMinimalELF(t)

	ms, entry, err := FromELF(alloc, cache, image)
	if err != 0 {
		t.Fatalf("FromELF: %v", err)
	}
	if entry != 0x1_0000 {
		t.Fatalf("entry = %#x, want 0x10000", entry)
	}
	vpn := pagetable.AddrToVPN(0x1_0000)
	pte, ok := ms.PT.FindLeaf(vpn)
	if !ok || !pte.Valid() {
		t.Fatalf("expected PT_LOAD segment mapped")
	}
	if ms.Brk == 0 {
		t.Fatalf("expected brk initialized past the loaded segment")
	}
}
