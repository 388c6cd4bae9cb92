// Package pagetable implements Sv39 three-level page tables: walk,
// install, unmap, and translate. Grounded on spec.md §4.2 and, for the
// exact flag layout, the rv64 MMU reference in the retrieval pack
// (other_examples/db055d78_tinyrange-cc__internal-hv-riscv-rv64-mmu.go):
// PTE bits V(0) R(1) W(2) X(3) U(4) G(5) A(6) D(7), PPN in bits 10..53.
package pagetable

import (
	"riscvkern/internal/frame"
	"riscvkern/internal/kconfig"
	"riscvkern/internal/kerr"
)

// PTE flag bits.
const (
	V uint64 = 1 << 0 // valid
	R uint64 = 1 << 1 // readable
	W uint64 = 1 << 2 // writable
	X uint64 = 1 << 3 // executable
	U uint64 = 1 << 4 // user accessible
	G uint64 = 1 << 5 // global
	A uint64 = 1 << 6 // accessed
	D uint64 = 1 << 7 // dirty

	flagMask = 0x3ff
	ppnShift = 10
)

const (
	vpnBits   = 9
	vpnMask   = (1 << vpnBits) - 1
	numLevels = 3
	SatpModeSv39 = uint64(8) << 60
)

// VPN is a virtual page number.
type VPN uint64

func (v VPN) Addr() uint64 { return uint64(v) << kconfig.PageShift }

func AddrToVPN(vaddr uint64) VPN { return VPN(vaddr >> kconfig.PageShift) }

// PTE is a single Sv39 page table entry.
type PTE uint64

func (p PTE) Valid() bool    { return uint64(p)&V != 0 }
func (p PTE) IsLeaf() bool   { return uint64(p)&(R|W|X) != 0 }
func (p PTE) Flags() uint64  { return uint64(p) & flagMask }
func (p PTE) PPN() frame.PPN { return frame.PPN(uint64(p) >> ppnShift) }

func mkPTE(ppn frame.PPN, flags uint64) PTE {
	return PTE(uint64(ppn)<<ppnShift | (flags & flagMask))
}

func vpnIndex(vpn VPN, level int) uint64 {
	return (uint64(vpn) >> (level * vpnBits)) & vpnMask
}

// Table is an Sv39 page table rooted at Root. It owns its interior
// (non-leaf) pages through the frame allocator; leaf frames are owned
// by whoever installed them (a MapArea, per spec.md §4.3).
type Table struct {
	Root  frame.PPN
	alloc *frame.Allocator
}

// New allocates a fresh, empty root page table.
func New(alloc *frame.Allocator) (*Table, kerr.Err_t) {
	root, err := alloc.Alloc()
	if err != 0 {
		return nil, err
	}
	return &Table{Root: root, alloc: alloc}, 0
}

func (t *Table) entries(ppn frame.PPN) []PTE {
	b := t.alloc.Bytes(ppn)
	n := len(b) / 8
	out := make([]PTE, n)
	for i := 0; i < n; i++ {
		out[i] = PTE(leUint64(b[i*8:]))
	}
	return out
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putLeUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

func (t *Table) readPTE(tablePPN frame.PPN, idx uint64) PTE {
	b := t.alloc.Bytes(tablePPN)
	return PTE(leUint64(b[idx*8:]))
}

func (t *Table) writePTE(tablePPN frame.PPN, idx uint64, pte PTE) {
	b := t.alloc.Bytes(tablePPN)
	putLeUint64(b[idx*8:], uint64(pte))
}

// FindPTE returns the leaf entry for vpn, creating intermediate
// (interior) tables as needed when create is true. It never creates the
// final leaf itself — callers install the leaf value.
func (t *Table) findPTELocked(vpn VPN, create bool) (tablePPN frame.PPN, idx uint64, ok bool) {
	cur := t.Root
	for level := numLevels - 1; level >= 0; level-- {
		idx = vpnIndex(vpn, level)
		if level == 0 {
			return cur, idx, true
		}
		pte := t.readPTE(cur, idx)
		if !pte.Valid() {
			if !create {
				return 0, 0, false
			}
			next, err := t.alloc.Alloc()
			if err != 0 {
				return 0, 0, false
			}
			t.writePTE(cur, idx, mkPTE(next, V))
			cur = next
			continue
		}
		if pte.IsLeaf() {
			// a leaf exists where an interior table was expected.
			return 0, 0, false
		}
		cur = pte.PPN()
	}
	return 0, 0, false
}

// Map installs a leaf PTE mapping vpn to ppn with the given flags.
// Overwriting an existing valid leaf is a program error (spec.md §4.2).
func (t *Table) Map(vpn VPN, ppn frame.PPN, flags uint64) kerr.Err_t {
	tablePPN, idx, ok := t.findPTELocked(vpn, true)
	if !ok {
		return kerr.ENOMEM
	}
	if t.readPTE(tablePPN, idx).Valid() {
		panic("pagetable: remap of valid leaf")
	}
	t.writePTE(tablePPN, idx, mkPTE(ppn, flags|V))
	return 0
}

// Remap overwrites an existing leaf's value unconditionally — used by
// the trap handler's A/D bit repair and by mmap's CoW-free overwrite
// paths that already checked the invariant they need.
func (t *Table) Remap(vpn VPN, ppn frame.PPN, flags uint64) kerr.Err_t {
	tablePPN, idx, ok := t.findPTELocked(vpn, true)
	if !ok {
		return kerr.ENOMEM
	}
	t.writePTE(tablePPN, idx, mkPTE(ppn, flags|V))
	return 0
}

// Unmap marks the leaf at vpn invalid without freeing intermediate
// pages (spec.md §4.2).
func (t *Table) Unmap(vpn VPN) {
	tablePPN, idx, ok := t.findPTELocked(vpn, false)
	if !ok {
		return
	}
	t.writePTE(tablePPN, idx, 0)
}

// FindLeaf returns the leaf PTE for vpn, or ok=false if no mapping
// (valid or not) has been installed at that slot.
func (t *Table) FindLeaf(vpn VPN) (PTE, bool) {
	tablePPN, idx, ok := t.findPTELocked(vpn, false)
	if !ok {
		return 0, false
	}
	pte := t.readPTE(tablePPN, idx)
	if pte == 0 {
		return 0, false
	}
	return pte, true
}

// SetLeaf overwrites the raw value of an already-located leaf slot —
// used by the page-fault handler's A/D bit repair.
func (t *Table) SetLeaf(vpn VPN, pte PTE) {
	tablePPN, idx, ok := t.findPTELocked(vpn, false)
	if !ok {
		panic("pagetable: SetLeaf on absent slot")
	}
	t.writePTE(tablePPN, idx, pte)
}

// MarkAccessed sets the A bit (and, if dirty is true, the D bit) on the
// leaf at vpn — the software-managed A/D repair rv64 hardware is
// permitted to skip, per spec.md §4.2/§6.5.
func (t *Table) MarkAccessed(vpn VPN, dirty bool) {
	pte, ok := t.FindLeaf(vpn)
	if !ok {
		return
	}
	flags := uint64(pte) | A
	if dirty {
		flags |= D
	}
	t.SetLeaf(vpn, PTE(flags))
}

// Translate walks the table and returns the physical address for
// vaddr, or ok=false if unmapped.
func (t *Table) Translate(vaddr uint64) (uint64, bool) {
	vpn := AddrToVPN(vaddr)
	pte, ok := t.FindLeaf(vpn)
	if !ok || !pte.Valid() {
		return 0, false
	}
	off := vaddr & (kconfig.PageSize - 1)
	return pte.PPN().PhysAddr() | off, true
}

// SatpToken returns the architectural SATP value for Sv39 mode with
// this table's root.
func (t *Table) SatpToken() uint64 {
	return SatpModeSv39 | uint64(t.Root)
}

// Slice returns a byte slice covering [vaddr, vaddr+length) within the
// page mapped at vpn, clipped to the page boundary — the unit chunk
// used by GetUserSlice.
func (t *Table) pageBytes(vpn VPN) ([]byte, bool) {
	pte, ok := t.FindLeaf(vpn)
	if !ok || !pte.Valid() {
		return nil, false
	}
	return t.alloc.Bytes(pte.PPN()), true
}

// GetUserSlice returns an ordered list of physical-memory slices
// covering [startVaddr, startVaddr+length), chunked on page boundaries,
// without activating this table (spec.md §4.2). It is how syscalls read
// and write user memory belonging to any address space, running or not.
func (t *Table) GetUserSlice(startVaddr uint64, length int) ([][]byte, kerr.Err_t) {
	if length < 0 {
		return nil, kerr.EINVAL
	}
	var out [][]byte
	remaining := length
	va := startVaddr
	for remaining > 0 {
		vpn := AddrToVPN(va)
		page, ok := t.pageBytes(vpn)
		if !ok {
			return nil, kerr.EFAULT
		}
		off := int(va & (kconfig.PageSize - 1))
		n := kconfig.PageSize - off
		if n > remaining {
			n = remaining
		}
		out = append(out, page[off:off+n])
		remaining -= n
		va += uint64(n)
	}
	return out, 0
}
