package vm

import (
	"riscvkern/internal/frame"
	"riscvkern/internal/kerr"
	"riscvkern/internal/pagetable"
)

// Clone duplicates ms for fork(2), per spec.md §4.3/§8 scenario 5: no
// copy-on-write (an explicit Non-goal) — Identical areas are
// re-installed pointing at the same frames (kernel text/data is never
// process-private), private Mapped areas get fresh frames with the
// parent's bytes copied in immediately, and mmap areas keep the same
// MmapInfo (and MmapID); a MAP_SHARED one also carries forward the
// parent's resident frames, so parent and child map the same pages.
func (ms *MapSet) Clone() (*MapSet, kerr.Err_t) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	child, err := NewEmpty(ms.alloc, ms.cache)
	if err != 0 {
		return nil, err
	}
	child.Brk = ms.Brk

	for _, area := range ms.Areas {
		var ca *MapArea
		var cerr kerr.Err_t
		switch {
		case area.Type == Identical:
			ca, cerr = ms.cloneIdenticalArea(child, area)
		case area.Mmap != nil:
			ca, cerr = ms.cloneMmapArea(child, area)
		default:
			ca, cerr = ms.clonePrivateArea(child, area)
		}
		if cerr != 0 {
			return nil, cerr
		}
		child.Areas = append(child.Areas, ca)
	}
	return child, 0
}

// cloneIdenticalArea re-installs the parent's PTEs verbatim: identity
// regions are never process-private memory.
func (ms *MapSet) cloneIdenticalArea(child *MapSet, area *MapArea) (*MapArea, kerr.Err_t) {
	for vpn := area.Start; vpn <= area.End; vpn++ {
		if err := child.PT.Map(vpn, frame.PPN(vpn), area.Perm|PermU|pagetable.V); err != 0 {
			return nil, err
		}
	}
	return &MapArea{Start: area.Start, End: area.End, Perm: area.Perm, Type: Identical, Frames: area.Frames}, 0
}

// clonePrivateArea gives the child fresh frames and copies the
// parent's bytes in immediately — the stand-in for the copy this
// reimplementation makes eagerly rather than deferring via CoW.
func (ms *MapSet) clonePrivateArea(child *MapSet, area *MapArea) (*MapArea, kerr.Err_t) {
	na := &MapArea{Start: area.Start, End: area.End, Perm: area.Perm, Type: Mapped, Frames: make(map[pagetable.VPN]frame.PPN)}
	for vpn := area.Start; vpn <= area.End; vpn++ {
		pf, ok := area.Frames[vpn]
		if !ok {
			continue // hole within a mostly-unfaulted area
		}
		nf, err := ms.alloc.Alloc()
		if err != 0 {
			return nil, err
		}
		copy(ms.alloc.Bytes(nf), ms.alloc.Bytes(pf))
		na.Frames[vpn] = nf
		if err := child.PT.Map(vpn, nf, area.Perm|PermU); err != 0 {
			return nil, err
		}
	}
	return na, 0
}

// cloneMmapArea copies the MmapInfo (including MmapID) of a
// mmap-originated area into the child. A MAP_SHARED area also carries
// forward every frame the parent has already faulted in: the child
// takes a fresh strong reference on each and gets a PTE for it, so
// parent and child map the same physical frame, while pages not yet
// faulted resolve to a common frame later through the shared cache.
// A MAP_PRIVATE area carries forward no frames
// at all: sharing the parent's already-faulted frame through two
// independent mappings with no CoW would let either side's write
// corrupt the other's view, violating spec.md §8's non-SHARED
// isolation invariant, so the child starts with an empty Frames map
// and refaults its own copy on first touch.
func (ms *MapSet) cloneMmapArea(child *MapSet, area *MapArea) (*MapArea, kerr.Err_t) {
	na := &MapArea{Start: area.Start, End: area.End, Perm: area.Perm, Type: Mapped, Frames: make(map[pagetable.VPN]frame.PPN), Mmap: area.Mmap}
	if !area.Mmap.shared() {
		return na, 0
	}
	for vpn, f := range area.Frames {
		ms.alloc.Refup(f)
		na.Frames[vpn] = f
		if err := child.PT.Map(vpn, f, area.Perm|PermU); err != 0 {
			return nil, err
		}
	}
	return na, 0
}
