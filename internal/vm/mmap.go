package vm

import (
	"riscvkern/internal/frame"
	"riscvkern/internal/kconfig"
	"riscvkern/internal/kerr"
	"riscvkern/internal/mmcache"
	"riscvkern/internal/pagetable"
)

// validProt is the set of protection bits mmap accepts, per spec.md
// §4.3 — no other bit (including PermU, which mmap never lets the
// caller set directly) may appear in prot.
const validProt = PermR | PermW | PermX

// Mmap reserves [addr, addr+length) — rounded up to whole pages — as a
// new area backed by b (nil for MAP_ANONYMOUS), per spec.md §3/§6.3. No
// frames or PTEs are installed; Fault fills them in lazily. addr is
// advisory unless flags carries MapFixed, in which case it must be
// page-aligned, fall entirely below the fixed trap-context region, and
// not overlap an existing area. Every argument-validation rule spec.md
// §4.3 lists is enforced here, before any area is installed.
func (ms *MapSet) Mmap(addr, length uint64, prot uint64, flags uint32, b Backing, offset int64) (uint64, kerr.Err_t) {
	if length == 0 {
		return 0, kerr.EINVAL
	}
	if prot&^validProt != 0 {
		return 0, kerr.EINVAL
	}
	shared, private := flags&MapShared != 0, flags&MapPrivate != 0
	if shared == private {
		return 0, kerr.EINVAL // exactly one of MAP_SHARED/MAP_PRIVATE must be set
	}
	if b != nil && offset%int64(kconfig.PageSize) != 0 {
		return 0, kerr.EINVAL
	}
	if addr+length < addr {
		return 0, kerr.ERANGE
	}
	npages := (length + kconfig.PageSize - 1) / kconfig.PageSize

	ms.mu.Lock()
	defer ms.mu.Unlock()

	start := pagetable.AddrToVPN(addr)
	end := start + pagetable.VPN(npages) - 1
	if flags&MapFixed != 0 {
		if addr%kconfig.PageSize != 0 {
			return 0, kerr.EINVAL
		}
		if end.Addr()+kconfig.PageSize > kconfig.TrapContextVA {
			return 0, kerr.ERANGE
		}
		if ms.overlaps(start, end) {
			return 0, kerr.EINVAL
		}
	} else {
		start, end = ms.findFreeRangeLocked(npages)
	}

	mi := &MmapInfo{MmapID: nextMmapID(), Flags: flags, Prot: prot, Backing: b, Offset: offset}
	if err := ms.addAreaLocked(start, end, prot, Mapped, nil, mi); err != 0 {
		return 0, err
	}
	return start.Addr(), 0
}

// findFreeRangeLocked picks the next unused run of npages above every
// existing area — a simple bump strategy: ranges that Munmap frees
// below the highest area are not reused.
func (ms *MapSet) findFreeRangeLocked(npages uint64) (pagetable.VPN, pagetable.VPN) {
	var top pagetable.VPN = pagetable.AddrToVPN(kconfig.MmapBase)
	for _, a := range ms.Areas {
		if a.End+1 > top {
			top = a.End + 1
		}
	}
	return top, top + pagetable.VPN(npages) - 1
}

// Munmap tears down every area's coverage of [addr, addr+length), per
// spec.md §4.3. A range that only partially covers an area splits it
// into up to three subareas (not-unmapped left, unmapped middle,
// not-unmapped right); a range that touches any area not backed by an
// mmap origin (the binary's Identical/Mapped regions) is rejected with
// ENOTOWNED instead of being torn down. Resident frames in the
// unmapped middle are refdown'd and dropped per the cache-bookkeeping
// rule below; dirty SHARED file-backed pages are written back first.
func (ms *MapSet) Munmap(addr, length uint64) kerr.Err_t {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	npages := (length + kconfig.PageSize - 1) / kconfig.PageSize
	start := pagetable.AddrToVPN(addr)
	end := start + pagetable.VPN(npages) - 1

	var touched []int
	for i, a := range ms.Areas {
		if start <= a.End && end >= a.Start {
			touched = append(touched, i)
		}
	}
	if len(touched) == 0 {
		return kerr.EINVAL
	}
	for _, i := range touched {
		if ms.Areas[i].Mmap == nil {
			return kerr.ENOTOWNED
		}
	}

	// Walk touched areas back-to-front so splicing ms.Areas at an
	// earlier index never shifts one not yet processed.
	for j := len(touched) - 1; j >= 0; j-- {
		i := touched[j]
		area := ms.Areas[i]

		ovStart, ovEnd := area.Start, area.End
		if start > ovStart {
			ovStart = start
		}
		if end < ovEnd {
			ovEnd = end
		}

		var repl []*MapArea
		if area.Start < ovStart {
			repl = append(repl, subarea(area, area.Start, ovStart-1))
		}
		ms.dropRangeLocked(area, ovStart, ovEnd)
		if area.End > ovEnd {
			repl = append(repl, subarea(area, ovEnd+1, area.End))
		}

		ms.Areas = append(ms.Areas[:i:i], append(repl, ms.Areas[i+1:]...)...)
	}
	return 0
}

// subarea carves out a new MapArea covering [s,e] from area, carrying
// forward any frames area already holds in that sub-range along with
// its permissions and mmap origin, for Munmap's partial-unmap split.
func subarea(area *MapArea, s, e pagetable.VPN) *MapArea {
	frames := make(map[pagetable.VPN]frame.PPN)
	for vpn, f := range area.Frames {
		if vpn >= s && vpn <= e {
			frames[vpn] = f
		}
	}
	return &MapArea{Start: s, End: e, Perm: area.Perm, Type: area.Type, Frames: frames, Mmap: area.Mmap}
}

// dropRangeLocked tears down every resident frame of area whose VPN
// falls in [lo,hi]: a SHARED file-backed page is written back to its
// backing file first (spec.md §4.3's munmap algorithm writes back
// every such resident page, not only ones the hardware happened to
// mark dirty — this reimplementation's A/D-bit tracking is best-effort
// at installing the frame, so write-back can't rely on it), then the
// PTE is unmapped and the frame refdown'd, erased from the cache if
// that was its last strong holder so the cache never names a dead
// frame.
func (ms *MapSet) dropRangeLocked(area *MapArea, lo, hi pagetable.VPN) {
	for vpn, f := range area.Frames {
		if vpn < lo || vpn > hi {
			continue
		}
		ms.writeBackLocked(area, vpn, f)
		ms.PT.Unmap(vpn)
		if area.Mmap != nil && area.Mmap.shared() {
			pageIdx := uint64(vpn - area.Start)
			var key mmcache.Key
			if area.Mmap.Flags&MapAnonymous != 0 {
				key = mmcache.Key{Kind: mmcache.Anon, MmapID: area.Mmap.MmapID, PageIdx: pageIdx}
			} else {
				key = mmcache.Key{Kind: mmcache.File, InodeNum: area.Mmap.Backing.InodeNum(), PageIdx: pageIdx}
			}
			ms.alloc.Refdown(f)
			if ms.alloc.Refcnt(f) == 0 {
				ms.cache.Remove(key)
			}
		} else {
			ms.alloc.Refdown(f)
		}
		delete(area.Frames, vpn)
	}
}

// writeBackLocked persists f's current contents to area's backing
// file at offset+pageIdx*PageSize, for a dirty SHARED file-backed mmap
// page being dropped (spec.md §4.3/§7). A no-op for anonymous mappings
// or mappings with no backing, and best-effort: a write-back failure
// is not surfaced, matching spec.md §7's "best-effort" wording, since
// munmap/exit cannot usefully report it to anyone.
func (ms *MapSet) writeBackLocked(area *MapArea, vpn pagetable.VPN, f frame.PPN) {
	mi := area.Mmap
	if mi == nil || !mi.shared() || mi.Flags&MapAnonymous != 0 || mi.Backing == nil {
		return
	}
	pageIdx := uint64(vpn - area.Start)
	off := mi.Offset + int64(pageIdx)*int64(kconfig.PageSize)
	mi.Backing.WriteAt(ms.alloc.Bytes(f), off)
}

func (ms *MapSet) dropArea(area *MapArea) {
	ms.dropRangeLocked(area, area.Start, area.End)
}

// Drop tears down every area in the MapSet — called on process exit.
func (ms *MapSet) Drop() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, area := range ms.Areas {
		if area.Type == Identical {
			continue
		}
		ms.dropArea(area)
	}
	ms.Areas = nil
}
