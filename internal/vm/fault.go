package vm

import (
	"riscvkern/internal/frame"
	"riscvkern/internal/kconfig"
	"riscvkern/internal/kerr"
	"riscvkern/internal/mmcache"
	"riscvkern/internal/pagetable"
)

// Fault fills in the PTE for vpn on a page fault, per spec.md §4.3's
// fault fill-in algorithm. It returns EFAULT if vpn is not covered by
// any area, or if the access does not fit the area's permissions.
func (ms *MapSet) Fault(vpn pagetable.VPN, wantWrite bool) kerr.Err_t {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	area := ms.findArea(vpn)
	if area == nil {
		return kerr.EFAULT
	}
	if wantWrite && area.Perm&PermW == 0 {
		return kerr.EFAULT
	}

	if pte, ok := ms.PT.FindLeaf(vpn); ok && pte.Valid() {
		// Hardware is permitted to skip maintaining A/D; software
		// repairs it here rather than treating the trap as a real
		// fault (spec.md §4.2/§6.5).
		ms.PT.MarkAccessed(vpn, wantWrite)
		return 0
	}

	if area.Mmap == nil {
		// Non-mmap areas install all their frames eagerly in AddArea;
		// reaching here on such an area is a real fault.
		return kerr.EFAULT
	}

	f, err := ms.fillMmapPage(area, vpn)
	if err != 0 {
		return err
	}
	area.Frames[vpn] = f
	return ms.PT.Map(vpn, f, area.Perm|PermU)
}

// fillMmapPage resolves the frame backing vpn within an mmap area,
// consulting and populating the shared cache for MAP_SHARED regions
// (spec.md §3's weak shared-cache semantics).
func (ms *MapSet) fillMmapPage(area *MapArea, vpn pagetable.VPN) (frame.PPN, kerr.Err_t) {
	mi := area.Mmap
	pageIdx := uint64(vpn - area.Start)

	var key mmcache.Key
	if mi.shared() {
		if mi.Flags&MapAnonymous != 0 {
			key = mmcache.Key{Kind: mmcache.Anon, MmapID: mi.MmapID, PageIdx: pageIdx}
		} else {
			key = mmcache.Key{Kind: mmcache.File, InodeNum: mi.Backing.InodeNum(), PageIdx: pageIdx}
		}
		if f, ok := ms.cache.Lookup(key); ok {
			ms.alloc.Refup(f)
			return f, 0
		}
	}

	f, err := ms.alloc.Alloc()
	if err != 0 {
		return 0, err
	}
	if mi.Flags&MapAnonymous == 0 {
		off := mi.Offset + int64(pageIdx)*int64(kconfig.PageSize)
		if _, err := mi.Backing.ReadAt(ms.alloc.Bytes(f), off); err != 0 {
			ms.alloc.Refdown(f)
			return 0, err
		}
	}
	if mi.shared() {
		ms.cache.Insert(key, f)
	}
	return f, 0
}
