// Package vm implements the per-process address space: MapSet, the
// collection of MapAreas that cover it, demand paging, mmap/munmap, and
// fork-time duplication. Grounded on the teacher's vm.Vm_t and
// vm.Vmregion_t (biscuit/src/vm/as.go), generalized from biscuit's
// x86-64/COW design to the Sv39/no-CoW semantics spec.md §4.3 demands.
package vm

import (
	"sync"
	"sync/atomic"

	"riscvkern/internal/frame"
	"riscvkern/internal/kerr"
	"riscvkern/internal/mmcache"
	"riscvkern/internal/pagetable"
)

// Permission bits, aliases of the page-table flag bits they end up
// installed as.
const (
	PermR = pagetable.R
	PermW = pagetable.W
	PermX = pagetable.X
	PermU = pagetable.U
)

// MapType distinguishes identity-mapped kernel regions (frames not
// owned by the area) from demand-paged user regions.
type MapType int

const (
	Identical MapType = iota
	Mapped
)

// Mmap flag bits (spec.md §3 / §4.3 / §6.3 mmap).
const (
	MapShared    = 1 << 0
	MapPrivate   = 1 << 1
	MapAnonymous = 1 << 2
	MapFixed     = 1 << 3
)

var mmapIDCounter uint64

func nextMmapID() uint64 { return atomic.AddUint64(&mmapIDCounter, 1) }

// Backing is the minimal file capability mmap needs: a page-addressable
// read/write surface plus a stable identity for the shared-cache key.
// The VFS's File implementations satisfy this structurally; vm does not
// import vfs to avoid a cycle.
type Backing interface {
	ReadAt(buf []byte, off int64) (int, kerr.Err_t)
	WriteAt(buf []byte, off int64) (int, kerr.Err_t)
	InodeNum() uint64
}

// MmapInfo describes the mmap origin of a MapArea, per spec.md §3.
type MmapInfo struct {
	MmapID  uint64
	Flags   uint32
	Prot    uint64
	Backing Backing
	Offset  int64
}

func (m *MmapInfo) shared() bool { return m.Flags&MapShared != 0 }

// MapArea is a closed virtual-page interval with uniform permissions
// and backing, per spec.md §3.
type MapArea struct {
	Start, End pagetable.VPN // inclusive
	Perm       uint64
	Type       MapType
	Frames     map[pagetable.VPN]frame.PPN
	Mmap       *MmapInfo
}

func (a *MapArea) contains(vpn pagetable.VPN) bool {
	return vpn >= a.Start && vpn <= a.End
}

// MapSet is a process address space: a page table plus the ordered set
// of areas that cover it, and the program break.
type MapSet struct {
	mu sync.Mutex

	PT    *pagetable.Table
	Areas []*MapArea
	Brk   uint64

	alloc *frame.Allocator
	cache *mmcache.Cache
}

// NewEmpty allocates a bare MapSet with an empty page table — the
// starting point for both FromELF and the kernel address space.
func NewEmpty(alloc *frame.Allocator, cache *mmcache.Cache) (*MapSet, kerr.Err_t) {
	pt, err := pagetable.New(alloc)
	if err != 0 {
		return nil, err
	}
	return &MapSet{PT: pt, alloc: alloc, cache: cache}, 0
}

// findArea returns the area containing vpn, if any.
func (ms *MapSet) findArea(vpn pagetable.VPN) *MapArea {
	for _, a := range ms.Areas {
		if a.contains(vpn) {
			return a
		}
	}
	return nil
}

// overlaps reports whether [start,end] would intersect an existing area
// — areas never overlap within one MapSet (spec.md §3).
func (ms *MapSet) overlaps(start, end pagetable.VPN) bool {
	for _, a := range ms.Areas {
		if start <= a.End && end >= a.Start {
			return true
		}
	}
	return false
}

// AddArea installs a new area covering [start,end] (inclusive VPNs).
// For Mapped areas without an mmap origin, frames are allocated eagerly
// and initData, if non-nil, is copied in. For Identical areas no frames
// are allocated, only PTEs. For mmap areas (mmap != nil) neither frames
// nor PTEs are installed — the page-fault handler fills them in lazily.
func (ms *MapSet) AddArea(start, end pagetable.VPN, perm uint64, typ MapType, initData []byte, mmap *MmapInfo) kerr.Err_t {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.addAreaLocked(start, end, perm, typ, initData, mmap)
}

func (ms *MapSet) addAreaLocked(start, end pagetable.VPN, perm uint64, typ MapType, initData []byte, mmapInfo *MmapInfo) kerr.Err_t {
	area := &MapArea{Start: start, End: end, Perm: perm, Type: typ, Frames: make(map[pagetable.VPN]frame.PPN), Mmap: mmapInfo}

	if mmapInfo == nil {
		switch typ {
		case Identical:
			for vpn := start; vpn <= end; vpn++ {
				if err := ms.PT.Map(vpn, frame.PPN(vpn), perm|PermU|pagetable.V); err != 0 {
					return err
				}
			}
		case Mapped:
			off := 0
			for vpn := start; vpn <= end; vpn++ {
				f, err := ms.alloc.Alloc()
				if err != 0 {
					return err
				}
				if initData != nil && off < len(initData) {
					dst := ms.alloc.Bytes(f)
					n := copy(dst, initData[off:])
					off += n
				}
				area.Frames[vpn] = f
				if err := ms.PT.Map(vpn, f, perm|PermU); err != 0 {
					return err
				}
			}
		}
	}
	ms.Areas = append(ms.Areas, area)
	return 0
}

// VmaddAnon adds a private anonymous region with eagerly allocated,
// zero-filled frames — used for the heap and user stack at exec time.
func (ms *MapSet) VmaddAnon(start, end pagetable.VPN, perm uint64) kerr.Err_t {
	return ms.AddArea(start, end, perm, Mapped, nil, nil)
}

// Activate writes SATP for this address space and flushes the TLB. In
// this hosted reimplementation (no real hart to program) it simply
// records the active table; the trap/boot layer uses SatpToken to build
// the architectural value it would write.
func (ms *MapSet) Activate() uint64 {
	return ms.PT.SatpToken()
}

// Lock/Unlock expose the address-space mutex to callers (the trap
// handler and syscall layer) that must serialize with concurrent fault
// fill-in, mirroring Vm_t.Lock_pmap/Unlock_pmap.
func (ms *MapSet) Lock()   { ms.mu.Lock() }
func (ms *MapSet) Unlock() { ms.mu.Unlock() }
