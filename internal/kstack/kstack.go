// Package kstack places per-task kernel stacks below the fixed
// KernelStackAnchor, per spec.md §4.4: each stack gets its own slot,
// separated from its neighbors by an unmapped guard page, so a kernel
// stack overflow faults instead of corrupting an adjacent task's stack.
package kstack

import (
	"sync"

	"riscvkern/internal/frame"
	"riscvkern/internal/kconfig"
	"riscvkern/internal/kerr"
	"riscvkern/internal/pagetable"
)

const slotSize = kconfig.KernelStackGuard + kconfig.KernelStackSize

// Slab hands out kernel-stack slots by index, reusing freed slots
// before growing, mirroring the free-list-first discipline of
// internal/frame.
type Slab struct {
	mu   sync.Mutex
	free []int
	next int
}

// Global is the kernel-wide kernel-stack slab.
var Global = &Slab{}

func (s *Slab) alloc() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.free); n > 0 {
		i := s.free[n-1]
		s.free = s.free[:n-1]
		return i
	}
	i := s.next
	s.next++
	return i
}

// Free returns a slot index to the slab for reuse.
func (s *Slab) Free(slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.free = append(s.free, slot)
}

// Base returns the lowest virtual address of the stack occupying slot,
// i.e. just above its guard page.
func Base(slot int) uint64 {
	return kconfig.KernelStackAnchor - uint64(slot+1)*slotSize + kconfig.KernelStackGuard
}

// Top returns the initial stack pointer for a freshly mapped stack in
// slot — one past its highest mapped byte.
func Top(slot int) uint64 {
	return Base(slot) + kconfig.KernelStackSize
}

// Allocate reserves a stack slot and maps its pages (but not its guard
// page) R+W into pt, returning the initial stack pointer.
func Allocate(pt *pagetable.Table, alloc *frame.Allocator) (slot int, sp uint64, err kerr.Err_t) {
	slot = Global.alloc()
	base := Base(slot)
	for off := uint64(0); off < kconfig.KernelStackSize; off += kconfig.PageSize {
		f, aerr := alloc.Alloc()
		if aerr != 0 {
			Global.Free(slot)
			return 0, 0, aerr
		}
		vpn := pagetable.AddrToVPN(base + off)
		if merr := pt.Map(vpn, f, pagetable.R|pagetable.W); merr != 0 {
			Global.Free(slot)
			return 0, 0, merr
		}
	}
	return slot, Top(slot), 0
}
