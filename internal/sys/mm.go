// mm.go implements brk/mmap/munmap, grounded on the teacher's Vm_t
// break-and-region bookkeeping (vm/as.go) adapted to vm.MapSet's
// no-CoW model (spec.md §4.3): brk pages are allocated eagerly, mmap
// pages lazily on first fault.
package sys

import (
	"riscvkern/internal/fdtable"
	"riscvkern/internal/kconfig"
	"riscvkern/internal/kerr"
	"riscvkern/internal/pagetable"
	"riscvkern/internal/task"
	"riscvkern/internal/vm"
)

// SysBrk implements brk(2): addr 0 queries the current break; a
// shrinking request only updates the recorded break (no unmap, per
// spec.md §6.3 row 214); a growing request maps fresh anonymous pages
// covering the new extent.
func (k *Kernel) SysBrk(t *task.TCB, addr uint64) uint64 {
	ms := t.MapSet
	ms.Lock()
	cur := ms.Brk
	ms.Unlock()

	if addr == 0 {
		return cur
	}
	if addr <= cur {
		ms.Lock()
		ms.Brk = addr
		ms.Unlock()
		return addr
	}

	startVPN := pagetable.AddrToVPN((cur + kconfig.PageSize - 1) &^ (kconfig.PageSize - 1))
	endVPN := pagetable.AddrToVPN((addr + kconfig.PageSize - 1) &^ (kconfig.PageSize - 1))
	if endVPN >= startVPN {
		if err := ms.VmaddAnon(startVPN, endVPN-1, vm.PermR|vm.PermW); err != 0 {
			return cur
		}
	}
	ms.Lock()
	ms.Brk = addr
	ms.Unlock()
	return addr
}

func (k *Kernel) sysMmap(t *task.TCB, addr, length, prot uint64, flags uint32, fd int, offset int64) int64 {
	var backing vm.Backing
	if flags&vm.MapAnonymous == 0 {
		h, err := t.Fds.Get(fd)
		if err != 0 {
			return int64(-err)
		}
		if h.Perms&fdtable.Read == 0 {
			return int64(-kerr.EPERM)
		}
		backing = h.File
	}
	va, err := t.MapSet.Mmap(addr, length, prot, flags, backing, offset)
	if err != 0 {
		return int64(-err)
	}
	return int64(va)
}
