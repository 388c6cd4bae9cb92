package sys

import (
	"testing"

	"riscvkern/internal/kconfig"
	"riscvkern/internal/pagetable"
	"riscvkern/internal/vm"
)

func TestBrkGrowMapsAnonPagesAndQueryReturnsCurrent(t *testing.T) {
	k, initTask := newTestKernel(t)
	cur := k.SysBrk(initTask, 0)
	if cur == 0 {
		t.Fatalf("expected a nonzero initial brk")
	}
	grown := k.SysBrk(initTask, cur+4*kconfig.PageSize)
	if grown != cur+4*kconfig.PageSize {
		t.Fatalf("brk grow = %#x, want %#x", grown, cur+4*kconfig.PageSize)
	}
	if back := k.SysBrk(initTask, 0); back != grown {
		t.Fatalf("brk query after grow = %#x, want %#x", back, grown)
	}
}

func TestBrkShrinkOnlyMovesPointer(t *testing.T) {
	k, initTask := newTestKernel(t)
	cur := k.SysBrk(initTask, 0)
	grown := k.SysBrk(initTask, cur+4*kconfig.PageSize)
	shrunk := k.SysBrk(initTask, grown-kconfig.PageSize)
	if shrunk != grown-kconfig.PageSize {
		t.Fatalf("brk shrink = %#x, want %#x", shrunk, grown-kconfig.PageSize)
	}
}

func TestMmapAnonymousReturnsUsableAddress(t *testing.T) {
	k, initTask := newTestKernel(t)
	rc := k.sysMmap(initTask, 0, kconfig.PageSize, uint64(vm.PermR|vm.PermW), vm.MapAnonymous|vm.MapPrivate, -1, 0)
	if rc < 0 {
		t.Fatalf("mmap anon failed: rc=%d", rc)
	}
	va := uint64(rc)
	// mmap installs no PTE up front; the task's first store faults the
	// page in, after which the kernel can copy into it.
	if err := initTask.MapSet.Fault(pagetable.AddrToVPN(va), true); err != 0 {
		t.Fatalf("fault in mmap'd page: %v", err)
	}
	if err := CopyOut(initTask.MapSet.PT, va, []byte("ok")); err != 0 {
		t.Fatalf("write into mmap'd region: %v", err)
	}
}

func TestMmapFileBackedRequiresReadPermission(t *testing.T) {
	k, initTask := newTestKernel(t)
	base := growScratch(t, k, initTask, 4)
	writeUserString(t, initTask.MapSet.PT, base, "/mapped")
	fd, err := k.sysOpenat(initTask, AtFdcwd, base, 0x40|0x1, 0o644) // O_CREAT|O_WRONLY
	if err != 0 {
		t.Fatalf("open: %v", err)
	}
	rc := k.sysMmap(initTask, 0, kconfig.PageSize, uint64(vm.PermR), 0, fd, 0)
	if rc >= 0 {
		t.Fatalf("mmap of a write-only fd should fail, got rc=%d", rc)
	}
}
