// Package kconfig holds the kernel's compiled-in resource ceilings and
// layout constants. Like the teacher's limits.Syslimit_t, these are set
// once at boot and consulted — never hot-reloaded — by the subsystems
// that need a ceiling.
package kconfig

const (
	PageSize  = 4096
	PageShift = 12

	// KernelStackSize is the size in bytes of one task's kernel stack.
	KernelStackSize = 4 * PageSize
	// KernelStackGuard is the size of the unmapped guard page below
	// each kernel stack.
	KernelStackGuard = PageSize

	// TrapContextVA is the fixed high virtual address, present in every
	// address space, at which a task's trap frame is mapped.
	TrapContextVA = 0x3fffffe000
	// TrapVectorVA is the fixed high virtual address of the trap entry
	// vector, mapped R+X in every address space.
	TrapVectorVA = 0x3ffffff000
	// KernelStackAnchor is the high-address anchor "K" that kernel
	// stacks are laid out below (spec §4.4).
	KernelStackAnchor = 0x3ffff00000

	// UserStackSize is the size of the single-page-by-default user
	// stack created at exec time, before growth.
	UserStackSize = PageSize

	// MmapBase is the default floor above which anonymous/unfixed mmap
	// requests are placed, comfortably above any ELF-loaded image and
	// its heap.
	MmapBase = 0x10_0000_0000

	MaxOpenFiles = 256
	MaxTasks     = 1 << 16

	// PhysMemBase is the start of usable DRAM on QEMU's riscv64 "virt"
	// machine, the hosted simulator target spec.md assumes. Everything
	// below it is MMIO or boot ROM.
	PhysMemBase = 0x8000_0000
	// PhysMemPages is the frame allocator's pool size: 128MiB, enough
	// for a handful of tasks plus the block cache without tuning.
	PhysMemPages = 128 * 1024 * 1024 / PageSize
)

// Syslimit collects system-wide soft ceilings, mirroring the teacher's
// Syslimit_t.
type Syslimit struct {
	MaxTasks       int
	MaxOpenFiles   int
	MaxMmapRegions int
	BlockCacheSize int
}

// Default is the ceiling set consulted throughout the kernel.
var Default = Syslimit{
	MaxTasks:       MaxTasks,
	MaxOpenFiles:   MaxOpenFiles,
	MaxMmapRegions: 4096,
	BlockCacheSize: 8192,
}
