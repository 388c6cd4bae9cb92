package vm

import (
	"bytes"
	"debug/elf"

	"riscvkern/internal/frame"
	"riscvkern/internal/kconfig"
	"riscvkern/internal/kerr"
	"riscvkern/internal/mmcache"
	"riscvkern/internal/pagetable"
)

// FromELF builds a fresh MapSet from an ELF image, per spec.md §4.3: one
// R/W/X MapArea per PT_LOAD segment (permissions taken from the
// segment's flags), then a guard page and a kconfig.UserStackSize user
// stack above the highest segment. No heap area is created; the
// program break starts just above the stack. Grounded on the teacher's own use of
// debug/elf for ELF introspection (kernel/chentry.go).
func FromELF(alloc *frame.Allocator, cache *mmcache.Cache, image []byte) (*MapSet, uint64, kerr.Err_t) {
	f, goerr := elf.NewFile(bytes.NewReader(image))
	if goerr != nil {
		return nil, 0, kerr.ENOEXEC
	}
	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_RISCV {
		return nil, 0, kerr.ENOEXEC
	}

	ms, err := NewEmpty(alloc, cache)
	if err != 0 {
		return nil, 0, err
	}

	var brkStart uint64
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		perm := uint64(0)
		if prog.Flags&elf.PF_R != 0 {
			perm |= PermR
		}
		if prog.Flags&elf.PF_W != 0 {
			perm |= PermW
		}
		if prog.Flags&elf.PF_X != 0 {
			perm |= PermX
		}
		start := pagetable.AddrToVPN(prog.Vaddr)
		end := pagetable.AddrToVPN(prog.Vaddr + prog.Memsz - 1)

		data := make([]byte, prog.Filesz)
		if _, goerr := prog.ReadAt(data, 0); goerr != nil {
			return nil, 0, kerr.ENOEXEC
		}
		// Segment data is not necessarily page-aligned within its first
		// frame; pad a leading copy so AddArea's straight page-order
		// copy lands each byte at the right in-page offset.
		pageOff := prog.Vaddr & (kconfig.PageSize - 1)
		padded := make([]byte, pageOff+uint64(len(data)))
		copy(padded[pageOff:], data)

		if err := ms.AddArea(start, end, perm, Mapped, padded, nil); err != 0 {
			return nil, 0, err
		}
		if top := prog.Vaddr + prog.Memsz; top > brkStart {
			brkStart = top
		}
	}

	// One unmapped guard page above the highest segment, then the user
	// stack; the program break starts just above the stack.
	imageEnd := (brkStart + kconfig.PageSize - 1) &^ (kconfig.PageSize - 1)
	stackStart := pagetable.AddrToVPN(imageEnd) + 1
	stackEnd := stackStart + pagetable.VPN(kconfig.UserStackSize/kconfig.PageSize) - 1
	if err := ms.VmaddAnon(stackStart, stackEnd, PermR|PermW); err != 0 {
		return nil, 0, err
	}
	ms.Brk = (stackEnd + 1).Addr()
	return ms, f.Entry, 0
}
