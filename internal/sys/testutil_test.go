package sys

import (
	"bytes"
	"debug/elf"
	"testing"

	"riscvkern/internal/frame"
	"riscvkern/internal/kpath"
	"riscvkern/internal/mmcache"
	"riscvkern/internal/ramfs"
	"riscvkern/internal/task"
	"riscvkern/internal/vfs"
)

// buildMinimalELF assembles a tiny ELF64/RISC-V image with one
// PT_LOAD segment, just enough for vm.FromELF to parse and map — the
// same hand-rolled construction internal/vm's own tests use, since
// this package has no running toolchain to produce a real binary.
func buildMinimalELF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	const vaddr = 0x1_0000
	text := []byte{0x13, 0x00, 0x00, 0x00} // addi x0,x0,0

	ehsize, phsize := 64, 56
	phoff := uint64(ehsize)
	dataOff := phoff + uint64(phsize)

	hdr := make([]byte, ehsize)
	copy(hdr[0:4], []byte{0x7f, 'E', 'L', 'F'})
	hdr[4], hdr[5], hdr[6] = 2, 1, 1
	le16 := func(b []byte, v uint16) { b[0], b[1] = byte(v), byte(v>>8) }
	le32 := func(b []byte, v uint32) {
		for i := 0; i < 4; i++ {
			b[i] = byte(v >> (8 * i))
		}
	}
	le64 := func(b []byte, v uint64) {
		for i := 0; i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
	}
	le16(hdr[16:], uint16(elf.ET_EXEC))
	le16(hdr[18:], uint16(elf.EM_RISCV))
	le32(hdr[20:], 1)
	le64(hdr[24:], vaddr)
	le64(hdr[32:], phoff)
	le64(hdr[40:], 0)
	le32(hdr[48:], 0)
	le16(hdr[52:], uint16(ehsize))
	le16(hdr[54:], uint16(phsize))
	le16(hdr[56:], 1)

	ph := make([]byte, phsize)
	le32(ph[0:], uint32(elf.PT_LOAD))
	le32(ph[4:], uint32(elf.PF_R|elf.PF_X))
	le64(ph[8:], dataOff)
	le64(ph[16:], vaddr)
	le64(ph[24:], vaddr)
	le64(ph[32:], uint64(len(text)))
	le64(ph[40:], uint64(len(text)))
	le64(ph[48:], 4)

	buf.Write(hdr)
	buf.Write(ph)
	buf.Write(text)
	return buf.Bytes()
}

// newTestKernel wires a Kernel over fresh collaborators with a ramfs
// mounted at root and pid 1 spawned from a minimal ELF image, ready
// for a Sys*/sys* method to be called directly against the returned
// init task.
func newTestKernel(t *testing.T) (*Kernel, *task.TCB) {
	t.Helper()
	alloc := &frame.Allocator{}
	alloc.Init(0x1000, 4096)
	cache := mmcache.New()
	tasks := task.NewTable()
	sched := task.NewScheduler(tasks)
	mounts := vfs.NewTable()

	fs := ramfs.New()
	if err := mounts.Mount(kpath.Root, fs); err != 0 {
		t.Fatalf("mount root: %v", err)
	}

	k := NewKernel(tasks, sched, mounts, alloc, cache)

	image := buildMinimalELF(t)
	init, err := tasks.SpawnInit(alloc, cache, image)
	if err != 0 {
		t.Fatalf("SpawnInit: %v", err)
	}
	sched.Register(init)
	return k, init
}

// growScratch grows t's break by n pages and returns the base address
// of the freshly mapped region, for tests that need a writable user
// buffer beyond the loaded image's single read-only PT_LOAD page.
func growScratch(t *testing.T, k *Kernel, tcb *task.TCB, pages int) uint64 {
	t.Helper()
	base := k.SysBrk(tcb, 0)
	base = (base + 0xfff) &^ 0xfff
	newBrk := k.SysBrk(tcb, base+uint64(pages)*0x1000)
	if newBrk != base+uint64(pages)*0x1000 {
		t.Fatalf("brk grow failed: got %#x", newBrk)
	}
	return base
}
