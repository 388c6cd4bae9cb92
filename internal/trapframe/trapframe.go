// Package trapframe defines the saved-register layout exchanged between
// user mode and the kernel on every trap, per spec.md §4.5/§6.5. The
// frame lives at the fixed virtual address kconfig.TrapContextVA in
// every address space, mirroring the teacher's tf.go integer layout but
// sized and ordered for rv64's 32 general-purpose registers.
package trapframe

import "riscvkern/internal/kconfig"

// Register indices into Frame.X, matching the RISC-V calling
// convention names used throughout the trap/syscall path.
const (
	RA = 1
	SP = 2
	GP = 3
	TP = 4
	A0 = 10
	A1 = 11
	A2 = 12
	A3 = 13
	A4 = 14
	A5 = 15
	A7 = 17
)

// Frame is the trap-time snapshot of a task's integer register file
// plus the privileged CSRs a trap handler needs to resume or redirect
// execution.
type Frame struct {
	X [32]uint64 // general-purpose registers, x0 unused but present for indexing symmetry

	Sepc   uint64 // faulting/return PC
	Sstatus uint64
	Scause  uint64
	Stval   uint64
	Satp    uint64 // address space active at trap time
}

// VA is the fixed virtual address the trap frame is mapped at in every
// address space (spec.md §4.5).
const VA = kconfig.TrapContextVA

// Syscall returns the syscall number (a7) and its six argument
// registers (a0..a5), per spec.md §6.3's Linux riscv64 ABI.
func (f *Frame) Syscall() (num uint64, args [6]uint64) {
	return f.X[A7], [6]uint64{f.X[A0], f.X[A1], f.X[A2], f.X[A3], f.X[A4], f.X[A5]}
}

// SetReturn writes a syscall's return value into a0, following the
// single-register return convention spec.md §6.3 specifies (negative
// errno, like Linux, rather than a separate error register).
func (f *Frame) SetReturn(v int64) {
	f.X[A0] = uint64(v)
}

// AdvancePastEcall steps sepc past the 4-byte ecall instruction that
// trapped into the kernel, so sret resumes at the following
// instruction rather than re-executing the syscall.
func (f *Frame) AdvancePastEcall() {
	f.Sepc += 4
}
