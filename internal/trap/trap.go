// Package trap classifies and dispatches traps arriving via scause,
// per spec.md §6.5. Grounded on the original_source Rust kernel's
// trap/pagefaultHandler.rs for cause classification (the rv64 supervisor
// exception codes are architectural, not teacher-specific) and on the
// teacher's own dispatch-by-table style (fd/fd.go's Syscall switch).
package trap

import (
	"riscvkern/internal/kerr"
	"riscvkern/internal/pagetable"
	"riscvkern/internal/trapframe"
	"riscvkern/internal/vm"
)

// Supervisor cause codes relevant to this kernel, per the RISC-V
// privileged spec (scause, bit 63 clear selects the Exception table).
const (
	CauseInstructionPageFault = 12
	CauseLoadPageFault        = 13
	CauseStorePageFault       = 15
	CauseEcallFromU           = 8
)

// Outcome tells the caller (the trap entry assembly stub this package
// has no access to) what to do once Handle returns.
type Outcome int

const (
	Resume Outcome = iota // sret back into the task, tf already updated
	Kill                  // the task violated memory safety; the scheduler reaps it
)

// Dispatcher wires a task's address space and a syscall table together
// so Handle can resolve both trap and ecall without this package
// importing task or sys.
type Dispatcher struct {
	Syscall func(tf *trapframe.Frame) int64
}

// Handle classifies tf.Scause and acts: page faults are routed to ms's
// demand-paging fill-in, A/D repair, or a Kill verdict; ecall traps
// invoke d.Syscall and advance sepc past the ecall instruction.
func (d *Dispatcher) Handle(tf *trapframe.Frame, ms *vm.MapSet) Outcome {
	switch tf.Scause {
	case CauseEcallFromU:
		tf.AdvancePastEcall()
		rv := d.Syscall(tf)
		tf.SetReturn(rv)
		return Resume

	case CauseInstructionPageFault, CauseLoadPageFault, CauseStorePageFault:
		vpn := pagetable.AddrToVPN(tf.Stval)
		wantWrite := tf.Scause == CauseStorePageFault
		if err := ms.Fault(vpn, wantWrite); err != 0 {
			return Kill
		}
		return Resume

	default:
		return Kill
	}
}

// ErrnoReturn converts a kerr.Err_t into the negative-errno convention
// spec.md §6.3 specifies for syscall returns.
func ErrnoReturn(err kerr.Err_t) int64 {
	if err == 0 {
		return 0
	}
	return -int64(err)
}
