// uname.go implements uname(2), per spec.md §6.3 row 160 and
// SPEC_FULL.md's supplemented field content: the original kernel this
// was distilled from reports sysname "Linux", a fixed nodename, a
// release/version string, and machine "riscv64" — reproduced here
// identically since spec.md leaves the six fields' content
// unspecified.
package sys

import (
	"riscvkern/internal/kerr"
	"riscvkern/internal/task"
)

const utsFieldLen = 65

var utsFields = [6]string{
	"Linux",      // sysname
	"riscvkern",  // nodename
	"6.1.0",      // release
	"#1",         // version
	"riscv64",    // machine
	"(none)",     // domainname
}

func (k *Kernel) sysUname(t *task.TCB, vaBuf uint64) kerr.Err_t {
	buf := make([]byte, utsFieldLen*6)
	for i, s := range utsFields {
		copy(buf[i*utsFieldLen:(i+1)*utsFieldLen], s)
	}
	return CopyOut(t.MapSet.PT, vaBuf, buf)
}
