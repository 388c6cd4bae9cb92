// proc.go implements clone/execve/wait4, grounded on the teacher's
// Fork/sys_execv (tinfo.go's child bookkeeping) adapted to this
// reimplementation's no-CoW task.Fork and explicit task.TCB.Exec.
package sys

import (
	"riscvkern/internal/kerr"
	"riscvkern/internal/kpath"
	"riscvkern/internal/kstat"
	"riscvkern/internal/task"
	"riscvkern/internal/trapframe"
)

// cloneSignalMask is the only bit range clone(2) may legally set, per
// spec.md §6.3 row 220: "only low-8 (signal) may be set".
const cloneSignalMask = 0xff

func (k *Kernel) sysClone(t *task.TCB, flags, stack uint64) (int, kerr.Err_t) {
	if flags&^cloneSignalMask != 0 {
		return -1, kerr.EINVAL
	}
	child, err := k.Tasks.Fork(k.Alloc, t)
	if err != 0 {
		return -1, err
	}
	if stack != 0 {
		child.TF.X[trapframe.SP] = stack
	}
	child.TF.SetReturn(0)
	k.Sched.Register(child)
	return int(child.Pid), 0
}

func (k *Kernel) readFile(p kpath.Path) ([]byte, kerr.Err_t) {
	f, err := k.Mounts.Open(p, 0, 0)
	if err != 0 {
		return nil, err
	}
	defer f.Close()
	var st kstat.Stat_t
	if err := f.Stat(&st); err != 0 {
		return nil, err
	}
	buf := make([]byte, st.Size())
	off := 0
	for off < len(buf) {
		n, err := f.ReadAt(buf[off:], int64(off))
		if err != 0 {
			return nil, err
		}
		if n == 0 {
			break
		}
		off += n
	}
	return buf[:off], 0
}

// sysExecve replaces t's image in place, then lays out argv on the new
// user stack per spec.md §6.5: argc, argv[0..argc] NUL-terminated byte
// strings, padded to 8 bytes, with a0 left pointing at the stack's new
// top. envp is read but discarded (spec.md §6.3 row 221: "envp
// ignored").
func (k *Kernel) sysExecve(t *task.TCB, vaPath, vaArgv, vaEnvp uint64) kerr.Err_t {
	pathStr, err := CopyInString(t.MapSet.PT, vaPath)
	if err != 0 {
		return err
	}
	p := t.Cwd.Canonicalpath(pathStr)
	image, err := k.readFile(p)
	if err != 0 {
		return err
	}

	argvPtrs, err := CopyInPtrArray(t.MapSet.PT, vaArgv)
	if err != 0 {
		return err
	}
	argv := make([]string, len(argvPtrs))
	for i, ptr := range argvPtrs {
		s, err := CopyInString(t.MapSet.PT, ptr)
		if err != 0 {
			return err
		}
		argv[i] = s
	}

	if err := t.Exec(k.Alloc, k.Cache, image); err != 0 {
		return err
	}
	return pushArgv(t, argv)
}

// pushArgv writes argv below the stack top Exec just set and adjusts
// a0/sp to the layout spec.md §6.5 describes.
func pushArgv(t *task.TCB, argv []string) kerr.Err_t {
	sp := t.TF.X[trapframe.SP]

	strAddrs := make([]uint64, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i] + "\x00"
		sp -= uint64(len(s))
		if err := CopyOut(t.MapSet.PT, sp, []byte(s)); err != 0 {
			return err
		}
		strAddrs[i] = sp
	}
	sp &^= 7 // 8-byte align

	argvTableSz := uint64(len(argv)+1) * 8
	sp -= argvTableSz
	sp &^= 7

	var ptrBuf [8]byte
	for i, addr := range strAddrs {
		le64(ptrBuf[:], addr)
		if err := CopyOut(t.MapSet.PT, sp+uint64(i)*8, ptrBuf[:]); err != 0 {
			return err
		}
	}
	le64(ptrBuf[:], 0)
	if err := CopyOut(t.MapSet.PT, sp+uint64(len(argv))*8, ptrBuf[:]); err != 0 {
		return err
	}

	sp -= 8
	le64(ptrBuf[:], uint64(len(argv)))
	if err := CopyOut(t.MapSet.PT, sp, ptrBuf[:]); err != 0 {
		return err
	}

	t.TF.X[trapframe.SP] = sp
	t.TF.X[trapframe.A0] = sp
	return 0
}

func le64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// sysWait4 blocks until a matching child exits, writing its Linux
// wait-status encoding (exit code in bits 8..15) to the user's status
// pointer if non-NULL. rusage is always NULL per spec.md §6.3 row 260
// and is not written.
func (k *Kernel) sysWait4(t *task.TCB, pid int, vaStatus uint64) (int, kerr.Err_t) {
	childPid, code, err := k.Tasks.Wait(t, task.Pid_t(pid))
	if err != 0 {
		return -1, err
	}
	if vaStatus != 0 {
		var buf [4]byte
		status := uint32(code&0xff) << 8
		buf[0], buf[1], buf[2], buf[3] = byte(status), byte(status>>8), byte(status>>16), byte(status>>24)
		if err := CopyOut(t.MapSet.PT, vaStatus, buf[:]); err != 0 {
			return -1, err
		}
	}
	return int(childPid), 0
}
