// Package sys dispatches Linux riscv64 syscalls onto this kernel's
// task/vfs/vm collaborators, per spec.md §6.3. Grounded on the
// teacher's sys_*(proc, tf) wrapper convention: Dispatch decodes the
// trap frame's a7/a0..a5 and a user-pointer argument into plain Go
// values, then hands off to a Sys* method that does the actual work
// against typed arguments — the split exists so the logic is testable
// without fabricating a trap frame for every case.
package sys

import (
	"riscvkern/internal/blockdev"
	"riscvkern/internal/frame"
	"riscvkern/internal/kerr"
	"riscvkern/internal/mmcache"
	"riscvkern/internal/sysno"
	"riscvkern/internal/task"
	"riscvkern/internal/vfs"
)

// AtFdcwd is the dirfd sentinel meaning "relative to the caller's cwd",
// per spec.md §6.3's "AT_FDCWD only" rows.
const AtFdcwd = -100

// DeviceEntry is one block device surfaced for mount(2) to name by
// path. Boot registers the whole boot disk as /dev/vda; the MBR scan
// adds no entries here.
type DeviceEntry struct {
	Dev     blockdev.Device
	MBRType byte // 0 for a whole-disk entry with no partition table role
}

// Kernel bundles every collaborator a syscall handler needs, replacing
// the teacher's package-level globals (proc.go's implicit *current*)
// with an explicit struct injected at boot, per spec.md §9's design
// note on process-wide state.
type Kernel struct {
	Tasks   *task.Table
	Sched   *task.Scheduler
	Mounts  *vfs.Table
	Alloc   *frame.Allocator
	Cache   *mmcache.Cache
	Devices map[string]DeviceEntry
}

// NewKernel wires a Kernel over already-constructed collaborators.
func NewKernel(tasks *task.Table, sched *task.Scheduler, mounts *vfs.Table, alloc *frame.Allocator, cache *mmcache.Cache) *Kernel {
	return &Kernel{Tasks: tasks, Sched: sched, Mounts: mounts, Alloc: alloc, Cache: cache, Devices: make(map[string]DeviceEntry)}
}

// Dispatch decodes t's trap frame and runs the named syscall, writing
// its return value back into a0 and advancing sepc past the ecall,
// per spec.md §6.3's "return in a0" convention (negative errno).
func (k *Kernel) Dispatch(t *task.TCB) {
	num, a := t.TF.Syscall()
	rc := k.dispatchNum(t, num, a)
	t.TF.SetReturn(rc)
	t.TF.AdvancePastEcall()
}

func (k *Kernel) dispatchNum(t *task.TCB, num uint64, a [6]uint64) int64 {
	switch num {
	case sysno.Getcwd:
		return k.sysGetcwd(t, a[0], a[1])
	case sysno.Dup:
		return rc1(k.SysDup(t, int(a[0])))
	case sysno.Dup3:
		return rc0(k.SysDup3(t, int(a[0]), int(a[1])))
	case sysno.Mkdirat:
		return rc0(k.sysMkdirat(t, int(a[0]), a[1], uint32(a[2])))
	case sysno.Unlinkat:
		return rc0(k.sysUnlinkat(t, int(a[0]), a[1]))
	case sysno.Umount2:
		return rc0(k.sysUmount2(t, a[0]))
	case sysno.Mount:
		return rc0(k.sysMount(t, a[0], a[1], a[2]))
	case sysno.Chdir:
		return rc0(k.sysChdir(t, a[0]))
	case sysno.Openat:
		return rc1(k.sysOpenat(t, int(a[0]), a[1], int(a[2]), uint32(a[3])))
	case sysno.Close:
		return rc0(k.SysClose(t, int(a[0])))
	case sysno.Pipe2:
		return rc0(k.sysPipe2(t, a[0], int(a[1])))
	case sysno.Getdents64:
		return rc1(k.sysGetdents64(t, int(a[0]), a[1], int(a[2])))
	case 62: // lseek, not named in sysno but present in spec.md §6.3
		return rc1(k.sysLseek(t, int(a[0]), int64(a[1]), int(a[2])))
	case sysno.Read:
		return rc1(k.sysRead(t, int(a[0]), a[1], int(a[2])))
	case sysno.Write:
		return rc1(k.sysWrite(t, int(a[0]), a[1], int(a[2])))
	case sysno.Newfstatat:
		return rc0(k.sysNewfstatat(t, int(a[0]), a[1], a[2]))
	case sysno.Fstat:
		return rc0(k.sysFstat(t, int(a[0]), a[1]))
	case sysno.Exit, sysno.ExitGroup:
		k.Tasks.Exit(t, int(int32(a[0])))
		return 0
	case sysno.SchedYield:
		k.Sched.Yield(t)
		return 0
	case sysno.Uname:
		return rc0(k.sysUname(t, a[0]))
	case sysno.Getpid:
		return int64(t.Pid)
	case sysno.Getppid:
		return int64(t.Ppid)
	case sysno.Brk:
		return int64(k.SysBrk(t, a[0]))
	case sysno.Munmap:
		return rc0(t.MapSet.Munmap(a[0], a[1]))
	case sysno.Clone:
		return rc1(k.sysClone(t, a[0], a[1]))
	case sysno.Execve:
		return rc0(k.sysExecve(t, a[0], a[1], a[2]))
	case sysno.Mmap:
		return k.sysMmap(t, a[0], a[1], a[2], uint32(a[3]), int(a[4]), int64(a[5]))
	case sysno.Wait4:
		return rc1(k.sysWait4(t, int(int32(a[0])), a[1]))
	default:
		return int64(kerr.ENOSYS.Rc())
	}
}

func rc0(err kerr.Err_t) int64 {
	if err != 0 {
		return int64(-err)
	}
	return 0
}

func rc1(v int, err kerr.Err_t) int64 {
	if err != 0 {
		return int64(-err)
	}
	return int64(v)
}
