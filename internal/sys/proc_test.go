package sys

import (
	"testing"

	"riscvkern/internal/kerr"
	"riscvkern/internal/task"
)

func TestSysCloneForksAndRegistersChild(t *testing.T) {
	k, initTask := newTestKernel(t)
	childPid, err := k.sysClone(initTask, 0, 0)
	if err != 0 {
		t.Fatalf("clone: %v", err)
	}
	child := k.Tasks.Get(task.Pid_t(childPid))
	if child == nil {
		t.Fatalf("child %d not registered in the task table", childPid)
	}
	if child.TF.X[10] != 0 { // a0, the return value the child sees
		t.Fatalf("child's syscall return slot should read 0, got %#x", child.TF.X[10])
	}
}

func TestSysCloneRejectsNonSignalFlags(t *testing.T) {
	k, initTask := newTestKernel(t)
	if _, err := k.sysClone(initTask, 0x100, 0); err != kerr.EINVAL {
		t.Fatalf("clone with out-of-range flags = %v, want EINVAL", err)
	}
}

func TestSysWait4ReapsExitedChild(t *testing.T) {
	k, initTask := newTestKernel(t)
	childPid, err := k.sysClone(initTask, 0, 0)
	if err != 0 {
		t.Fatalf("clone: %v", err)
	}
	child := k.Tasks.Get(task.Pid_t(childPid))
	k.Tasks.Exit(child, 7)

	base := growScratch(t, k, initTask, 1)
	reaped, err := k.sysWait4(initTask, childPid, base)
	if err != 0 {
		t.Fatalf("wait4: %v", err)
	}
	if reaped != childPid {
		t.Fatalf("wait4 reaped %d, want %d", reaped, childPid)
	}
	var statusBuf [4]byte
	if err := CopyIn(initTask.MapSet.PT, base, statusBuf[:]); err != 0 {
		t.Fatalf("CopyIn: %v", err)
	}
	status := uint32(statusBuf[0]) | uint32(statusBuf[1])<<8 | uint32(statusBuf[2])<<16 | uint32(statusBuf[3])<<24
	if code := (status >> 8) & 0xff; code != 7 {
		t.Fatalf("exit code in status = %d, want 7", code)
	}
}

func TestSysWait4OnNonChildIsEchild(t *testing.T) {
	k, initTask := newTestKernel(t)
	if _, err := k.sysWait4(initTask, 999, 0); err != kerr.ECHILD {
		t.Fatalf("wait4 on unknown pid = %v, want ECHILD", err)
	}
}

func TestSysExecveReplacesImageAndLaysOutArgv(t *testing.T) {
	k, initTask := newTestKernel(t)
	base := growScratch(t, k, initTask, 4)
	pathVA, argv0VA, argvTableVA, imageVA := base, base+0x100, base+0x200, base+0x800

	image := buildMinimalELF(t)
	if err := CopyOut(initTask.MapSet.PT, imageVA, image); err != 0 {
		t.Fatalf("CopyOut image: %v", err)
	}

	writeUserString(t, initTask.MapSet.PT, pathVA, "/bin/replacement")
	fd, err := k.sysOpenat(initTask, AtFdcwd, pathVA, 0x40|0x1, 0o755) // O_CREAT|O_WRONLY
	if err != 0 {
		t.Fatalf("create target: %v", err)
	}
	if n, err := k.sysWrite(initTask, fd, imageVA, len(image)); err != 0 || n != len(image) {
		t.Fatalf("write image: n=%d err=%v", n, err)
	}
	k.SysClose(initTask, fd)

	writeUserString(t, initTask.MapSet.PT, argv0VA, "replacement")
	var ptrBuf [16]byte
	le64(ptrBuf[0:8], argv0VA)
	le64(ptrBuf[8:16], 0)
	if err := CopyOut(initTask.MapSet.PT, argvTableVA, ptrBuf[:]); err != 0 {
		t.Fatalf("CopyOut argv table: %v", err)
	}

	writeUserString(t, initTask.MapSet.PT, pathVA, "/bin/replacement")
	if err := k.sysExecve(initTask, pathVA, argvTableVA, 0); err != 0 {
		t.Fatalf("execve: %v", err)
	}
	if initTask.TF.Sepc != 0x1_0000 {
		t.Fatalf("post-exec sepc = %#x, want 0x10000", initTask.TF.Sepc)
	}
	sp := initTask.TF.X[2]
	if initTask.TF.X[10] != sp { // a0 points at the new stack top
		t.Fatalf("post-exec a0 = %#x, want sp %#x", initTask.TF.X[10], sp)
	}
	var argcBuf [8]byte
	if err := CopyIn(initTask.MapSet.PT, sp, argcBuf[:]); err != 0 {
		t.Fatalf("CopyIn argc: %v", err)
	}
	if argc := leUint64(argcBuf[:]); argc != 1 {
		t.Fatalf("argc on the new stack = %d, want 1", argc)
	}
}
