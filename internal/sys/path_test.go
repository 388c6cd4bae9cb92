package sys

import (
	"testing"

	"riscvkern/internal/kerr"
	"riscvkern/internal/pagetable"
	"riscvkern/internal/vfs"
)

func writeUserString(t *testing.T, pt *pagetable.Table, va uint64, s string) {
	t.Helper()
	if err := CopyOut(pt, va, []byte(s+"\x00")); err != 0 {
		t.Fatalf("CopyOut: %v", err)
	}
}

func TestMkdiratUnlinkatRoundtrip(t *testing.T) {
	k, initTask := newTestKernel(t)
	base := growScratch(t, k, initTask, 4)
	writeUserString(t, initTask.MapSet.PT, base, "/tmp")

	if err := k.sysMkdirat(initTask, AtFdcwd, base, 0o755); err != 0 {
		t.Fatalf("mkdirat: %v", err)
	}
	if err := k.sysUnlinkat(initTask, AtFdcwd, base); err != 0 {
		t.Fatalf("unlinkat an empty directory: %v", err)
	}
}

func TestChdirGetcwdRoundtrip(t *testing.T) {
	k, initTask := newTestKernel(t)
	base := growScratch(t, k, initTask, 4)
	writeUserString(t, initTask.MapSet.PT, base, "/tmp")
	if err := k.sysMkdirat(initTask, AtFdcwd, base, 0o755); err != 0 {
		t.Fatalf("mkdirat: %v", err)
	}

	writeUserString(t, initTask.MapSet.PT, base, "/tmp")
	if err := k.sysChdir(initTask, base); err != 0 {
		t.Fatalf("chdir: %v", err)
	}

	outVA := base + 0x200
	rc := k.sysGetcwd(initTask, outVA, 64)
	if rc < 0 {
		t.Fatalf("getcwd: %v", kerr.Err_t(-rc))
	}
	got, err := CopyInString(initTask.MapSet.PT, outVA)
	if err != 0 {
		t.Fatalf("CopyInString: %v", err)
	}
	if got != "/tmp" {
		t.Fatalf("cwd = %q, want /tmp", got)
	}
}

func TestChdirOnFileIsNotADirectory(t *testing.T) {
	k, initTask := newTestKernel(t)
	base := growScratch(t, k, initTask, 4)
	writeUserString(t, initTask.MapSet.PT, base, "/foo")
	fd, err := k.sysOpenat(initTask, AtFdcwd, base, vfs.OCreat|vfs.OWronly, 0o644)
	if err != 0 {
		t.Fatalf("openat: %v", err)
	}
	k.SysClose(initTask, fd)

	writeUserString(t, initTask.MapSet.PT, base, "/foo")
	if err := k.sysChdir(initTask, base); err != kerr.ENOTDIR {
		t.Fatalf("chdir on a file = %v, want ENOTDIR", err)
	}
}

func TestUmount2RefusesRoot(t *testing.T) {
	k, initTask := newTestKernel(t)
	base := growScratch(t, k, initTask, 4)
	writeUserString(t, initTask.MapSet.PT, base, "/")
	if err := k.sysUmount2(initTask, base); err != kerr.EBUSY {
		t.Fatalf("umount2(/) = %v, want EBUSY", err)
	}
}

func TestMountUnknownSourceIsNoEnt(t *testing.T) {
	k, initTask := newTestKernel(t)
	base := growScratch(t, k, initTask, 4)
	writeUserString(t, initTask.MapSet.PT, base, "/dev/sda1")
	writeUserString(t, initTask.MapSet.PT, base+0x100, "/mnt")
	writeUserString(t, initTask.MapSet.PT, base+0x200, "fat32")
	if err := k.sysMount(initTask, base, base+0x100, base+0x200); err != kerr.ENOENT {
		t.Fatalf("mount unknown src = %v, want ENOENT", err)
	}
}

func TestMountUnsupportedExt4(t *testing.T) {
	k, initTask := newTestKernel(t)
	k.Devices["/dev/sda1"] = DeviceEntry{}
	base := growScratch(t, k, initTask, 4)
	writeUserString(t, initTask.MapSet.PT, base, "/dev/sda1")
	writeUserString(t, initTask.MapSet.PT, base+0x100, "/mnt")
	writeUserString(t, initTask.MapSet.PT, base+0x200, "ext4")
	if err := k.sysMount(initTask, base, base+0x100, base+0x200); err != kerr.ENOTSUP {
		t.Fatalf("mount ext4 = %v, want ENOTSUP", err)
	}
}
