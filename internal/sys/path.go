// path.go implements the path-resolution and mount-table syscalls,
// grounded on the teacher's fd.Cwd_t.Canonicalpath for cwd-relative
// resolution, simplified to AT_FDCWD-only per spec.md §6.3's "dirfd
// ignored"/"AT_FDCWD only" rows — this kernel never needs an
// arbitrary open directory fd as a resolution base.
package sys

import (
	"riscvkern/internal/fat32"
	"riscvkern/internal/kerr"
	"riscvkern/internal/kpath"
	"riscvkern/internal/kstat"
	"riscvkern/internal/task"
)

func (k *Kernel) resolvePath(t *task.TCB, dirfd int, vaPath uint64) (kpath.Path, kerr.Err_t) {
	if dirfd != AtFdcwd {
		return "", kerr.ENOTSUP
	}
	s, err := CopyInString(t.MapSet.PT, vaPath)
	if err != 0 {
		return "", err
	}
	return t.Cwd.Canonicalpath(s), 0
}

func (k *Kernel) sysMkdirat(t *task.TCB, dirfd int, vaPath uint64, mode uint32) kerr.Err_t {
	p, err := k.resolvePath(t, dirfd, vaPath)
	if err != 0 {
		return err
	}
	return k.Mounts.Mkdir(p, mode)
}

func (k *Kernel) sysUnlinkat(t *task.TCB, dirfd int, vaPath uint64) kerr.Err_t {
	p, err := k.resolvePath(t, dirfd, vaPath)
	if err != 0 {
		return err
	}
	return k.Mounts.Unlink(p)
}

func (k *Kernel) sysChdir(t *task.TCB, vaPath uint64) kerr.Err_t {
	s, err := CopyInString(t.MapSet.PT, vaPath)
	if err != 0 {
		return err
	}
	p := t.Cwd.Canonicalpath(s)
	var st kstat.Stat_t
	if err := k.Mounts.Stat(p, &st); err != 0 {
		return err
	}
	if st.Mode()&kstat.ModeDir == 0 {
		return kerr.ENOTDIR
	}
	t.Cwd.Path = p
	return 0
}

func (k *Kernel) sysGetcwd(t *task.TCB, vaBuf uint64, length uint64) int64 {
	s := string(t.Cwd.Path) + "\x00"
	if uint64(len(s)) > length {
		return int64(-kerr.ERANGE)
	}
	if err := CopyOut(t.MapSet.PT, vaBuf, []byte(s)); err != 0 {
		return int64(-err)
	}
	return int64(vaBuf)
}

// sysMount looks up src among the devices internal/boot surfaced and
// mounts the requested backend at target, per spec.md §6.3 row 40.
// data and flags are accepted but unused (fstype alone selects the
// backend). The ext4 backend requires a concrete third-party driver
// this kernel never instantiates (spec.md §1's explicit out-of-scope
// collaborator), so "ext4" and an "auto" MBR type other than FAT is
// ENOTSUP.
func (k *Kernel) sysMount(t *task.TCB, vaSrc, vaTarget, vaFstype uint64) kerr.Err_t {
	src, err := CopyInString(t.MapSet.PT, vaSrc)
	if err != 0 {
		return err
	}
	targetStr, err := CopyInString(t.MapSet.PT, vaTarget)
	if err != 0 {
		return err
	}
	fstype, err := CopyInString(t.MapSet.PT, vaFstype)
	if err != 0 {
		return err
	}
	target := t.Cwd.Canonicalpath(targetStr)

	dev, ok := k.Devices[src]
	if !ok {
		return kerr.ENOENT
	}
	switch fstype {
	case "fat32", "vfat":
		fs, err := fat32.Mount(dev.Dev)
		if err != 0 {
			return err
		}
		return k.Mounts.Mount(target, fs)
	case "ext4":
		return kerr.ENOTSUP
	case "auto":
		switch dev.MBRType {
		case 0x0B, 0x0C, 0x0E:
			fs, err := fat32.Mount(dev.Dev)
			if err != 0 {
				return err
			}
			return k.Mounts.Mount(target, fs)
		case 0x83:
			return kerr.ENOTSUP // ext4, no wired driver
		default:
			return kerr.ENOTSUP
		}
	default:
		return kerr.EINVAL
	}
}

func (k *Kernel) sysUmount2(t *task.TCB, vaTarget uint64) kerr.Err_t {
	s, err := CopyInString(t.MapSet.PT, vaTarget)
	if err != 0 {
		return err
	}
	target := t.Cwd.Canonicalpath(s)
	if target == kpath.Root {
		return kerr.EBUSY
	}
	return k.Mounts.Umount(target)
}
