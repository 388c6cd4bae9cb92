// fd.go implements the descriptor-table syscalls: open/close/dup/
// dup3/read/write/lseek/getdents64/fstat/newfstatat, grounded on the
// teacher's fd.Copyfd (Dup/Dup3) and stat.Stat_t (fstat encoding).
package sys

import (
	"riscvkern/internal/fdtable"
	"riscvkern/internal/kerr"
	"riscvkern/internal/kstat"
	"riscvkern/internal/task"
	"riscvkern/internal/vfs"
)

func (k *Kernel) sysOpenat(t *task.TCB, dirfd int, vaPath uint64, flags int, mode uint32) (int, kerr.Err_t) {
	p, err := k.resolvePath(t, dirfd, vaPath)
	if err != 0 {
		return -1, err
	}
	f, err := k.Mounts.Open(p, flags, mode)
	if err != 0 {
		return -1, err
	}
	perms := fdtable.Read
	switch flags & (vfs.OWronly | vfs.ORdwr) {
	case vfs.OWronly:
		perms = fdtable.Write
	case vfs.ORdwr:
		perms = fdtable.Read | fdtable.Write
	}
	return t.Fds.Install(f, perms)
}

// SysClose closes fd. execve closes no descriptors: this kernel keeps
// no per-fd cloexec flag beyond the bit fdtable.Cloexec reserves.
func (k *Kernel) SysClose(t *task.TCB, fd int) kerr.Err_t {
	return t.Fds.Close(fd)
}

// SysDup installs a reopened copy of oldfd at the lowest free number.
func (k *Kernel) SysDup(t *task.TCB, oldfd int) (int, kerr.Err_t) {
	return t.Fds.Dup(oldfd)
}

// SysDup3 redirects newfd to a reopened copy of oldfd, closing
// whatever newfd already named, per spec.md §6.3 row 24.
func (k *Kernel) SysDup3(t *task.TCB, oldfd, newfd int) kerr.Err_t {
	return t.Fds.Dup3(oldfd, newfd)
}

func (k *Kernel) sysRead(t *task.TCB, fd int, vaBuf uint64, length int) (int, kerr.Err_t) {
	h, err := t.Fds.Get(fd)
	if err != 0 {
		return -1, err
	}
	if h.Perms&fdtable.Read == 0 {
		return -1, kerr.EPERM
	}
	buf := make([]byte, length)
	n, err := h.File.Read(buf)
	if err != 0 {
		return -1, err
	}
	if err := CopyOut(t.MapSet.PT, vaBuf, buf[:n]); err != 0 {
		return -1, err
	}
	return n, 0
}

func (k *Kernel) sysWrite(t *task.TCB, fd int, vaBuf uint64, length int) (int, kerr.Err_t) {
	h, err := t.Fds.Get(fd)
	if err != 0 {
		return -1, err
	}
	if h.Perms&fdtable.Write == 0 {
		return -1, kerr.EPERM
	}
	buf := make([]byte, length)
	if err := CopyIn(t.MapSet.PT, vaBuf, buf); err != 0 {
		return -1, err
	}
	return h.File.Write(buf)
}

func (k *Kernel) sysLseek(t *task.TCB, fd int, off int64, whence int) (int, kerr.Err_t) {
	h, err := t.Fds.Get(fd)
	if err != 0 {
		return -1, err
	}
	pos, err := h.File.Seek(off, whence)
	if err != 0 {
		return -1, err
	}
	return int(pos), 0
}

// linux_dirent64 field widths, per spec.md §6.3.
const direntHeaderSize = 8 + 8 + 2 + 1 // d_ino, d_off, d_reclen, d_type

func direntType(isDir bool) byte {
	if isDir {
		return 4 // DT_DIR
	}
	return 8 // DT_REG
}

// encodeDirents packs the whole of ents into the linux_dirent64 stream
// spec.md §4.12 describes. It always encodes every entry — truncation
// to whatever the caller's buffer and stream position allow happens in
// sliceDirentsAt, so that the byte offset a getdents64 call advances by
// indexes the very same stream a later call recomputes.
func encodeDirents(ents []vfs.DirEntry) []byte {
	var out []byte
	off := uint64(0)
	for _, e := range ents {
		reclen := direntHeaderSize + len(e.Name) + 1
		reclen = (reclen + 7) &^ 7 // 8-byte align, matching the teacher's packed-struct convention
		rec := make([]byte, reclen)
		putLE64(rec[0:8], e.Ino)
		off += uint64(reclen)
		putLE64(rec[8:16], off)
		putLE16(rec[16:18], uint16(reclen))
		rec[18] = direntType(e.IsDir)
		copy(rec[19:], e.Name)
		out = append(out, rec...)
	}
	return out
}

// sliceDirentsAt returns the run of whole records in stream starting
// at byte offset cur that fit within limit bytes, per spec.md §4.12:
// "emit reclen-long records until the caller's buffer is full or the
// stream is exhausted." cur past the end of stream yields an empty
// slice rather than an error, matching getdents64(2)'s "0 means done."
func sliceDirentsAt(stream []byte, cur, limit int) []byte {
	if cur < 0 || cur >= len(stream) {
		return nil
	}
	rest := stream[cur:]
	n := 0
	for n < len(rest) {
		if n+direntHeaderSize > len(rest) {
			break
		}
		reclen := int(rest[n+16]) | int(rest[n+17])<<8
		if reclen <= 0 || n+reclen > limit {
			break
		}
		n += reclen
	}
	return rest[:n]
}

func putLE16(b []byte, v uint16) { b[0], b[1] = byte(v), byte(v>>8) }
func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// sysGetdents64 drives the handle's own byte offset (the same one
// lseek/read use) as the cursor into the directory's re-derived
// linux_dirent64 stream, per spec.md §4.12: a caller looping on
// getdents64 until it returns 0 — the classic Linux ls-style readdir
// pattern this table is modeled on — makes progress call over call
// instead of re-reading the same leading slice forever.
func (k *Kernel) sysGetdents64(t *task.TCB, fd int, vaBuf uint64, length int) (int, kerr.Err_t) {
	h, err := t.Fds.Get(fd)
	if err != 0 {
		return -1, err
	}
	cur, err := h.File.Seek(0, 1)
	if err != 0 {
		return -1, err
	}
	ents, err := h.File.Getdents64()
	if err != 0 {
		return -1, err
	}
	stream := encodeDirents(ents)
	chunk := sliceDirentsAt(stream, int(cur), length)
	if len(chunk) > 0 {
		if _, err := h.File.Seek(int64(len(chunk)), 1); err != 0 {
			return -1, err
		}
	}
	if err := CopyOut(t.MapSet.PT, vaBuf, chunk); err != 0 {
		return -1, err
	}
	return len(chunk), 0
}

func (k *Kernel) statOut(t *task.TCB, st *kstat.Stat_t, vaStat uint64) kerr.Err_t {
	return CopyOut(t.MapSet.PT, vaStat, st.Encode())
}

func (k *Kernel) sysFstat(t *task.TCB, fd int, vaStat uint64) kerr.Err_t {
	h, err := t.Fds.Get(fd)
	if err != 0 {
		return err
	}
	var st kstat.Stat_t
	if err := h.File.Stat(&st); err != 0 {
		return err
	}
	return k.statOut(t, &st, vaStat)
}

func (k *Kernel) sysNewfstatat(t *task.TCB, dirfd int, vaPath, vaStat uint64) kerr.Err_t {
	p, err := k.resolvePath(t, dirfd, vaPath)
	if err != 0 {
		return err
	}
	var st kstat.Stat_t
	if err := k.Mounts.Stat(p, &st); err != 0 {
		return err
	}
	return k.statOut(t, &st, vaStat)
}
