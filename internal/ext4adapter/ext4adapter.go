// Package ext4adapter wraps a third-party ext4 implementation as a
// vfs.VfsFs, per spec.md §1's "a third-party ext4 driver (wrapped as a
// VFS backend)" — the driver itself is an external collaborator, out
// of scope, only its interface stated. Grounded on the teacher's
// ufs.Ufs_t: a thin struct that holds the real engine and translates
// every call into the engine's own vocabulary, never reimplementing
// the underlying logic.
//
// Driver models the surface any reasonable Go ext4 library exposes:
// POSIX-flavored paths and stdlib errors, offsets as int64, rather
// than this kernel's kpath.Path/kerr.Err_t. Adapter's job is exactly
// that translation.
package ext4adapter

import (
	"errors"
	"io"
	"os"

	"riscvkern/internal/kerr"
	"riscvkern/internal/kpath"
	"riscvkern/internal/kstat"
	"riscvkern/internal/vfs"
)

// DriverStat is the subset of file metadata a driver's Stat call
// reports.
type DriverStat struct {
	Ino   uint64
	Size  int64
	IsDir bool
}

// DriverFile is the per-open-file handle a driver hands back.
type DriverFile interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Readdir() ([]DriverDirent, error)
	Stat() (DriverStat, error)
	Close() error
}

// DriverDirent is one entry a driver's Readdir call reports.
type DriverDirent struct {
	Ino   uint64
	Name  string
	IsDir bool
}

// Driver is the external ext4 engine's surface. A real library's
// *ext4.FileSystem (or equivalent) is expected to already expose
// something in this shape; Adapter never reimplements ext4 layout
// parsing itself.
type Driver interface {
	OpenFile(path string, flags int, mode os.FileMode) (DriverFile, error)
	Mkdir(path string, mode os.FileMode) error
	Remove(path string) error
	Stat(path string) (DriverStat, error)
	Sync() error
}

// Adapter implements vfs.VfsFs over a Driver.
type Adapter struct {
	drv Driver
}

// New wraps drv as a VfsFs.
func New(drv Driver) *Adapter {
	return &Adapter{drv: drv}
}

func translate(err error) kerr.Err_t {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, os.ErrNotExist):
		return kerr.ENOENT
	case errors.Is(err, os.ErrExist):
		return kerr.EEXIST
	case errors.Is(err, os.ErrPermission):
		return kerr.EPERM
	default:
		return kerr.EIO
	}
}

// posixFlags maps this kernel's vfs open flags onto the os.O_* flags
// most Go ext4 drivers mirror.
func posixFlags(flags int) int {
	out := 0
	switch flags & (vfs.OWronly | vfs.ORdwr) {
	case vfs.OWronly:
		out |= os.O_WRONLY
	case vfs.ORdwr:
		out |= os.O_RDWR
	}
	if flags&vfs.OCreat != 0 {
		out |= os.O_CREATE
	}
	if flags&vfs.OExcl != 0 {
		out |= os.O_EXCL
	}
	if flags&vfs.OTrunc != 0 {
		out |= os.O_TRUNC
	}
	if flags&vfs.OAppend != 0 {
		out |= os.O_APPEND
	}
	return out
}

func (a *Adapter) Open(path kpath.Path, flags int, mode uint32) (vfs.File, kerr.Err_t) {
	f, err := a.drv.OpenFile(string(path), posixFlags(flags), os.FileMode(mode))
	if err != nil {
		return nil, translate(err)
	}
	return &handle{f: f}, 0
}

func (a *Adapter) Mkdir(path kpath.Path, mode uint32) kerr.Err_t {
	return translate(a.drv.Mkdir(string(path), os.FileMode(mode)))
}

func (a *Adapter) Unlink(path kpath.Path) kerr.Err_t {
	return translate(a.drv.Remove(string(path)))
}

func (a *Adapter) Stat(path kpath.Path, st *kstat.Stat_t) kerr.Err_t {
	ds, err := a.drv.Stat(string(path))
	if err != nil {
		return translate(err)
	}
	fillStat(ds, st)
	return 0
}

func (a *Adapter) Sync() kerr.Err_t {
	return translate(a.drv.Sync())
}

func fillStat(ds DriverStat, st *kstat.Stat_t) {
	st.Wino(ds.Ino)
	st.Wsize(uint64(ds.Size))
	mode := kstat.ModePerm
	if ds.IsDir {
		mode |= kstat.ModeDir
	} else {
		mode |= kstat.ModeReg
	}
	st.Wmode(mode)
	st.Wnlink(1)
}

// handle adapts a DriverFile to vfs.File.
type handle struct {
	f   DriverFile
	off int64
}

func (h *handle) Read(buf []byte) (int, kerr.Err_t) {
	n, err := h.ReadAt(buf, h.off)
	if err == 0 {
		h.off += int64(n)
	}
	return n, err
}

func (h *handle) ReadAt(buf []byte, off int64) (int, kerr.Err_t) {
	n, err := h.f.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, translate(err)
	}
	return n, 0
}

func (h *handle) Write(buf []byte) (int, kerr.Err_t) {
	n, err := h.WriteAt(buf, h.off)
	if err == 0 {
		h.off += int64(n)
	}
	return n, err
}

func (h *handle) WriteAt(buf []byte, off int64) (int, kerr.Err_t) {
	n, err := h.f.WriteAt(buf, off)
	return n, translate(err)
}

func (h *handle) Seek(off int64, whence int) (int64, kerr.Err_t) {
	switch whence {
	case 0:
		h.off = off
	case 1:
		h.off += off
	case 2:
		st, err := h.f.Stat()
		if err != nil {
			return 0, translate(err)
		}
		h.off = st.Size + off
	default:
		return 0, kerr.EINVAL
	}
	return h.off, 0
}

func (h *handle) Stat(st *kstat.Stat_t) kerr.Err_t {
	ds, err := h.f.Stat()
	if err != nil {
		return translate(err)
	}
	fillStat(ds, st)
	return 0
}

func (h *handle) Getdents64() ([]vfs.DirEntry, kerr.Err_t) {
	ents, err := h.f.Readdir()
	if err != nil {
		return nil, translate(err)
	}
	out := make([]vfs.DirEntry, len(ents))
	for i, e := range ents {
		out[i] = vfs.DirEntry{Ino: e.Ino, Name: e.Name, IsDir: e.IsDir}
	}
	return out, 0
}

func (h *handle) Close() kerr.Err_t  { return translate(h.f.Close()) }
func (h *handle) Reopen() kerr.Err_t { return 0 }
func (h *handle) InodeNum() uint64 {
	st, err := h.f.Stat()
	if err != nil {
		return 0
	}
	return st.Ino
}
