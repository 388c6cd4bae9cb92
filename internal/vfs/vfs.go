// Package vfs implements the virtual filesystem layer of spec.md §4.8:
// the mount graph, the File/VfsFs capability interfaces every backend
// (ramfs, FAT32, the ext4 adapter) implements, and path resolution across
// mount points by longest-prefix match. Grounded on the teacher's
// fd.Fd_t/fdops.Fdops_i split between descriptor and backend operations,
// generalized to a filesystem-level capability interface since this
// kernel's backends are swappable per mount rather than singular.
package vfs

import (
	"sync"

	"riscvkern/internal/kerr"
	"riscvkern/internal/kpath"
	"riscvkern/internal/kstat"
)

// OpenFlags mirrors the subset of POSIX open(2) flags spec.md §6.3
// names.
const (
	ORdonly  = 0x0
	OWronly  = 0x1
	ORdwr    = 0x2
	OCreat   = 0x40
	OExcl    = 0x80
	OTrunc   = 0x200
	OAppend  = 0x400
	ODirectory = 0x10000
)

// DirEntry is one entry returned by Getdents64.
type DirEntry struct {
	Ino     uint64
	Name    string
	IsDir   bool
}

// File is the per-open-descriptor capability every backend's open
// returns, mirroring fdops.Fdops_i's shape (Read/Write/Close/Stat) but
// also carrying the byte-addressable ReadAt/WriteAt pair vm.Backing
// needs for mmap (spec.md §3) and an InodeNum for the shared mmap
// cache's File key.
type File interface {
	Read(buf []byte) (int, kerr.Err_t)
	Write(buf []byte) (int, kerr.Err_t)
	ReadAt(buf []byte, off int64) (int, kerr.Err_t)
	WriteAt(buf []byte, off int64) (int, kerr.Err_t)
	Seek(off int64, whence int) (int64, kerr.Err_t)
	Stat(st *kstat.Stat_t) kerr.Err_t
	Getdents64() ([]DirEntry, kerr.Err_t)
	Close() kerr.Err_t
	Reopen() kerr.Err_t
	InodeNum() uint64
}

// VfsFs is the per-mount backend capability: everything a mount point
// needs to resolve and mutate paths beneath it. path is always
// relative to the backend's own root (the mount prefix already
// stripped by the mount table).
type VfsFs interface {
	Open(path kpath.Path, flags int, mode uint32) (File, kerr.Err_t)
	Mkdir(path kpath.Path, mode uint32) kerr.Err_t
	Unlink(path kpath.Path) kerr.Err_t
	Stat(path kpath.Path, st *kstat.Stat_t) kerr.Err_t
	Sync() kerr.Err_t
}

// mount is one entry in the mount table.
type mount struct {
	prefix kpath.Path
	fs     VfsFs
}

// Table is the kernel-wide mount graph: an unordered set of mounts,
// resolved by longest matching prefix, per spec.md §4.8.
type Table struct {
	mu     sync.RWMutex
	mounts []mount
}

// NewTable returns an empty mount table.
func NewTable() *Table {
	return &Table{}
}

// Mount installs fs at prefix. Remounting an already-mounted prefix is
// EBUSY.
func (t *Table) Mount(prefix kpath.Path, fs VfsFs) kerr.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.mounts {
		if m.prefix == prefix {
			return kerr.EBUSY
		}
	}
	t.mounts = append(t.mounts, mount{prefix: prefix, fs: fs})
	return 0
}

// Umount removes the mount at prefix.
func (t *Table) Umount(prefix kpath.Path) kerr.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, m := range t.mounts {
		if m.prefix == prefix {
			t.mounts = append(t.mounts[:i], t.mounts[i+1:]...)
			return 0
		}
	}
	return kerr.EINVAL
}

// Resolve finds the mount covering p by longest-prefix match and
// returns that backend plus the path relative to its root.
func (t *Table) Resolve(p kpath.Path) (VfsFs, kpath.Path, kerr.Err_t) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best *mount
	var bestRel kpath.Path
	bestLen := -1
	for i := range t.mounts {
		m := &t.mounts[i]
		rel, ok := kpath.HasPrefixComponents(p, m.prefix)
		if !ok {
			continue
		}
		if l := len(kpath.Split(m.prefix)); l > bestLen {
			best, bestRel, bestLen = m, rel, l
		}
	}
	if best == nil {
		return nil, "", kerr.ENOENT
	}
	return best.fs, bestRel, 0
}

// Open resolves p across the mount table and opens it on the owning
// backend.
func (t *Table) Open(p kpath.Path, flags int, mode uint32) (File, kerr.Err_t) {
	fs, rel, err := t.Resolve(p)
	if err != 0 {
		return nil, err
	}
	return fs.Open(rel, flags, mode)
}

// Mkdir resolves p across the mount table and creates it on the owning
// backend.
func (t *Table) Mkdir(p kpath.Path, mode uint32) kerr.Err_t {
	fs, rel, err := t.Resolve(p)
	if err != 0 {
		return err
	}
	return fs.Mkdir(rel, mode)
}

// Unlink resolves p across the mount table and removes it.
func (t *Table) Unlink(p kpath.Path) kerr.Err_t {
	fs, rel, err := t.Resolve(p)
	if err != 0 {
		return err
	}
	return fs.Unlink(rel)
}

// Stat resolves p across the mount table and stats it.
func (t *Table) Stat(p kpath.Path, st *kstat.Stat_t) kerr.Err_t {
	fs, rel, err := t.Resolve(p)
	if err != 0 {
		return err
	}
	return fs.Stat(rel, st)
}
