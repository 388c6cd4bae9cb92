// Package fdtable implements the per-task open-file-descriptor table,
// grounded on the teacher's fd.Fd_t: a descriptor is a capability
// (Fops/Fd_t.Fops) plus permission bits, reopened rather than
// reference-counted when duplicated, since the teacher never shares a
// single Fd_t between two descriptor numbers.
package fdtable

import (
	"sync"

	"riscvkern/internal/kerr"
	"riscvkern/internal/vfs"
)

// Permission bits, mirroring the teacher's FD_READ/FD_WRITE/FD_CLOEXEC.
const (
	Read    = 0x1
	Write   = 0x2
	Cloexec = 0x4
)

// Fd is one open file descriptor: a backend capability plus the
// permission bits it was opened with.
type Fd struct {
	File  vfs.File
	Perms int
}

// Copy duplicates fd by reopening its underlying file, mirroring the
// teacher's Copyfd — the new Fd is independent bookkeeping (its own
// Close call) over the same backend state.
func (fd *Fd) copy() (*Fd, kerr.Err_t) {
	if err := fd.File.Reopen(); err != 0 {
		return nil, err
	}
	return &Fd{File: fd.File, Perms: fd.Perms}, 0
}

// Table is one task's fd number → Fd map, guarded by one mutex exactly
// as the teacher serializes Fd_t table access per process.
type Table struct {
	mu    sync.Mutex
	fds   map[int]*Fd
	limit int
}

// DefaultLimit is the per-task open-file ceiling, absent a setrlimit
// syscall (out of scope, spec.md §6.3 Non-goals).
const DefaultLimit = 256

// New returns an empty fd table.
func New() *Table {
	return &Table{fds: make(map[int]*Fd), limit: DefaultLimit}
}

// Install assigns the lowest unused fd number to f and returns it,
// mirroring POSIX's "lowest available descriptor" contract.
func (t *Table) Install(f vfs.File, perms int) (int, kerr.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for n := 0; n < t.limit; n++ {
		if _, used := t.fds[n]; !used {
			t.fds[n] = &Fd{File: f, Perms: perms}
			return n, 0
		}
	}
	return -1, kerr.ENOMEM
}

// InstallAt assigns f to exactly fd, closing whatever was already
// there, per dup2/dup3's semantics.
func (t *Table) InstallAt(fd int, f vfs.File, perms int) kerr.Err_t {
	if fd < 0 || fd >= t.limit {
		return kerr.EBADF
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.fds[fd]; ok {
		old.File.Close()
	}
	t.fds[fd] = &Fd{File: f, Perms: perms}
	return 0
}

// Get returns the Fd installed at fd.
func (t *Table) Get(fd int) (*Fd, kerr.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.fds[fd]
	if !ok {
		return nil, kerr.EBADF
	}
	return f, 0
}

// Close removes and closes fd.
func (t *Table) Close(fd int) kerr.Err_t {
	t.mu.Lock()
	f, ok := t.fds[fd]
	if !ok {
		t.mu.Unlock()
		return kerr.EBADF
	}
	delete(t.fds, fd)
	t.mu.Unlock()
	return f.File.Close()
}

// Dup installs a reopened copy of oldfd at the lowest free number.
func (t *Table) Dup(oldfd int) (int, kerr.Err_t) {
	t.mu.Lock()
	old, ok := t.fds[oldfd]
	t.mu.Unlock()
	if !ok {
		return -1, kerr.EBADF
	}
	nfd, err := old.copy()
	if err != 0 {
		return -1, err
	}
	return t.Install(nfd.File, nfd.Perms)
}

// Dup3 installs a reopened copy of oldfd at exactly newfd, per
// dup3(2)'s close-on-redirect semantics: newfd is atomically closed
// and replaced, and oldfd == newfd is EINVAL (dup3 refuses the no-op
// dup2 silently allows).
func (t *Table) Dup3(oldfd, newfd int) kerr.Err_t {
	if oldfd == newfd {
		return kerr.EINVAL
	}
	t.mu.Lock()
	old, ok := t.fds[oldfd]
	t.mu.Unlock()
	if !ok {
		return kerr.EBADF
	}
	nfd, err := old.copy()
	if err != 0 {
		return err
	}
	return t.InstallAt(newfd, nfd.File, nfd.Perms)
}

// Clone deep-copies the whole table (every live fd reopened), for
// fork(2): the child's descriptors are independent of the parent's
// from that point on, but name the same backend state.
func (t *Table) Clone() (*Table, kerr.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	nt := &Table{fds: make(map[int]*Fd, len(t.fds)), limit: t.limit}
	for n, f := range t.fds {
		nf, err := f.copy()
		if err != 0 {
			return nil, err
		}
		nt.fds[n] = nf
	}
	return nt, 0
}

// CloseAll closes every open descriptor, for process exit.
func (t *Table) CloseAll() {
	t.mu.Lock()
	fds := t.fds
	t.fds = make(map[int]*Fd)
	t.mu.Unlock()
	for _, f := range fds {
		f.File.Close()
	}
}
