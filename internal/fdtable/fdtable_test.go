package fdtable

import (
	"testing"

	"riscvkern/internal/kerr"
	"riscvkern/internal/kpath"
	"riscvkern/internal/ramfs"
	"riscvkern/internal/vfs"
)

func openFile(t *testing.T, fs *ramfs.Fs, name string) vfs.File {
	f, err := fs.Open(kpath.Path(name), vfs.OCreat|vfs.ORdwr, 0644)
	if err != 0 {
		t.Fatalf("Open: %v", err)
	}
	return f
}

func TestInstallAssignsLowestFreeNumber(t *testing.T) {
	fs := ramfs.New()
	tbl := New()
	a, _ := tbl.Install(openFile(t, fs, "/a"), Read|Write)
	b, _ := tbl.Install(openFile(t, fs, "/b"), Read|Write)
	if a != 0 || b != 1 {
		t.Fatalf("got fds %d,%d, want 0,1", a, b)
	}
	tbl.Close(0)
	c, _ := tbl.Install(openFile(t, fs, "/c"), Read)
	if c != 0 {
		t.Fatalf("got fd %d, want reused slot 0", c)
	}
}

func TestGetMissingIsEBADF(t *testing.T) {
	tbl := New()
	if _, err := tbl.Get(3); err != kerr.EBADF {
		t.Fatalf("err = %v, want EBADF", err)
	}
}

func TestDup3RejectsSameFd(t *testing.T) {
	fs := ramfs.New()
	tbl := New()
	fd, _ := tbl.Install(openFile(t, fs, "/a"), Read)
	if err := tbl.Dup3(fd, fd); err != kerr.EINVAL {
		t.Fatalf("err = %v, want EINVAL", err)
	}
}

func TestDup3ClosesExistingTarget(t *testing.T) {
	fs := ramfs.New()
	tbl := New()
	a, _ := tbl.Install(openFile(t, fs, "/a"), Read|Write)
	b, _ := tbl.Install(openFile(t, fs, "/b"), Read|Write)
	if err := tbl.Dup3(a, b); err != 0 {
		t.Fatalf("Dup3: %v", err)
	}
	got, _ := tbl.Get(b)
	want, _ := tbl.Get(a)
	if got.File != want.File {
		t.Fatalf("fd %d does not alias fd %d's file after dup3", b, a)
	}
}

func TestCloneProducesIndependentTable(t *testing.T) {
	fs := ramfs.New()
	tbl := New()
	fd, _ := tbl.Install(openFile(t, fs, "/a"), Read|Write)
	clone, err := tbl.Clone()
	if err != 0 {
		t.Fatalf("Clone: %v", err)
	}
	tbl.Close(fd)
	if _, err := clone.Get(fd); err != 0 {
		t.Fatalf("clone lost its copy of fd %d after parent closed: %v", fd, err)
	}
}
