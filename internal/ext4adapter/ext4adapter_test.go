package ext4adapter

import (
	"os"
	"testing"

	"riscvkern/internal/kerr"
	"riscvkern/internal/kstat"
	"riscvkern/internal/vfs"
)

type fakeFile struct {
	data  []byte
	isDir bool
}

func (f *fakeFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.data)) {
		return 0, nil
	}
	return copy(p, f.data[off:]), nil
}

func (f *fakeFile) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:], p)
	return len(p), nil
}

func (f *fakeFile) Readdir() ([]DriverDirent, error) { return nil, nil }
func (f *fakeFile) Stat() (DriverStat, error) {
	return DriverStat{Size: int64(len(f.data)), IsDir: f.isDir}, nil
}
func (f *fakeFile) Close() error { return nil }

type fakeDriver struct {
	files map[string]*fakeFile
}

func newFakeDriver() *fakeDriver { return &fakeDriver{files: map[string]*fakeFile{}} }

func (d *fakeDriver) OpenFile(path string, flags int, mode os.FileMode) (DriverFile, error) {
	f, ok := d.files[path]
	if !ok {
		if flags&os.O_CREATE == 0 {
			return nil, os.ErrNotExist
		}
		f = &fakeFile{}
		d.files[path] = f
	}
	return f, nil
}

func (d *fakeDriver) Mkdir(path string, mode os.FileMode) error {
	d.files[path] = &fakeFile{isDir: true}
	return nil
}

func (d *fakeDriver) Remove(path string) error {
	if _, ok := d.files[path]; !ok {
		return os.ErrNotExist
	}
	delete(d.files, path)
	return nil
}

func (d *fakeDriver) Stat(path string) (DriverStat, error) {
	f, ok := d.files[path]
	if !ok {
		return DriverStat{}, os.ErrNotExist
	}
	return f.Stat()
}

func (d *fakeDriver) Sync() error { return nil }

func TestAdapterOpenWriteReadRoundtrip(t *testing.T) {
	a := New(newFakeDriver())
	f, err := a.Open("/x", vfs.OCreat|vfs.ORdwr, 0644)
	if err != 0 {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.Write([]byte("hi")); err != 0 {
		t.Fatalf("write: %v", err)
	}
	var st kstat.Stat_t
	if err := f.Stat(&st); err != 0 || st.Size() != 2 {
		t.Fatalf("stat: err=%v size=%d", err, st.Size())
	}
}

func TestAdapterOpenMissingWithoutCreateIsENOENT(t *testing.T) {
	a := New(newFakeDriver())
	if _, err := a.Open("/missing", vfs.ORdonly, 0); err != kerr.ENOENT {
		t.Fatalf("open missing: err=%v, want ENOENT", err)
	}
}

func TestAdapterMkdirAndStat(t *testing.T) {
	a := New(newFakeDriver())
	if err := a.Mkdir("/d", 0755); err != 0 {
		t.Fatalf("mkdir: %v", err)
	}
	var st kstat.Stat_t
	if err := a.Stat("/d", &st); err != 0 {
		t.Fatalf("stat: %v", err)
	}
	if st.Mode()&kstat.ModeDir == 0 {
		t.Fatal("expected ModeDir bit set")
	}
}

func TestAdapterUnlink(t *testing.T) {
	a := New(newFakeDriver())
	a.Open("/gone", vfs.OCreat, 0)
	if err := a.Unlink("/gone"); err != 0 {
		t.Fatalf("unlink: %v", err)
	}
	if _, err := a.Open("/gone", vfs.ORdonly, 0); err != kerr.ENOENT {
		t.Fatalf("open after unlink: %v, want ENOENT", err)
	}
}

func TestAdapterGetdents64(t *testing.T) {
	drv := newFakeDriver()
	drv.files["/d"] = &fakeFile{isDir: true}
	a := New(drv)
	f, err := a.Open("/d", vfs.ODirectory, 0)
	if err != 0 {
		t.Fatalf("open dir: %v", err)
	}
	if _, err := f.Getdents64(); err != 0 {
		t.Fatalf("getdents64: %v", err)
	}
}

