package fat32

import (
	"testing"

	"riscvkern/internal/blockdev"
	"riscvkern/internal/kerr"
	"riscvkern/internal/kpath"
	"riscvkern/internal/kstat"
	"riscvkern/internal/vfs"
)

func newFixture(t *testing.T) *Fs {
	t.Helper()
	const (
		secPerClus   = 1
		reservedSecs = 1
		numFATs      = 1
		fatSz32      = 1
		totalClus    = 32
	)
	totSec32 := reservedSecs + numFATs*fatSz32 + totalClus*secPerClus
	dev := blockdev.NewMemDevice(uint64(totSec32))

	var boot [blockdev.SectorSize]byte
	putLE16(boot[11:13], blockdev.SectorSize)
	boot[13] = secPerClus
	putLE16(boot[14:16], reservedSecs)
	boot[16] = numFATs
	putLE32(boot[32:36], uint32(totSec32))
	putLE32(boot[36:40], fatSz32)
	putLE32(boot[44:48], 2) // root cluster
	if err := dev.WriteBlock(0, &boot); err != nil {
		t.Fatal(err)
	}

	fs, kerrv := Mount(dev)
	if kerrv != 0 {
		t.Fatalf("Mount: %v", kerrv)
	}
	// Reserve the root directory's cluster so AllocCluster doesn't hand
	// it back out.
	if err := WriteFATEntry(fs.dev, fs.geo, fs.geo.RootClus, eocMin); err != 0 {
		t.Fatalf("reserve root cluster: %v", err)
	}
	return fs
}

func TestMountRejectsNonFAT32Sector(t *testing.T) {
	dev := blockdev.NewMemDevice(4)
	if _, err := Mount(dev); err == 0 {
		t.Fatal("expected error mounting an all-zero sector")
	}
}

func TestMkfileOpenWriteReadRoundtrip(t *testing.T) {
	fs := newFixture(t)
	f, err := fs.Open("/hello.txt", vfs.OCreat|vfs.ORdwr, 0)
	if err != 0 {
		t.Fatalf("open: %v", err)
	}
	data := []byte("hello, fat32")
	n, err := f.Write(data)
	if err != 0 || n != len(data) {
		t.Fatalf("write: n=%d err=%v", n, err)
	}

	f2, err := fs.Open("/hello.txt", vfs.ORdonly, 0)
	if err != 0 {
		t.Fatalf("reopen: %v", err)
	}
	buf := make([]byte, len(data))
	n, err = f2.Read(buf)
	if err != 0 || n != len(data) || string(buf) != string(data) {
		t.Fatalf("read back: n=%d err=%v buf=%q", n, err, buf)
	}

	var st kstat.Stat_t
	if err := f2.Stat(&st); err != 0 {
		t.Fatalf("stat: %v", err)
	}
	if st.Size() != uint64(len(data)) {
		t.Fatalf("stat size = %d, want %d", st.Size(), len(data))
	}
}

func TestMkfileWithLongNameRoundtripsViaLFN(t *testing.T) {
	fs := newFixture(t)
	name := "a rather long filename that needs lfn.txt"
	f, err := fs.Open(kpath.Path("/"+name), vfs.OCreat|vfs.ORdwr, 0)
	if err != 0 {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.Write([]byte("x")); err != 0 {
		t.Fatalf("write: %v", err)
	}

	entries, serr := fs.scanDir(fs.geo.RootClus)
	if serr != 0 {
		t.Fatalf("scanDir: %v", serr)
	}
	found := false
	for _, e := range entries {
		if e.name == name {
			found = true
		}
	}
	if !found {
		t.Fatalf("long name %q not found among scanned entries: %+v", name, entries)
	}
}

func TestMkdirAndNestedFile(t *testing.T) {
	fs := newFixture(t)
	if err := fs.Mkdir("/sub", 0); err != 0 {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := fs.Open("/sub/inner.txt", vfs.OCreat|vfs.ORdwr, 0)
	if err != 0 {
		t.Fatalf("open nested: %v", err)
	}
	if _, err := f.Write([]byte("nested")); err != 0 {
		t.Fatalf("write nested: %v", err)
	}

	f2, err := fs.Open("/sub/inner.txt", vfs.ORdonly, 0)
	if err != 0 {
		t.Fatalf("reopen nested: %v", err)
	}
	buf := make([]byte, 6)
	if n, err := f2.Read(buf); err != 0 || string(buf[:n]) != "nested" {
		t.Fatalf("read nested: n=%d err=%v buf=%q", n, err, buf)
	}
}

func TestUnlinkRemovesFile(t *testing.T) {
	fs := newFixture(t)
	if _, err := fs.Open("/gone.txt", vfs.OCreat, 0); err != 0 {
		t.Fatalf("create: %v", err)
	}
	if err := fs.Unlink("/gone.txt"); err != 0 {
		t.Fatalf("unlink: %v", err)
	}
	if _, err := fs.Open("/gone.txt", 0, 0); err != kerr.ENOENT {
		t.Fatalf("open after unlink: err=%v, want ENOENT", err)
	}
}

func TestGetdents64ListsDirectoryContents(t *testing.T) {
	fs := newFixture(t)
	for _, name := range []string{"/a.txt", "/b.txt"} {
		if _, err := fs.Open(kpath.Path(name), vfs.OCreat, 0); err != 0 {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	dir, err := fs.Open("/", vfs.ODirectory, 0)
	if err != 0 {
		t.Fatalf("open root: %v", err)
	}
	ents, err := dir.Getdents64()
	if err != 0 {
		t.Fatalf("getdents64: %v", err)
	}
	if len(ents) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(ents), ents)
	}
}

