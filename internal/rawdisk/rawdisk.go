// Package rawdisk exposes a blockdev.Device as a vfs.File for the
// unmounted MBR partitions internal/boot surfaces under /vdaN, per
// SPEC_FULL.md's supplemented boot-time partition scan: recognized
// entries get mounted, the rest get a read/write raw byte-addressed
// handle rather than silently vanishing. Grounded on the teacher's
// D_RAWDISK device (defs/device.go), generalized from a whole-disk-only
// node to any sector range via internal/vblock.
package rawdisk

import (
	"sync"

	"riscvkern/internal/blockdev"
	"riscvkern/internal/kerr"
	"riscvkern/internal/kstat"
	"riscvkern/internal/vfs"
)

// Device wraps a sector-addressed blockdev.Device as a byte-addressed
// vfs.File, translating byte offsets to whole-sector reads and
// writes: a partial-sector write reads the sector, patches it, and
// writes it back. Nothing is cached between calls.
type Device struct {
	mu    sync.Mutex
	dev   blockdev.Device
	ino   uint64
	pos   int64
	opens int
}

// New wraps dev, identified as ino for stat/mmap purposes.
func New(dev blockdev.Device, ino uint64) *Device {
	return &Device{dev: dev, ino: ino, opens: 1}
}

func (d *Device) size() int64 { return int64(d.dev.CapacityInSectors()) * blockdev.SectorSize }

func (d *Device) ReadAt(buf []byte, off int64) (int, kerr.Err_t) {
	total := d.size()
	if off >= total {
		return 0, 0
	}
	if off+int64(len(buf)) > total {
		buf = buf[:total-off]
	}
	n := 0
	for n < len(buf) {
		sector := uint64(off+int64(n)) / blockdev.SectorSize
		within := int(uint64(off+int64(n)) % blockdev.SectorSize)
		var blk [blockdev.SectorSize]byte
		if err := d.dev.ReadBlock(sector, &blk); err != nil {
			return n, kerr.EIO
		}
		copied := copy(buf[n:], blk[within:])
		n += copied
	}
	return n, 0
}

func (d *Device) WriteAt(buf []byte, off int64) (int, kerr.Err_t) {
	n := 0
	for n < len(buf) {
		sector := uint64(off+int64(n)) / blockdev.SectorSize
		within := int(uint64(off+int64(n)) % blockdev.SectorSize)
		var blk [blockdev.SectorSize]byte
		if err := d.dev.ReadBlock(sector, &blk); err != nil {
			return n, kerr.EIO
		}
		copied := copy(blk[within:], buf[n:])
		if err := d.dev.WriteBlock(sector, &blk); err != nil {
			return n, kerr.EIO
		}
		n += copied
	}
	return n, 0
}

func (d *Device) Read(buf []byte) (int, kerr.Err_t) {
	d.mu.Lock()
	pos := d.pos
	d.mu.Unlock()
	n, err := d.ReadAt(buf, pos)
	if err != 0 {
		return n, err
	}
	d.mu.Lock()
	d.pos += int64(n)
	d.mu.Unlock()
	return n, 0
}

func (d *Device) Write(buf []byte) (int, kerr.Err_t) {
	d.mu.Lock()
	pos := d.pos
	d.mu.Unlock()
	n, err := d.WriteAt(buf, pos)
	if err != 0 {
		return n, err
	}
	d.mu.Lock()
	d.pos += int64(n)
	d.mu.Unlock()
	return n, 0
}

func (d *Device) Seek(off int64, whence int) (int64, kerr.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch whence {
	case 0:
		d.pos = off
	case 1:
		d.pos += off
	case 2:
		d.pos = d.size() + off
	default:
		return 0, kerr.EINVAL
	}
	return d.pos, 0
}

func (d *Device) Stat(st *kstat.Stat_t) kerr.Err_t {
	st.Wino(d.ino)
	st.Wmode(kstat.ModeBlk | 0o600)
	st.Wnlink(1)
	st.Wsize(uint64(d.size()))
	return 0
}

func (d *Device) Getdents64() ([]vfs.DirEntry, kerr.Err_t) { return nil, kerr.ENOTDIR }

func (d *Device) Close() kerr.Err_t {
	d.mu.Lock()
	d.opens--
	d.mu.Unlock()
	return 0
}

func (d *Device) Reopen() kerr.Err_t {
	d.mu.Lock()
	d.opens++
	d.mu.Unlock()
	return 0
}

func (d *Device) InodeNum() uint64 { return d.ino }
