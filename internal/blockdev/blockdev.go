// Package blockdev declares the VirtIO block device interface the
// kernel consumes. The VirtIO driver itself is out of scope (spec.md
// §1); this is the contract of spec.md §6.2.
package blockdev

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// SectorSize is the fixed sector size every consumer below assumes.
const SectorSize = 512

// Device is a sector-addressed block device.
type Device interface {
	ReadBlock(sector uint64, out *[SectorSize]byte) error
	WriteBlock(sector uint64, in *[SectorSize]byte) error
	CapacityInSectors() uint64
}

// MemDevice is an in-memory Device, used by tests; cmd/mkfs writes
// through a FileDevice instead.
type MemDevice struct {
	sectors [][SectorSize]byte
}

// NewMemDevice returns a zero-filled device of the given sector count.
func NewMemDevice(nsectors uint64) *MemDevice {
	return &MemDevice{sectors: make([][SectorSize]byte, nsectors)}
}

func (d *MemDevice) ReadBlock(sector uint64, out *[SectorSize]byte) error {
	if sector >= uint64(len(d.sectors)) {
		return errOutOfRange
	}
	*out = d.sectors[sector]
	return nil
}

func (d *MemDevice) WriteBlock(sector uint64, in *[SectorSize]byte) error {
	if sector >= uint64(len(d.sectors)) {
		return errOutOfRange
	}
	d.sectors[sector] = *in
	return nil
}

func (d *MemDevice) CapacityInSectors() uint64 { return uint64(len(d.sectors)) }

type sectorRangeError string

func (e sectorRangeError) Error() string { return string(e) }

const errOutOfRange = sectorRangeError("blockdev: sector out of range")

// FileDevice is a Device backed by a host file, standing in for the
// VirtIO block device under the hosted simulator (QEMU backs virtio-blk
// with a raw image file the same way). Grounded on the teacher's own
// mkfs tooling shelling out to host file I/O, generalized here to
// golang.org/x/sys/unix's Pread/Pwrite so reads and writes are
// positioned explicitly rather than relying on a shared file offset
// across concurrent callers.
type FileDevice struct {
	mu       sync.Mutex
	f        *os.File
	nsectors uint64
}

// OpenFileDevice opens path (which must already exist and be sized to
// an exact multiple of SectorSize) as a FileDevice.
func OpenFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f, nsectors: uint64(fi.Size()) / SectorSize}, nil
}

func (d *FileDevice) ReadBlock(sector uint64, out *[SectorSize]byte) error {
	if sector >= d.nsectors {
		return errOutOfRange
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := unix.Pread(int(d.f.Fd()), out[:], int64(sector)*SectorSize)
	return err
}

func (d *FileDevice) WriteBlock(sector uint64, in *[SectorSize]byte) error {
	if sector >= d.nsectors {
		return errOutOfRange
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := unix.Pwrite(int(d.f.Fd()), in[:], int64(sector)*SectorSize)
	return err
}

func (d *FileDevice) CapacityInSectors() uint64 { return d.nsectors }

// Close releases the underlying host file.
func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}
