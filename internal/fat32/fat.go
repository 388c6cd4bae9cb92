package fat32

import (
	"riscvkern/internal/blockdev"
	"riscvkern/internal/kerr"
)

// FAT32 entries use 28 of their 32 bits; the top nibble is reserved.
const (
	entryMask = 0x0FFFFFFF
	eocMin    = 0x0FFFFFF8
	clusFree  = 0
	firstData = 2
)

func isEOC(v uint32) bool { return v&entryMask >= eocMin }

// readSector reads one 512-byte sector from dev.
func readSector(dev blockdev.Device, lba uint64) ([blockdev.SectorSize]byte, kerr.Err_t) {
	var buf [blockdev.SectorSize]byte
	if err := dev.ReadBlock(lba, &buf); err != nil {
		return buf, kerr.EIO
	}
	return buf, 0
}

func writeSector(dev blockdev.Device, lba uint64, buf [blockdev.SectorSize]byte) kerr.Err_t {
	if err := dev.WriteBlock(lba, &buf); err != nil {
		return kerr.EIO
	}
	return 0
}

// ReadFATEntry returns the raw (masked) value of FAT entry n, read from
// the first FAT copy.
func ReadFATEntry(dev blockdev.Device, g Geometry, n uint32) (uint32, kerr.Err_t) {
	byteOff := uint64(n) * 4
	lba := g.FatLBA0 + byteOff/uint64(g.BytesPerSec)
	off := byteOff % uint64(g.BytesPerSec)
	sector, err := readSector(dev, lba)
	if err != 0 {
		return 0, err
	}
	return le32(sector[off:off+4]) & entryMask, 0
}

// WriteFATEntry stores val into FAT entry n, replicated across every
// FAT copy, per spec.md §4.12 "writes replicate to all FAT copies".
func WriteFATEntry(dev blockdev.Device, g Geometry, n, val uint32) kerr.Err_t {
	byteOff := uint64(n) * 4
	sectorInFAT := byteOff / uint64(g.BytesPerSec)
	off := byteOff % uint64(g.BytesPerSec)

	for copyIdx := uint32(0); copyIdx < g.NumFATs; copyIdx++ {
		lba := g.FatLBA0 + uint64(copyIdx)*uint64(g.FatSz32) + sectorInFAT
		sector, err := readSector(dev, lba)
		if err != 0 {
			return err
		}
		v := val & entryMask
		sector[off] = byte(v)
		sector[off+1] = byte(v >> 8)
		sector[off+2] = byte(v >> 16)
		sector[off+3] = byte(v >> 24)
		if err := writeSector(dev, lba, sector); err != 0 {
			return err
		}
	}
	return 0
}

// NextCluster returns the cluster following cur, or ok=false if cur is
// the end of its chain or unexpectedly free.
func NextCluster(dev blockdev.Device, g Geometry, cur uint32) (uint32, bool, kerr.Err_t) {
	v, err := ReadFATEntry(dev, g, cur)
	if err != 0 {
		return 0, false, err
	}
	if v == clusFree || isEOC(v) {
		return 0, false, 0
	}
	return v, true, 0
}

// AllocCluster scans linearly from cluster 2 for a free entry, marks it
// end-of-chain, and returns its number. ENOSPC if none remain.
func AllocCluster(dev blockdev.Device, g Geometry) (uint32, kerr.Err_t) {
	for n := uint32(firstData); n < firstData+g.TotalClusters; n++ {
		v, err := ReadFATEntry(dev, g, n)
		if err != 0 {
			return 0, err
		}
		if v == clusFree {
			if err := WriteFATEntry(dev, g, n, eocMin); err != 0 {
				return 0, err
			}
			return n, 0
		}
	}
	return 0, kerr.ENOSPC
}

// EnsureNthCluster walks the chain rooted at first, extending it with
// freshly allocated clusters as needed, and returns the cluster at
// index n (0-based). If first is 0 (an empty file/dir), a first cluster
// is allocated.
func EnsureNthCluster(dev blockdev.Device, g Geometry, first uint32, n int) (uint32, uint32, kerr.Err_t) {
	if first == 0 {
		c, err := AllocCluster(dev, g)
		if err != 0 {
			return 0, 0, err
		}
		first = c
	}
	cur := first
	for i := 0; i < n; i++ {
		next, ok, err := NextCluster(dev, g, cur)
		if err != 0 {
			return 0, 0, err
		}
		if !ok {
			nc, err := AllocCluster(dev, g)
			if err != 0 {
				return 0, 0, err
			}
			if err := WriteFATEntry(dev, g, cur, nc); err != 0 {
				return 0, 0, err
			}
			next = nc
		}
		cur = next
	}
	return first, cur, 0
}

// FreeChain walks the chain rooted at first and returns every cluster
// to the free pool.
func FreeChain(dev blockdev.Device, g Geometry, first uint32) kerr.Err_t {
	cur := first
	for cur != 0 {
		next, ok, err := NextCluster(dev, g, cur)
		if err != 0 {
			return err
		}
		if err := WriteFATEntry(dev, g, cur, clusFree); err != 0 {
			return err
		}
		if !ok {
			break
		}
		cur = next
	}
	return 0
}

// ReadCluster reads the full contents of cluster n into buf, which must
// be exactly g.ClusterBytes long.
func ReadCluster(dev blockdev.Device, g Geometry, n uint32, buf []byte) kerr.Err_t {
	lba := g.ClusterLBA(n)
	for s := uint32(0); s < g.SecPerClus; s++ {
		sector, err := readSector(dev, lba+uint64(s))
		if err != 0 {
			return err
		}
		copy(buf[s*g.BytesPerSec:], sector[:])
	}
	return 0
}

// WriteCluster writes the full contents of buf (exactly g.ClusterBytes
// long) to cluster n.
func WriteCluster(dev blockdev.Device, g Geometry, n uint32, buf []byte) kerr.Err_t {
	lba := g.ClusterLBA(n)
	for s := uint32(0); s < g.SecPerClus; s++ {
		var sector [blockdev.SectorSize]byte
		copy(sector[:], buf[s*g.BytesPerSec:(s+1)*g.BytesPerSec])
		if err := writeSector(dev, lba+uint64(s), sector); err != 0 {
			return err
		}
	}
	return 0
}
