// Package fat32 implements the FAT32 VFS backend of spec.md §4.12:
// BPB geometry, FAT table read/write with per-copy replication, cluster
// chain walk/extend, LFN/SFN directory entry assembly, and the
// mkfile/mkdir/read/write/truncate/unlink/getdents64 operations. Since
// the teacher (an x86-64 kernel) carries no FAT32 code of its own, this
// package is grounded on the spec's own derivation rules (themselves
// traceable to original_source's fat32.rs) expressed in the teacher's
// idiom: plain structs over byte slices, Err_t returns, little-endian
// accessors matching the style internal/pagetable already established.
package fat32

import (
	"riscvkern/internal/kerr"
)

// BPB is the subset of the BIOS Parameter Block spec.md §4.12/§6.6
// requires.
type BPB struct {
	BytesPerSec    uint16
	SecPerClus     uint8
	ReservedSecCnt uint16
	NumFATs        uint8
	RootEntCnt     uint16
	FATSz16        uint16
	TotSec16       uint16
	TotSec32       uint32
	FATSz32        uint32
	RootClus       uint32
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// ParseBPB decodes the 512-byte boot sector at the offsets spec.md §6.6
// names, rejecting anything that doesn't look like FAT32 (non-zero
// root_ent_cnt/fat_sz16, which are FAT12/16 fields that must be zero on
// FAT32).
func ParseBPB(sector []byte) (BPB, kerr.Err_t) {
	if len(sector) < 90 {
		return BPB{}, kerr.EINVAL
	}
	b := BPB{
		BytesPerSec:    le16(sector[11:13]),
		SecPerClus:     sector[13],
		ReservedSecCnt: le16(sector[14:16]),
		NumFATs:        sector[16],
		RootEntCnt:     le16(sector[17:19]),
		TotSec16:       le16(sector[19:21]),
		FATSz16:        le16(sector[22:24]),
		TotSec32:       le32(sector[32:36]),
		FATSz32:        le32(sector[36:40]),
		RootClus:       le32(sector[44:48]),
	}
	if b.RootEntCnt != 0 || b.FATSz16 != 0 {
		return BPB{}, kerr.EINVAL
	}
	if b.BytesPerSec == 0 || b.SecPerClus == 0 || b.NumFATs == 0 || b.TotSec32 == 0 {
		return BPB{}, kerr.EINVAL
	}
	return b, 0
}

// Geometry is the set of values spec.md §4.12 derives once from the
// BPB and consults throughout the backend.
type Geometry struct {
	BytesPerSec   uint32
	SecPerClus    uint32
	NumFATs       uint32
	FatSz32       uint32
	FatLBA0       uint64
	DataLBA0      uint64
	ClusterBytes  uint32
	TotalClusters uint32
	RootClus      uint32
}

// Derive computes a Geometry from a parsed BPB.
func (b BPB) Derive() (Geometry, kerr.Err_t) {
	fatLBA0 := uint64(b.ReservedSecCnt)
	dataLBA0 := fatLBA0 + uint64(b.NumFATs)*uint64(b.FATSz32)
	clusterBytes := uint32(b.BytesPerSec) * uint32(b.SecPerClus)
	dataSectors := b.TotSec32 - uint32(dataLBA0)
	if int32(dataSectors) <= 0 {
		return Geometry{}, kerr.EINVAL
	}
	totalClusters := dataSectors / uint32(b.SecPerClus)

	return Geometry{
		BytesPerSec:   uint32(b.BytesPerSec),
		SecPerClus:    uint32(b.SecPerClus),
		NumFATs:       uint32(b.NumFATs),
		FatSz32:       b.FATSz32,
		FatLBA0:       fatLBA0,
		DataLBA0:      dataLBA0,
		ClusterBytes:  clusterBytes,
		TotalClusters: totalClusters,
		RootClus:      b.RootClus,
	}, 0
}

// ClusterLBA returns the starting sector of cluster n (n >= 2).
func (g Geometry) ClusterLBA(n uint32) uint64 {
	return g.DataLBA0 + uint64(n-2)*uint64(g.SecPerClus)
}
