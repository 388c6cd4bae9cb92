// Command mkfs builds a bootable disk image: an MBR naming one FAT32
// partition, formatted fresh, then populated from a host skeleton
// directory tree. Grounded on the teacher's own mkfs/mkfs.go (MkDisk +
// addfiles walking a skeldir into a freshly built filesystem), adapted
// from biscuit's custom ufs format to this repository's FAT32 backend
// per SPEC_FULL.md's supplemented feature 5.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"riscvkern/internal/blockdev"
	"riscvkern/internal/fat32"
	"riscvkern/internal/kpath"
	"riscvkern/internal/vblock"
	"riscvkern/internal/vfs"
)

const (
	startLBA     = 1
	secPerClus   = 1
	reservedSecs = 32
	numFATs      = 2
)

func le16(b []byte, v uint16) { b[0], b[1] = byte(v), byte(v>>8) }
func le32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// fatSize32 returns the sector count one FAT copy needs to address
// totalClus clusters, at 4 bytes per entry.
func fatSize32(totalClus uint32) uint32 {
	entriesPerSector := uint32(blockdev.SectorSize / 4)
	return (totalClus + entriesPerSector - 1) / entriesPerSector
}

func writeMBR(dev *blockdev.FileDevice, partitionSectors uint32) error {
	var sector [blockdev.SectorSize]byte
	sector[0x1FE], sector[0x1FF] = 0x55, 0xAA
	entry := sector[0x1BE : 0x1BE+16]
	entry[0] = 0x80 // bootable
	entry[4] = 0x0C // FAT32 LBA
	le32(entry[8:12], startLBA)
	le32(entry[12:16], partitionSectors)
	return dev.WriteBlock(0, &sector)
}

func writeBootSector(dev *blockdev.FileDevice, totalSectors, fatSz32 uint32) error {
	var boot [blockdev.SectorSize]byte
	le16(boot[11:13], blockdev.SectorSize)
	boot[13] = secPerClus
	le16(boot[14:16], reservedSecs)
	boot[16] = numFATs
	le32(boot[32:36], totalSectors)
	le32(boot[36:40], fatSz32)
	le32(boot[44:48], 2) // root cluster
	return dev.WriteBlock(startLBA, &boot)
}

// addTree mkdirs every directory in skel (serially, parent before
// child — filepath.WalkDir already visits in that order) then copies
// every file's contents into the image concurrently, since fat32.Fs
// serializes writes internally and only the host reads benefit from
// overlapping, the same shape the teacher's mkfs gets from running
// addfiles over a single in-process filesystem handle but spread across
// goroutines here per SPEC_FULL.md's domain-stack wiring of errgroup.
func addTree(target *fat32.Fs, skel string) error {
	var files []string
	err := filepath.WalkDir(skel, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(path, skel)
		if rel == "" {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if cerr := target.Mkdir(kpath.Path(rel), 0o755); cerr != 0 {
				return fmt.Errorf("mkdir %s: %v", rel, cerr)
			}
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return err
	}

	var g errgroup.Group
	for _, rel := range files {
		rel := rel
		g.Go(func() error {
			data, err := os.ReadFile(filepath.Join(skel, rel))
			if err != nil {
				return err
			}
			f, cerr := target.Open(kpath.Path(rel), vfs.OCreat|vfs.OWronly, 0o644)
			if cerr != 0 {
				return fmt.Errorf("create %s: %v", rel, cerr)
			}
			defer f.Close()
			if _, werr := f.WriteAt(data, 0); werr != 0 {
				return fmt.Errorf("write %s: %v", rel, werr)
			}
			return nil
		})
	}
	return g.Wait()
}

func main() {
	out := flag.String("out", "", "path to the disk image to create")
	skel := flag.String("skel", "", "host directory tree to copy into the image")
	sizeMB := flag.Int("size-mb", 16, "total image size in megabytes")
	flag.Parse()

	if *out == "" || *skel == "" {
		fmt.Fprintln(os.Stderr, "usage: mkfs -out <image> -skel <dir> [-size-mb N]")
		os.Exit(2)
	}

	totalSectors := uint32(*sizeMB) * 1024 * 1024 / blockdev.SectorSize
	partitionSectors := totalSectors - startLBA
	dataSectors := partitionSectors - reservedSecs
	totalClus := dataSectors / secPerClus
	fatSz32 := fatSize32(totalClus)
	// shrink data sectors by the FAT copies' own footprint
	dataSectors -= numFATs * fatSz32
	totalClus = dataSectors / secPerClus

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("mkfs: creating image: %v", err)
	}
	if err := unix.Fallocate(int(f.Fd()), 0, 0, int64(totalSectors)*blockdev.SectorSize); err != nil {
		f.Close()
		log.Fatalf("mkfs: preallocating image: %v", err)
	}
	f.Close()

	dev, err := blockdev.OpenFileDevice(*out)
	if err != nil {
		log.Fatalf("mkfs: reopening image: %v", err)
	}
	defer dev.Close()

	if err := writeMBR(dev, partitionSectors); err != nil {
		log.Fatalf("mkfs: writing MBR: %v", err)
	}
	if err := writeBootSector(dev, partitionSectors, fatSz32); err != nil {
		log.Fatalf("mkfs: writing boot sector: %v", err)
	}

	view := vblock.New(dev, startLBA, uint64(partitionSectors))
	target, ferr := fat32.Mount(view)
	if ferr != 0 {
		log.Fatalf("mkfs: mounting freshly formatted image: %v", ferr)
	}

	if err := addTree(target, *skel); err != nil {
		log.Fatalf("mkfs: copying skeleton tree: %v", err)
	}

	fmt.Printf("wrote %s: %d sectors, %d data clusters\n", *out, totalSectors, totalClus)
}
