package fat32

import (
	"sort"
	"strings"
	"sync"

	"riscvkern/internal/blockdev"
	"riscvkern/internal/kerr"
	"riscvkern/internal/kpath"
	"riscvkern/internal/kstat"
	"riscvkern/internal/vfs"
)

// Fs is a mounted FAT32 volume.
type Fs struct {
	mu  sync.Mutex
	dev blockdev.Device
	geo Geometry
}

// Mount parses the boot sector of dev and returns a ready FAT32
// backend, per spec.md §4.12's geometry-parse failure modes.
func Mount(dev blockdev.Device) (*Fs, kerr.Err_t) {
	sector, err := readSector(dev, 0)
	if err != 0 {
		return nil, err
	}
	bpb, err := ParseBPB(sector[:])
	if err != 0 {
		return nil, err
	}
	if bpb.BytesPerSec != blockdev.SectorSize {
		return nil, kerr.ENOTSUP
	}
	geo, err := bpb.Derive()
	if err != 0 {
		return nil, err
	}
	return &Fs{dev: dev, geo: geo}, 0
}

// loc names one directory-entry slot's on-disk position.
type loc struct {
	cluster uint32
	index   int
}

type dirent struct {
	name    string
	sfn11   [11]byte
	attr    byte
	cluster uint32
	size    uint32
	sfnLoc  loc
	lfnLocs []loc // disk order (tail fragment first)
}

func (d dirent) isDir() bool { return d.attr&AttrDirectory != 0 }

func readDirEntries(dev blockdev.Device, g Geometry, cluster uint32) ([]RawEntry, kerr.Err_t) {
	buf := make([]byte, g.ClusterBytes)
	if err := ReadCluster(dev, g, cluster, buf); err != 0 {
		return nil, err
	}
	n := int(g.ClusterBytes) / entrySize
	out := make([]RawEntry, n)
	for i := 0; i < n; i++ {
		copy(out[i][:], buf[i*entrySize:(i+1)*entrySize])
	}
	return out, 0
}

func writeDirEntries(dev blockdev.Device, g Geometry, cluster uint32, entries []RawEntry) kerr.Err_t {
	buf := make([]byte, g.ClusterBytes)
	for i, e := range entries {
		copy(buf[i*entrySize:(i+1)*entrySize], e[:])
	}
	return WriteCluster(dev, g, cluster, buf)
}

// chainClusters returns every cluster number in the chain rooted at
// first, in order.
func chainClusters(dev blockdev.Device, g Geometry, first uint32) ([]uint32, kerr.Err_t) {
	if first == 0 {
		return nil, 0
	}
	var out []uint32
	cur := first
	for {
		out = append(out, cur)
		next, ok, err := NextCluster(dev, g, cur)
		if err != 0 {
			return nil, err
		}
		if !ok {
			break
		}
		cur = next
	}
	return out, 0
}

// scanDir walks the directory's cluster chain and assembles its live
// entries, per spec.md §4.12's scanning and LFN assembly rules.
// Encountering first_byte==0x00 stops the scan (end of directory);
// missing clusters in the chain are a programmer error, not reached
// here.
func (fs *Fs) scanDir(first uint32) ([]dirent, kerr.Err_t) {
	clusters, err := chainClusters(fs.dev, fs.geo, first)
	if err != 0 {
		return nil, err
	}
	var out []dirent
	var pending []RawEntry
	var pendingLocs []loc

outer:
	for _, c := range clusters {
		entries, err := readDirEntries(fs.dev, fs.geo, c)
		if err != 0 {
			return nil, err
		}
		for i := range entries {
			e := &entries[i]
			if e.IsEnd() {
				break outer
			}
			if e.IsDeleted() {
				pending, pendingLocs = nil, nil
				continue
			}
			if e.IsVolumeLabel() {
				continue
			}
			if e.IsLFN() {
				pending = append(pending, *e)
				pendingLocs = append(pendingLocs, loc{c, i})
				continue
			}

			d := dirent{
				sfn11: e.Name11(), attr: e.Attr(), cluster: e.Cluster(), size: e.Size(),
				sfnLoc: loc{c, i},
			}
			if name, ok := assembleLFN(pending, d.sfn11); ok {
				d.name = name
				d.lfnLocs = append([]loc(nil), pendingLocs...)
			} else {
				d.name = DecodeSFNName(d.sfn11)
			}
			pending, pendingLocs = nil, nil
			out = append(out, d)
		}
	}
	return out, 0
}

// assembleLFN validates the pending LFN chain's checksum against sfn
// and, if it checks out, decodes and returns the long name.
func assembleLFN(pending []RawEntry, sfn [11]byte) (string, bool) {
	if len(pending) == 0 {
		return "", false
	}
	want := ShortNameChecksum(sfn)
	for _, e := range pending {
		if e.Checksum() != want {
			return "", false
		}
	}
	sorted := append([]RawEntry(nil), pending...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ord() < sorted[j].Ord() })
	frags := make([][26]byte, len(sorted))
	for i, e := range sorted {
		var f [26]byte
		copy(f[:], e.fragmentBytes())
		frags[i] = f
	}
	name, err := DecodeLFNFragments(frags)
	if err != nil {
		return "", false
	}
	return name, true
}

func nameEquals(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca < 0x80 && cb < 0x80 {
			if toUpperByte(ca) != toUpperByte(cb) {
				return false
			}
		} else if ca != cb {
			return false
		}
	}
	return true
}

func toUpperByte(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// lookupOne finds name within the directory rooted at cluster.
func (fs *Fs) lookupOne(dirCluster uint32, name string) (dirent, kerr.Err_t) {
	entries, err := fs.scanDir(dirCluster)
	if err != 0 {
		return dirent{}, err
	}
	for _, d := range entries {
		if nameEquals(d.name, name) {
			return d, 0
		}
	}
	return dirent{}, kerr.ENOENT
}

// resolve walks path from the root, returning the final component's
// dirent, its parent's directory cluster, and the final component
// name — mirroring spec.md §4.12's path-lookup contract.
func (fs *Fs) resolve(p kpath.Path) (d dirent, found bool, parentClus uint32, name string, err kerr.Err_t) {
	parts := kpath.Split(p)
	cur := fs.geo.RootClus
	if len(parts) == 0 {
		return dirent{cluster: fs.geo.RootClus, attr: AttrDirectory}, true, 0, "", 0
	}
	for i, part := range parts {
		ent, lerr := fs.lookupOne(cur, part)
		if i == len(parts)-1 {
			if lerr != 0 {
				return dirent{}, false, cur, part, lerr
			}
			return ent, true, cur, part, 0
		}
		if lerr != 0 {
			return dirent{}, false, 0, "", lerr
		}
		if !ent.isDir() {
			return dirent{}, false, 0, "", kerr.ENOTDIR
		}
		cur = ent.cluster
	}
	return dirent{}, false, 0, "", kerr.ENOENT
}

// --- VfsFs ---

func (fs *Fs) Open(p kpath.Path, flags int, mode uint32) (vfs.File, kerr.Err_t) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	d, found, parentClus, name, err := fs.resolve(p)
	if !found {
		if err != kerr.ENOENT || flags&vfs.OCreat == 0 {
			return nil, err
		}
		nd, cerr := fs.createEntry(parentClus, name, 0)
		if cerr != 0 {
			return nil, cerr
		}
		d = nd
	} else if d.isDir() && flags&(vfs.OWronly|vfs.ORdwr) != 0 {
		return nil, kerr.EISDIR
	}

	if flags&vfs.OTrunc != 0 && !d.isDir() {
		if err := FreeChain(fs.dev, fs.geo, d.cluster); err != 0 {
			return nil, err
		}
		d.cluster = 0
		d.size = 0
		if err := fs.updateSizeAndCluster(d); err != 0 {
			return nil, err
		}
	}

	return &fileHandle{fs: fs, d: d}, 0
}

func (fs *Fs) createEntry(parentClus uint32, name string, attr byte) (dirent, kerr.Err_t) {
	sfn11, exact := FitsInSFN(name)
	var frags [][26]byte
	if !exact {
		sfn11 = fs.uniqueSFN(parentClus, name)
		var encErr error
		frags, encErr = EncodeLFNFragments(name)
		if encErr != nil {
			return dirent{}, kerr.EINVAL
		}
	}
	checksum := ShortNameChecksum(sfn11)

	entries := make([]RawEntry, 0, len(frags)+1)
	for i := len(frags) - 1; i >= 0; i-- {
		var e RawEntry
		e.SetOrd(byte(i+1), i == len(frags)-1)
		e.SetChecksum(checksum)
		e.setFragmentBytes(frags[i])
		entries = append(entries, e)
	}
	var sfn RawEntry
	sfn.SetName11(sfn11)
	sfn.SetAttr(attr)
	entries = append(entries, sfn)

	locs, err := fs.insertEntries(parentClus, entries)
	if err != 0 {
		return dirent{}, err
	}
	return dirent{
		name: name, sfn11: sfn11, attr: attr,
		sfnLoc:  locs[len(locs)-1],
		lfnLocs: locs[:len(locs)-1],
	}, 0
}

// uniqueSFN generates an 8.3 alias for name, retrying with incrementing
// numeric tails ("~1", "~2", ...) until it doesn't collide with an
// existing entry in the directory.
func (fs *Fs) uniqueSFN(dirCluster uint32, name string) [11]byte {
	base := GenerateSFN(name)
	baseChars := strings.TrimRight(string(base[0:6]), " ")
	ext := base[8:11]
	existing, _ := fs.scanDir(dirCluster)
	for n := 1; n < 1000; n++ {
		tail := "~" + itoa(n)
		keep := baseChars
		if len(keep)+len(tail) > 8 {
			keep = keep[:8-len(tail)]
		}
		var cand [11]byte
		for i := range cand {
			cand[i] = ' '
		}
		copy(cand[0:], []byte(keep+tail))
		copy(cand[8:11], ext[:])
		collide := false
		for _, e := range existing {
			if e.sfn11 == cand {
				collide = true
				break
			}
		}
		if !collide {
			return cand
		}
	}
	return base
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

// insertEntries writes entries into the first run of free slots at or
// past the directory's terminator, extending the chain with freshly
// zeroed clusters if there isn't enough room — per spec.md §4.12's
// "no free directory slot" failure mode, which fires only once
// AllocCluster itself returns ENOSPC.
func (fs *Fs) insertEntries(dirCluster uint32, entries []RawEntry) ([]loc, kerr.Err_t) {
	clusters, err := chainClusters(fs.dev, fs.geo, dirCluster)
	if err != 0 {
		return nil, err
	}
	slotsPerCluster := int(fs.geo.ClusterBytes) / entrySize

	// Find the terminator slot.
	ci, si := -1, -1
	for idx, c := range clusters {
		raw, err := readDirEntries(fs.dev, fs.geo, c)
		if err != 0 {
			return nil, err
		}
		for s, e := range raw {
			if e.IsEnd() {
				ci, si = idx, s
				break
			}
		}
		if ci != -1 {
			break
		}
	}
	for ci == -1 || slotsPerCluster-si < len(entries) {
		if ci != -1 {
			// Mark the too-short free tail deleted so scanDir walks on
			// past it into the new cluster instead of stopping there.
			tail, err := readDirEntries(fs.dev, fs.geo, clusters[ci])
			if err != 0 {
				return nil, err
			}
			for s := si; s < slotsPerCluster; s++ {
				tail[s].MarkDeleted()
			}
			if err := writeDirEntries(fs.dev, fs.geo, clusters[ci], tail); err != 0 {
				return nil, err
			}
		}
		nc, cerr := AllocCluster(fs.dev, fs.geo)
		if cerr != 0 {
			return nil, cerr
		}
		if err := writeDirEntries(fs.dev, fs.geo, nc, make([]RawEntry, slotsPerCluster)); err != 0 {
			return nil, err
		}
		lastClus := clusters[len(clusters)-1]
		if wErr := WriteFATEntry(fs.dev, fs.geo, lastClus, nc); wErr != 0 {
			return nil, wErr
		}
		clusters = append(clusters, nc)
		ci, si = len(clusters)-1, 0
	}

	raw, err := readDirEntries(fs.dev, fs.geo, clusters[ci])
	if err != 0 {
		return nil, err
	}
	locs := make([]loc, len(entries))
	for i, e := range entries {
		raw[si+i] = e
		locs[i] = loc{clusters[ci], si + i}
	}
	if err := writeDirEntries(fs.dev, fs.geo, clusters[ci], raw); err != 0 {
		return nil, err
	}
	return locs, 0
}

func (fs *Fs) updateSizeAndCluster(d dirent) kerr.Err_t {
	raw, err := readDirEntries(fs.dev, fs.geo, d.sfnLoc.cluster)
	if err != 0 {
		return err
	}
	e := &raw[d.sfnLoc.index]
	e.SetCluster(d.cluster)
	e.SetSize(d.size)
	return writeDirEntries(fs.dev, fs.geo, d.sfnLoc.cluster, raw)
}

func (fs *Fs) Mkdir(p kpath.Path, mode uint32) kerr.Err_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, found, parentClus, name, err := fs.resolve(p)
	if found {
		return kerr.EEXIST
	}
	if err != kerr.ENOENT {
		return err
	}

	newClus, cerr := AllocCluster(fs.dev, fs.geo)
	if cerr != 0 {
		return cerr
	}
	slotsPerCluster := int(fs.geo.ClusterBytes) / entrySize
	dot := make([]RawEntry, slotsPerCluster)
	var dotEnt, dotdotEnt RawEntry
	dotEnt.SetName11(sfnDot("."))
	dotEnt.SetAttr(AttrDirectory)
	dotEnt.SetCluster(newClus)
	dotdotEnt.SetName11(sfnDot(".."))
	dotdotEnt.SetAttr(AttrDirectory)
	if parentClus != fs.geo.RootClus {
		dotdotEnt.SetCluster(parentClus)
	}
	dot[0], dot[1] = dotEnt, dotdotEnt
	if err := writeDirEntries(fs.dev, fs.geo, newClus, dot); err != 0 {
		return err
	}

	d, cerr := fs.createEntry(parentClus, name, AttrDirectory)
	if cerr != 0 {
		return cerr
	}
	d.cluster = newClus
	return fs.updateSizeAndCluster(d)
}

func sfnDot(name string) [11]byte {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[:], name)
	return out
}

func (fs *Fs) Unlink(p kpath.Path) kerr.Err_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	d, found, _, _, err := fs.resolve(p)
	if !found {
		return err
	}
	if d.isDir() {
		children, serr := fs.scanDir(d.cluster)
		if serr != 0 {
			return serr
		}
		for _, c := range children {
			if c.name != "." && c.name != ".." {
				return kerr.ENOTEMPTY
			}
		}
	}

	raw, err := readDirEntries(fs.dev, fs.geo, d.sfnLoc.cluster)
	if err != 0 {
		return err
	}
	raw[d.sfnLoc.index].MarkDeleted()
	if err := writeDirEntries(fs.dev, fs.geo, d.sfnLoc.cluster, raw); err != 0 {
		return err
	}
	for _, l := range d.lfnLocs {
		raw2, err := readDirEntries(fs.dev, fs.geo, l.cluster)
		if err != 0 {
			return err
		}
		raw2[l.index].MarkDeleted()
		if err := writeDirEntries(fs.dev, fs.geo, l.cluster, raw2); err != 0 {
			return err
		}
	}
	if d.cluster != 0 {
		return FreeChain(fs.dev, fs.geo, d.cluster)
	}
	return 0
}

func (fs *Fs) Stat(p kpath.Path, st *kstat.Stat_t) kerr.Err_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	d, found, _, _, err := fs.resolve(p)
	if !found {
		return err
	}
	fillStat(d, st)
	return 0
}

func fillStat(d dirent, st *kstat.Stat_t) {
	st.Wino(uint64(d.cluster))
	st.Wsize(uint64(d.size))
	mode := kstat.ModePerm
	if d.isDir() {
		mode |= kstat.ModeDir
	} else {
		mode |= kstat.ModeReg
	}
	st.Wmode(mode)
	st.Wnlink(1)
}

func (fs *Fs) Sync() kerr.Err_t { return 0 }

// --- File ---

type fileHandle struct {
	fs  *Fs
	d   dirent
	off int64
}

func (h *fileHandle) Read(buf []byte) (int, kerr.Err_t) {
	n, err := h.ReadAt(buf, h.off)
	if err == 0 {
		h.off += int64(n)
	}
	return n, err
}

func (h *fileHandle) ReadAt(buf []byte, off int64) (int, kerr.Err_t) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.d.isDir() {
		return 0, kerr.EISDIR
	}
	if off >= int64(h.d.size) {
		return 0, 0
	}
	want := len(buf)
	if int64(want) > int64(h.d.size)-off {
		want = int(int64(h.d.size) - off)
	}
	g := h.fs.geo
	clusterIdx := int(off / int64(g.ClusterBytes))
	inClusterOff := off % int64(g.ClusterBytes)
	_, clus, err := EnsureNthCluster(h.fs.dev, g, h.d.cluster, clusterIdx)
	if err != 0 {
		return 0, err
	}

	got := 0
	for got < want {
		buf2 := make([]byte, g.ClusterBytes)
		if err := ReadCluster(h.fs.dev, g, clus, buf2); err != 0 {
			return got, err
		}
		n := copy(buf[got:want], buf2[inClusterOff:])
		got += n
		inClusterOff = 0
		if got >= want {
			break
		}
		next, ok, err := NextCluster(h.fs.dev, g, clus)
		if err != 0 || !ok {
			break
		}
		clus = next
	}
	return got, 0
}

func (h *fileHandle) Write(buf []byte) (int, kerr.Err_t) {
	n, err := h.WriteAt(buf, h.off)
	if err == 0 {
		h.off += int64(n)
	}
	return n, err
}

func (h *fileHandle) WriteAt(buf []byte, off int64) (int, kerr.Err_t) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.d.isDir() {
		return 0, kerr.EISDIR
	}
	g := h.fs.geo
	clusterIdx := int(off / int64(g.ClusterBytes))
	inClusterOff := off % int64(g.ClusterBytes)
	first, clus, err := EnsureNthCluster(h.fs.dev, g, h.d.cluster, clusterIdx)
	if err != 0 {
		return 0, err
	}
	if h.d.cluster == 0 {
		h.d.cluster = first
	}

	written := 0
	for written < len(buf) {
		cbuf := make([]byte, g.ClusterBytes)
		if err := ReadCluster(h.fs.dev, g, clus, cbuf); err != 0 {
			return written, err
		}
		n := copy(cbuf[inClusterOff:], buf[written:])
		if err := WriteCluster(h.fs.dev, g, clus, cbuf); err != 0 {
			return written, err
		}
		written += n
		inClusterOff = 0
		if written >= len(buf) {
			break
		}
		_, next, err := EnsureNthCluster(h.fs.dev, g, first, clusterIdx+1)
		if err != 0 {
			return written, err
		}
		clusterIdx++
		clus = next
	}

	if off+int64(written) > int64(h.d.size) {
		h.d.size = uint32(off + int64(written))
		if err := h.fs.updateSizeAndCluster(h.d); err != 0 {
			return written, err
		}
	}
	return written, 0
}

func (h *fileHandle) Seek(off int64, whence int) (int64, kerr.Err_t) {
	switch whence {
	case 0:
		h.off = off
	case 1:
		h.off += off
	case 2:
		h.off = int64(h.d.size) + off
	default:
		return 0, kerr.EINVAL
	}
	return h.off, 0
}

func (h *fileHandle) Stat(st *kstat.Stat_t) kerr.Err_t {
	fillStat(h.d, st)
	return 0
}

// Getdents64 returns every entry of the directory this handle was
// opened on, in on-disk cluster-chain order — stable across calls, so
// sys.Getdents64 can index into the recomputed stream by the handle's
// byte offset per spec.md §4.12.
func (h *fileHandle) Getdents64() ([]vfs.DirEntry, kerr.Err_t) {
	if !h.d.isDir() {
		return nil, kerr.ENOTDIR
	}
	entries, err := h.fs.scanDir(h.d.cluster)
	if err != 0 {
		return nil, err
	}
	out := make([]vfs.DirEntry, 0, len(entries))
	for _, e := range entries {
		if e.name == "." || e.name == ".." {
			continue
		}
		out = append(out, vfs.DirEntry{Ino: uint64(e.cluster), Name: e.name, IsDir: e.isDir()})
	}
	return out, 0
}

func (h *fileHandle) Close() kerr.Err_t  { return 0 }
func (h *fileHandle) Reopen() kerr.Err_t { return 0 }
func (h *fileHandle) InodeNum() uint64   { return uint64(h.d.cluster) }
