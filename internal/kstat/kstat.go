// Package kstat mirrors a file's stat(2) information, grounded on the
// teacher's stat.Stat_t: a struct of unexported fields reached only
// through named setters/getters, so every write site states which
// field it means rather than poking a positional struct literal.
package kstat

// Stat_t mirrors the subset of struct stat spec.md §6.3's fstat/newfstatat
// must populate.
type Stat_t struct {
	dev    uint64
	ino    uint64
	mode   uint32
	nlink  uint32
	size   uint64
	blocks uint64
	mtime  int64
}

func (s *Stat_t) Wdev(v uint64)    { s.dev = v }
func (s *Stat_t) Wino(v uint64)    { s.ino = v }
func (s *Stat_t) Wmode(v uint32)   { s.mode = v }
func (s *Stat_t) Wnlink(v uint32)  { s.nlink = v }
func (s *Stat_t) Wsize(v uint64)   { s.size = v }
func (s *Stat_t) Wblocks(v uint64) { s.blocks = v }
func (s *Stat_t) Wmtime(v int64)   { s.mtime = v }

func (s *Stat_t) Dev() uint64    { return s.dev }
func (s *Stat_t) Ino() uint64    { return s.ino }
func (s *Stat_t) Mode() uint32   { return s.mode }
func (s *Stat_t) Nlink() uint32  { return s.nlink }
func (s *Stat_t) Size() uint64   { return s.size }
func (s *Stat_t) Blocks() uint64 { return s.blocks }
func (s *Stat_t) Mtime() int64   { return s.mtime }

// Mode bits, the subset newfstatat callers inspect.
const (
	ModeDir  uint32 = 1 << 14
	ModeReg  uint32 = 1 << 15
	ModeChr  uint32 = 1 << 13
	ModeBlk  uint32 = 1 << 12
	ModePerm uint32 = 0o777
)

// Size is the packed, little-endian wire size of struct stat, per
// spec.md §6.3's KStat layout.
const Size = 8 + 8 + 4 + 4 + 4 + 4 + 8 + 8 + 8 + 4 + 4 + 8 + (8+8)*3 + 4*2

func putLE32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

func putLE64(b []byte, v uint64) {
	putLE32(b[0:4], uint32(v))
	putLE32(b[4:8], uint32(v>>32))
}

// Encode renders s into KStat's packed layout: st_dev, st_ino,
// st_mode, st_nlink, st_uid, st_gid, st_rdev, pad, st_size, st_blksize,
// pad2, st_blocks, atime/mtime/ctime (sec+nsec, ×3), unused[2]. uid/gid
// are always 0 (no multi-user accounts, spec.md §7 Non-goals); st_rdev
// is always 0 (no device-number-bearing special files beyond the
// Device inode itself); atime/ctime mirror mtime since this kernel
// tracks one timestamp per inode.
func (s *Stat_t) Encode() []byte {
	b := make([]byte, Size)
	putLE64(b[0:8], s.dev)
	putLE64(b[8:16], s.ino)
	putLE32(b[16:20], s.mode)
	putLE32(b[20:24], s.nlink)
	// uid@24, gid@28 left zero
	putLE64(b[32:40], 0) // st_rdev
	// pad@40..48 left zero
	putLE64(b[48:56], uint64(s.size))
	putLE32(b[56:60], 4096) // st_blksize
	// pad2@60..64 left zero
	blocks := (s.size + 511) / 512
	putLE64(b[64:72], blocks)
	for _, off := range []int{72, 88, 104} { // atime, mtime, ctime
		putLE64(b[off:off+8], uint64(s.mtime))
		putLE64(b[off+8:off+16], 0)
	}
	return b
}
