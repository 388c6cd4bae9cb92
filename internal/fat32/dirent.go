package fat32

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
)

const entrySize = 32

// Attr bits, per spec.md §6.6/§4.12.
const (
	AttrReadOnly = 0x01
	AttrHidden   = 0x02
	AttrSystem   = 0x04
	AttrVolumeID = 0x08
	AttrDirectory = 0x10
	AttrArchive  = 0x20
	AttrLFN      = 0x0F // ReadOnly|Hidden|System|VolumeID together
)

// RawEntry is one raw 32-byte directory entry slot.
type RawEntry [entrySize]byte

func (e *RawEntry) IsEnd() bool     { return e[0] == 0x00 }
func (e *RawEntry) IsDeleted() bool { return e[0] == 0xE5 }
func (e *RawEntry) IsLFN() bool     { return e[11] == AttrLFN }
func (e *RawEntry) IsVolumeLabel() bool {
	return !e.IsLFN() && e[11]&AttrVolumeID != 0
}
func (e *RawEntry) MarkDeleted() { e[0] = 0xE5 }
func (e *RawEntry) MarkEnd()     { *e = RawEntry{} }

// --- SFN accessors ---

func (e *RawEntry) Name11() [11]byte {
	var n [11]byte
	copy(n[:], e[0:11])
	return n
}
func (e *RawEntry) SetName11(n [11]byte) { copy(e[0:11], n[:]) }
func (e *RawEntry) Attr() byte           { return e[11] }
func (e *RawEntry) SetAttr(a byte)       { e[11] = a }
func (e *RawEntry) Cluster() uint32 {
	hi := uint32(le16(e[20:22]))
	lo := uint32(le16(e[26:28]))
	return hi<<16 | lo
}
func (e *RawEntry) SetCluster(c uint32) {
	putLE16(e[20:22], uint16(c>>16))
	putLE16(e[26:28], uint16(c))
}
func (e *RawEntry) Size() uint32     { return le32(e[28:32]) }
func (e *RawEntry) SetSize(s uint32) { putLE32(e[28:32], s) }
func (e *RawEntry) IsDir() bool      { return e.Attr()&AttrDirectory != 0 }

func putLE16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// --- LFN accessors ---

const lfnFirstFlag = 0x40

func (e *RawEntry) Ord() byte          { return e[0] &^ lfnFirstFlag }
func (e *RawEntry) IsFirstLFN() bool   { return e[0]&lfnFirstFlag != 0 }
func (e *RawEntry) SetOrd(seq byte, first bool) {
	v := seq
	if first {
		v |= lfnFirstFlag
	}
	e[0] = v
}
func (e *RawEntry) Checksum() byte     { return e[13] }
func (e *RawEntry) SetChecksum(c byte) { e[13] = c; e[11] = AttrLFN; e[12] = 0; putLE16(e[26:28], 0) }

// fragmentBytes returns the 26 raw bytes (13 UTF-16LE code units) this
// LFN entry carries, in on-disk order: name1(10) name2(12) name3(4).
func (e *RawEntry) fragmentBytes() []byte {
	out := make([]byte, 26)
	copy(out[0:10], e[1:11])
	copy(out[10:22], e[14:26])
	copy(out[22:26], e[28:32])
	return out
}

func (e *RawEntry) setFragmentBytes(b [26]byte) {
	copy(e[1:11], b[0:10])
	copy(e[14:26], b[10:22])
	copy(e[28:32], b[22:26])
}

// ShortNameChecksum computes the classic FAT LFN checksum of an 11-byte
// short name, per spec.md §4.12's "checksum of the SFN".
func ShortNameChecksum(name11 [11]byte) byte {
	var sum byte
	for _, c := range name11 {
		if sum&1 != 0 {
			sum = 0x80 + (sum >> 1) + c
		} else {
			sum = (sum >> 1) + c
		}
	}
	return sum
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// EncodeLFNFragments splits name's UTF-16LE encoding into 13-code-unit
// (26-byte) fragments, NUL-terminated and 0xFFFF-padded in the final
// fragment, one per LFN entry in name order: fragment i holds the
// part of the name for ordinal i+1. The on-disk chain stores them in
// reverse (highest ordinal, holding the tail of the name, first), so
// callers write the slice back to front, per spec.md §4.12.
func EncodeLFNFragments(name string) ([][26]byte, error) {
	enc := utf16le.NewEncoder()
	raw, err := enc.String(name)
	if err != nil {
		return nil, err
	}
	data := []byte(raw)
	data = append(data, 0x00, 0x00) // NUL terminator code unit

	var frags [][26]byte
	for off := 0; off < len(data); off += 26 {
		var f [26]byte
		for i := range f {
			f[i] = 0xFF
		}
		copy(f[:], data[off:])
		frags = append(frags, f)
	}
	return frags, nil
}

// DecodeLFNFragments reassembles fragments (already ordered head-to-
// tail) into the original name, trimming the NUL terminator and any
// 0xFFFF padding.
func DecodeLFNFragments(frags [][26]byte) (string, error) {
	var buf []byte
	for _, f := range frags {
		buf = append(buf, f[:]...)
	}
	// Trim at the first NUL code unit.
	for i := 0; i+1 < len(buf); i += 2 {
		if buf[i] == 0 && buf[i+1] == 0 {
			buf = buf[:i]
			break
		}
	}
	dec := utf16le.NewDecoder()
	s, err := dec.Bytes(buf)
	if err != nil {
		return "", err
	}
	return string(s), nil
}

// DecodeSFNName renders an 11-byte short name as "BASE.EXT" (or "BASE"
// with no extension), trimming the space padding.
func DecodeSFNName(name11 [11]byte) string {
	base := strings.TrimRight(string(name11[0:8]), " ")
	ext := strings.TrimRight(string(name11[8:11]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}
