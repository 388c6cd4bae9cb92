package fat32

import "strings"

func isSFNChar(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		return true
	default:
		return false
	}
}

// GenerateSFN produces an 8.3 short name for a long name that needs
// one, per spec.md §4.12: uppercase alphanumerics/underscore, up to 6
// base characters plus "~1", up to 3 extension characters.
func GenerateSFN(longName string) [11]byte {
	upper := strings.ToUpper(longName)
	base, ext := splitExt(upper)

	var baseChars []byte
	for _, r := range base {
		if isSFNChar(r) {
			baseChars = append(baseChars, byte(r))
			if len(baseChars) == 6 {
				break
			}
		}
	}
	var extChars []byte
	for _, r := range ext {
		if isSFNChar(r) {
			extChars = append(extChars, byte(r))
			if len(extChars) == 3 {
				break
			}
		}
	}

	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[0:6], baseChars)
	out[6] = '~'
	out[7] = '1'
	copy(out[8:11], extChars)
	return out
}

// FitsInSFN reports whether name is already a valid 8.3 name that
// needs no LFN companion entries at all (an exact uppercase/no-special
// -character match), used to skip LFN generation for plain ASCII
// names like "ABC.TXT".
func FitsInSFN(name string) ([11]byte, bool) {
	base, ext := splitExt(name)
	if len(base) == 0 || len(base) > 8 || len(ext) > 3 {
		return [11]byte{}, false
	}
	for _, r := range base + ext {
		if !isSFNChar(r) && !(r >= 'a' && r <= 'z') {
			return [11]byte{}, false
		}
	}
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[0:len(base)], []byte(strings.ToUpper(base)))
	copy(out[8:8+len(ext)], []byte(strings.ToUpper(ext)))
	return out, true
}

func splitExt(name string) (base, ext string) {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return name, ""
	}
	return name[:idx], name[idx+1:]
}
