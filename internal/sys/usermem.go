// usermem.go copies bytes between a task's user address space and
// kernel-side buffers, grounded on the teacher's vm.Userbuf_t: every
// syscall argument that is a user pointer goes through here rather
// than being dereferenced directly, since a user address is only
// meaningful against its owning page table. Simplified from
// Userbuf_t's iovec/resource-accounting machinery (out of scope) down
// to the two operations spec.md §6.3's syscalls actually need:
// whole-buffer copies and NUL-terminated string reads.
package sys

import (
	"riscvkern/internal/kerr"
	"riscvkern/internal/pagetable"
)

const maxCopyString = 4096

// CopyOut writes data into the user address space at va.
func CopyOut(pt *pagetable.Table, va uint64, data []byte) kerr.Err_t {
	chunks, err := pt.GetUserSlice(va, len(data))
	if err != 0 {
		return err
	}
	off := 0
	for _, c := range chunks {
		n := copy(c, data[off:])
		off += n
	}
	return 0
}

// CopyIn reads len(buf) bytes from the user address space at va into
// buf.
func CopyIn(pt *pagetable.Table, va uint64, buf []byte) kerr.Err_t {
	chunks, err := pt.GetUserSlice(va, len(buf))
	if err != 0 {
		return err
	}
	off := 0
	for _, c := range chunks {
		n := copy(buf[off:], c)
		off += n
	}
	return 0
}

// CopyInString reads a NUL-terminated string starting at va, one byte
// at a time, stopping at the first NUL or maxCopyString bytes.
func CopyInString(pt *pagetable.Table, va uint64) (string, kerr.Err_t) {
	var out []byte
	for len(out) < maxCopyString {
		chunks, err := pt.GetUserSlice(va+uint64(len(out)), 1)
		if err != 0 {
			return "", err
		}
		b := chunks[0][0]
		if b == 0 {
			return string(out), 0
		}
		out = append(out, b)
	}
	return "", kerr.ENAMETOOLONG
}

// CopyInPtrArray reads a NULL-terminated array of 8-byte user pointers
// starting at va — argv/envp's layout per spec.md §6.3's execve row.
func CopyInPtrArray(pt *pagetable.Table, va uint64) ([]uint64, kerr.Err_t) {
	var out []uint64
	var buf [8]byte
	for {
		if err := CopyIn(pt, va, buf[:]); err != 0 {
			return nil, err
		}
		ptr := leUint64(buf[:])
		if ptr == 0 {
			return out, 0
		}
		out = append(out, ptr)
		va += 8
	}
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
