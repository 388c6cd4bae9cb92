// Package circbuf implements the single-page circular byte buffer
// backing a pipe's read/write ends. Grounded on the teacher's
// circbuf.Circbuf_t: lazy page allocation on first use, head/tail
// indices that only ever grow (wrapped via modulo at access time), and
// the same wraparound-copy shape for Write/Read. The teacher's
// Userio_i source/sink abstraction has no counterpart here — pipe
// reads and writes already hand this package a plain []byte view of
// the calling task's buffer, so Copyin/Copyout collapse to Write/Read.
package circbuf

import (
	"riscvkern/internal/frame"
	"riscvkern/internal/kconfig"
	"riscvkern/internal/kerr"
)

// Circbuf is a lazily-allocated, single-frame circular buffer. Not
// safe for concurrent use; callers (the pipe implementation) hold
// their own lock.
type Circbuf struct {
	alloc *frame.Allocator
	ppn   frame.PPN
	have  bool
	buf   []byte
	bufsz int
	head  int
	tail  int
}

// New returns a buffer of sz bytes (<= kconfig.PageSize), backed by
// alloc once it is first used.
func New(alloc *frame.Allocator, sz int) *Circbuf {
	if sz <= 0 || sz > kconfig.PageSize {
		panic("circbuf: bad size")
	}
	return &Circbuf{alloc: alloc, bufsz: sz}
}

func (cb *Circbuf) ensure() kerr.Err_t {
	if cb.have {
		return 0
	}
	p, err := cb.alloc.Alloc()
	if err != 0 {
		return err
	}
	cb.ppn = p
	cb.have = true
	cb.buf = cb.alloc.Bytes(p)[:cb.bufsz]
	return 0
}

// Release drops the backing frame, if any was ever allocated.
func (cb *Circbuf) Release() {
	if !cb.have {
		return
	}
	cb.alloc.Refdown(cb.ppn)
	cb.have = false
	cb.buf = nil
	cb.head, cb.tail = 0, 0
}

func (cb *Circbuf) Full() bool  { return cb.head-cb.tail == cb.bufsz }
func (cb *Circbuf) Empty() bool { return cb.head == cb.tail }
func (cb *Circbuf) Left() int   { return cb.bufsz - (cb.head - cb.tail) }
func (cb *Circbuf) Used() int   { return cb.head - cb.tail }

// Write copies as much of src into the buffer as fits, returning
// EAGAIN-free partial writes (the pipe syscall layer decides whether a
// short write is itself an EAGAIN condition for a non-blocking fd).
func (cb *Circbuf) Write(src []byte) (int, kerr.Err_t) {
	if err := cb.ensure(); err != 0 {
		return 0, err
	}
	if cb.Full() || len(src) == 0 {
		return 0, 0
	}
	if len(src) > cb.Left() {
		src = src[:cb.Left()]
	}
	hi := cb.head % cb.bufsz
	ti := cb.tail % cb.bufsz
	n := 0
	if ti <= hi {
		c := copy(cb.buf[hi:], src)
		n += c
		src = src[c:]
		hi = (cb.head + c) % cb.bufsz
	}
	if len(src) > 0 {
		n += copy(cb.buf[hi:ti], src)
	}
	cb.head += n
	return n, 0
}

// Read copies up to len(dst) bytes out of the buffer.
func (cb *Circbuf) Read(dst []byte) (int, kerr.Err_t) {
	if err := cb.ensure(); err != 0 {
		return 0, err
	}
	if cb.Empty() || len(dst) == 0 {
		return 0, 0
	}
	hi := cb.head % cb.bufsz
	ti := cb.tail % cb.bufsz
	n := 0
	if hi <= ti {
		c := copy(dst, cb.buf[ti:])
		n += c
		dst = dst[c:]
		ti = (cb.tail + c) % cb.bufsz
	}
	if len(dst) > 0 {
		n += copy(dst, cb.buf[ti:hi])
	}
	cb.tail += n
	return n, 0
}
