// pipe.go implements pipe2(2) over internal/circbuf, grounded on the
// teacher's Pipe_t pattern (inferred from circbuf.Circbuf_t's doc
// comment referencing it as a pipe's backing store: two descriptors
// sharing one buffer, torn down once both ends are closed). This
// kernel has no timer-interrupt-driven wait queue (spec.md §5's
// cooperative, non-preemptive scheduler), so a read against an empty
// pipe with the write end still open returns EAGAIN rather than
// blocking — the caller is expected to retry, matching how this
// kernel already treats would-block conditions elsewhere (spec.md
// §7's EAGAIN row).
package sys

import (
	"sync"
	"sync/atomic"

	"riscvkern/internal/circbuf"
	"riscvkern/internal/fdtable"
	"riscvkern/internal/frame"
	"riscvkern/internal/kerr"
	"riscvkern/internal/kstat"
	"riscvkern/internal/task"
	"riscvkern/internal/vfs"
)

var pipeInoCounter uint64

type pipeState struct {
	mu            sync.Mutex
	cb            *circbuf.Circbuf
	readers       int
	writers       int
	ino           uint64
}

func newPipeState(alloc *frame.Allocator) *pipeState {
	return &pipeState{cb: circbuf.New(alloc, pipeBufSize), ino: atomic.AddUint64(&pipeInoCounter, 1)}
}

// pipeBufSize is the pipe's backing buffer size, one page, matching
// circbuf's single-frame allocation.
const pipeBufSize = 4096

type pipeEnd struct {
	s       *pipeState
	isWrite bool
}

func (p *pipeEnd) Read(buf []byte) (int, kerr.Err_t) {
	if p.isWrite {
		return 0, kerr.EBADF
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if p.s.cb.Empty() {
		if p.s.writers == 0 {
			return 0, 0 // EOF: every write end closed
		}
		return 0, kerr.EAGAIN
	}
	return p.s.cb.Read(buf)
}

func (p *pipeEnd) Write(buf []byte) (int, kerr.Err_t) {
	if !p.isWrite {
		return 0, kerr.EBADF
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if p.s.readers == 0 {
		return 0, kerr.EPIPE
	}
	if p.s.cb.Full() {
		return 0, kerr.EAGAIN
	}
	return p.s.cb.Write(buf)
}

func (p *pipeEnd) ReadAt(buf []byte, off int64) (int, kerr.Err_t)  { return 0, kerr.ENOTSUP }
func (p *pipeEnd) WriteAt(buf []byte, off int64) (int, kerr.Err_t) { return 0, kerr.ENOTSUP }
func (p *pipeEnd) Seek(off int64, whence int) (int64, kerr.Err_t)  { return 0, kerr.ENOTSUP }

func (p *pipeEnd) Stat(st *kstat.Stat_t) kerr.Err_t {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	st.Wino(p.s.ino)
	st.Wsize(uint64(p.s.cb.Used()))
	st.Wmode(kstat.ModeChr | 0o600)
	st.Wnlink(1)
	return 0
}

func (p *pipeEnd) Getdents64() ([]vfs.DirEntry, kerr.Err_t) { return nil, kerr.ENOTDIR }

func (p *pipeEnd) Close() kerr.Err_t {
	p.s.mu.Lock()
	if p.isWrite {
		p.s.writers--
	} else {
		p.s.readers--
	}
	done := p.s.readers == 0 && p.s.writers == 0
	p.s.mu.Unlock()
	if done {
		p.s.cb.Release()
	}
	return 0
}

func (p *pipeEnd) Reopen() kerr.Err_t {
	p.s.mu.Lock()
	if p.isWrite {
		p.s.writers++
	} else {
		p.s.readers++
	}
	p.s.mu.Unlock()
	return 0
}

func (p *pipeEnd) InodeNum() uint64 { return p.s.ino }

func (k *Kernel) sysPipe2(t *task.TCB, vaFds uint64, flags int) kerr.Err_t {
	s := newPipeState(k.Alloc)
	s.readers, s.writers = 1, 1
	rend := &pipeEnd{s: s, isWrite: false}
	wend := &pipeEnd{s: s, isWrite: true}

	rfd, err := t.Fds.Install(rend, fdtable.Read)
	if err != 0 {
		return err
	}
	wfd, err := t.Fds.Install(wend, fdtable.Write)
	if err != 0 {
		t.Fds.Close(rfd)
		return err
	}

	var buf [8]byte
	putLE32(buf[0:4], uint32(rfd))
	putLE32(buf[4:8], uint32(wfd))
	if err := CopyOut(t.MapSet.PT, vaFds, buf[:]); err != 0 {
		t.Fds.Close(rfd)
		t.Fds.Close(wfd)
		return err
	}
	return 0
}

func putLE32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}
