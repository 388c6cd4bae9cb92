// Package kdiag exposes the scheduler's per-task CPU accounting as a
// read-only /dev/kprof device, per spec.md §4.9's Device inode kind
// and SPEC_FULL.md's supplemented D_PROF profiling device: one sample
// per live task, labeled by pid/ppid/state, with run count and
// system-time nanoseconds as its two value types. Encoded with
// github.com/google/pprof/profile so any pprof-speaking tool (go tool
// pprof, the pprof web UI) can open the file directly.
//
// Grounded on the teacher's accnt.Accnt_t fields surfaced through
// fs/sys_stat.go's D_STAT device (the closest biscuit analogue of a
// synthetic accounting file); the encoding itself is new, since
// biscuit predates pprof's profile.proto format.
package kdiag

import (
	"bytes"
	"fmt"

	"github.com/google/pprof/profile"

	"riscvkern/internal/kerr"
	"riscvkern/internal/kstat"
	"riscvkern/internal/task"
	"riscvkern/internal/vfs"
)

// Snapshotter is the read-only view into the task table kdiag needs;
// task.Table satisfies it.
type Snapshotter interface {
	Snapshot() []task.Stat
}

// Device is a vfs.File backed by a point-in-time encoding of the task
// table's accounting counters, built on first read and rebuilt after
// each Reopen. It can be mounted into the namespace with
// ramfs.Fs.MountDevice, never created by VfsFs.Open/Mkdir directly;
// boot does not mount one.
type Device struct {
	tb  Snapshotter
	buf []byte // lazily (re)built on first Read/ReadAt after an open
}

// New wraps tb as a /dev/kprof device.
func New(tb Snapshotter) *Device {
	return &Device{tb: tb}
}

// Reopen rebuilds the encoded profile from the current snapshot,
// matching the teacher's synthetic /proc-style files that regenerate
// their content on every open rather than caching it.
func (d *Device) Reopen() kerr.Err_t {
	d.buf = nil
	return 0
}

func (d *Device) ensure() kerr.Err_t {
	if d.buf != nil {
		return 0
	}
	p := build(d.tb.Snapshot())
	var out bytes.Buffer
	if err := p.Write(&out); err != nil {
		return kerr.EIO
	}
	d.buf = out.Bytes()
	return 0
}

// build encodes one task.Stat per sample, per-task labeled, with
// run-count and system-time-nanoseconds as the two value types named
// in spec.md §8's scheduler-fairness testable property.
func build(stats []task.Stat) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "runs", Unit: "count"},
			{Type: "systime", Unit: "nanoseconds"},
		},
		DefaultSampleType: "systime",
	}
	for _, s := range stats {
		p.Sample = append(p.Sample, &profile.Sample{
			Value: []int64{s.Acct.Runs, s.Acct.Sysns},
			Label: map[string][]string{
				"pid":     {fmt.Sprint(s.Pid)},
				"ppid":    {fmt.Sprint(s.Ppid)},
				"state":   {s.State.String()},
				"tickets": {fmt.Sprint(s.Tickets)},
			},
		})
	}
	return p
}

func (d *Device) Read(buf []byte) (int, kerr.Err_t) {
	return d.ReadAt(buf, 0)
}

func (d *Device) ReadAt(buf []byte, off int64) (int, kerr.Err_t) {
	if err := d.ensure(); err != 0 {
		return 0, err
	}
	if off >= int64(len(d.buf)) {
		return 0, 0
	}
	return copy(buf, d.buf[off:]), 0
}

func (d *Device) Write(buf []byte) (int, kerr.Err_t)              { return 0, kerr.EROFS }
func (d *Device) WriteAt(buf []byte, off int64) (int, kerr.Err_t) { return 0, kerr.EROFS }

func (d *Device) Seek(off int64, whence int) (int64, kerr.Err_t) {
	if err := d.ensure(); err != 0 {
		return 0, err
	}
	switch whence {
	case 0:
		return off, 0
	case 2:
		return int64(len(d.buf)) + off, 0
	default:
		return 0, kerr.EINVAL
	}
}

func (d *Device) Stat(st *kstat.Stat_t) kerr.Err_t {
	if err := d.ensure(); err != 0 {
		return err
	}
	st.Wsize(uint64(len(d.buf)))
	st.Wmode(kstat.ModeReg | 0o444)
	st.Wnlink(1)
	return 0
}

func (d *Device) Getdents64() ([]vfs.DirEntry, kerr.Err_t) { return nil, kerr.ENOTDIR }
func (d *Device) Close() kerr.Err_t                        { return 0 }
func (d *Device) InodeNum() uint64                         { return 0 }
