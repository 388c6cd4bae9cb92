package kdiag

import (
	"testing"

	"github.com/google/pprof/profile"

	"riscvkern/internal/task"
)

type fakeSnapshotter struct{ stats []task.Stat }

func (f fakeSnapshotter) Snapshot() []task.Stat { return f.stats }

func TestReadProducesParseableProfileWithOneSamplePerTask(t *testing.T) {
	stats := []task.Stat{
		{Pid: 1, Ppid: 0, State: task.Runnable, Tickets: 100},
		{Pid: 2, Ppid: 1, State: task.Blocked, Tickets: 50},
	}
	stats[0].Acct.Runs = 3
	stats[0].Acct.Sysns = 1000
	d := New(fakeSnapshotter{stats: stats})

	buf := make([]byte, 64*1024)
	n, err := d.Read(buf)
	if err != 0 {
		t.Fatalf("Read: %v", err)
	}
	if n == 0 {
		t.Fatal("expected non-empty profile encoding")
	}

	p, perr := profile.ParseData(buf[:n])
	if perr != nil {
		t.Fatalf("ParseData: %v", perr)
	}
	if len(p.Sample) != 2 {
		t.Fatalf("got %d samples, want 2", len(p.Sample))
	}
}

func TestWriteIsRejected(t *testing.T) {
	d := New(fakeSnapshotter{})
	if _, err := d.Write([]byte("x")); err == 0 {
		t.Fatal("expected write to a diagnostics device to fail")
	}
}

func TestReopenInvalidatesCache(t *testing.T) {
	d := New(fakeSnapshotter{stats: []task.Stat{{Pid: 1}}})
	buf := make([]byte, 64*1024)
	n1, _ := d.Read(buf)
	d.Reopen()
	if d.buf != nil {
		t.Fatal("Reopen should clear the cached encoding")
	}
	n2, _ := d.Read(buf)
	if n1 != n2 {
		t.Fatalf("re-encoding of an unchanged snapshot should be stable: %d != %d", n1, n2)
	}
}
