package task

import (
	"testing"

	"riscvkern/internal/frame"
	"riscvkern/internal/mmcache"
	"riscvkern/internal/vm"
)

func newFixtureTask(t *testing.T, tb *Table, alloc *frame.Allocator, cache *mmcache.Cache, pid, ppid Pid_t) *TCB {
	t.Helper()
	ms, err := vm.NewEmpty(alloc, cache)
	if err != 0 {
		t.Fatalf("NewEmpty: %v", err)
	}
	tsk, err := tb.newTask(pid, ppid, ms, 0x1000, alloc)
	if err != 0 {
		t.Fatalf("newTask: %v", err)
	}
	return tsk
}

func TestForkCreatesChildAndRegistersParent(t *testing.T) {
	alloc := &frame.Allocator{}
	alloc.Init(0, 256)
	cache := mmcache.New()
	tb := NewTable()

	parent := newFixtureTask(t, tb, alloc, cache, InitPid, 0)
	child, err := tb.Fork(alloc, parent)
	if err != 0 {
		t.Fatalf("Fork: %v", err)
	}
	if child.Ppid != parent.Pid {
		t.Fatalf("child ppid = %d, want %d", child.Ppid, parent.Pid)
	}
	parent.mu.Lock()
	found := false
	for _, c := range parent.Children {
		if c == child.Pid {
			found = true
		}
	}
	parent.mu.Unlock()
	if !found {
		t.Fatalf("expected parent to list child pid")
	}
}

func TestExitReparentsChildrenToInit(t *testing.T) {
	alloc := &frame.Allocator{}
	alloc.Init(0, 256)
	cache := mmcache.New()
	tb := NewTable()

	init := newFixtureTask(t, tb, alloc, cache, InitPid, 0)
	mid := newFixtureTask(t, tb, alloc, cache, 2, InitPid)
	grandchild, err := tb.Fork(alloc, mid)
	if err != 0 {
		t.Fatalf("Fork: %v", err)
	}

	tb.Exit(mid, 7)

	if grandchild.Ppid != InitPid {
		t.Fatalf("grandchild ppid = %d, want init", grandchild.Ppid)
	}
	init.mu.Lock()
	found := false
	for _, c := range init.Children {
		if c == grandchild.Pid {
			found = true
		}
	}
	init.mu.Unlock()
	if !found {
		t.Fatalf("expected init to inherit orphaned grandchild")
	}
}

func TestWaitReturnsExitCodeAndRemovesChild(t *testing.T) {
	alloc := &frame.Allocator{}
	alloc.Init(0, 256)
	cache := mmcache.New()
	tb := NewTable()

	parent := newFixtureTask(t, tb, alloc, cache, InitPid, 0)
	child, _ := tb.Fork(alloc, parent)

	go func() {
		tb.Exit(child, 3)
	}()

	gotPid, code, err := tb.Wait(parent, -1)
	if err != 0 {
		t.Fatalf("Wait: %v", err)
	}
	if gotPid != child.Pid || code != 3 {
		t.Fatalf("Wait = (%d,%d), want (%d,3)", gotPid, code, child.Pid)
	}
	if tb.Get(child.Pid) != nil {
		t.Fatalf("expected reaped child removed from table")
	}
}

func TestWaitWithNoMatchingChildReturnsECHILD(t *testing.T) {
	alloc := &frame.Allocator{}
	alloc.Init(0, 256)
	cache := mmcache.New()
	tb := NewTable()
	parent := newFixtureTask(t, tb, alloc, cache, InitPid, 0)

	if _, _, err := tb.Wait(parent, 999); err == 0 {
		t.Fatalf("expected ECHILD for unrelated pid")
	}
}

func TestSchedulerPicksSmallestPass(t *testing.T) {
	alloc := &frame.Allocator{}
	alloc.Init(0, 256)
	cache := mmcache.New()
	tb := NewTable()
	sched := NewScheduler(tb)

	a := newFixtureTask(t, tb, alloc, cache, InitPid, 0)
	b := newFixtureTask(t, tb, alloc, cache, 2, 0)
	sched.Register(a)
	sched.Register(b)

	a.pass = 500
	b.pass = 10

	picked := sched.Pick(nil)
	if picked.Pid != b.Pid {
		t.Fatalf("expected scheduler to pick lowest-pass task %d, got %d", b.Pid, picked.Pid)
	}
	sched.Advance(picked)
	if picked.pass == 10 {
		t.Fatalf("expected pass advanced after scheduling")
	}
}

// TestSchedulerFairnessEqualTickets exercises spec.md §8's scheduler
// fairness property: under N READY tasks with equal tickets, over T
// yields each task runs within ±1 of T/N times.
func TestSchedulerFairnessEqualTickets(t *testing.T) {
	alloc := &frame.Allocator{}
	alloc.Init(0, 256)
	cache := mmcache.New()
	tb := NewTable()
	sched := NewScheduler(tb)

	const n = 4
	tasks := make([]*TCB, n)
	counts := make(map[Pid_t]int, n)
	for i := 0; i < n; i++ {
		tasks[i] = newFixtureTask(t, tb, alloc, cache, Pid_t(i+1), 0)
		sched.Register(tasks[i])
	}

	const rounds = 400
	var current *TCB
	for i := 0; i < rounds; i++ {
		next := sched.Yield(current)
		if next == nil {
			t.Fatalf("yield %d: expected a runnable task, got nil", i)
		}
		counts[next.Pid]++
		current = next
	}

	want := rounds / n
	for _, tsk := range tasks {
		got := counts[tsk.Pid]
		if got < want-1 || got > want+1 {
			t.Fatalf("task %d ran %d times, want within ±1 of %d", tsk.Pid, got, want)
		}
	}
}
