// Package task implements the kernel's task control blocks and stride
// scheduler, per spec.md §5: cooperative (non-preemptive) switching,
// fork/exec/wait/exit POSIX semantics, and pid-1 reparenting of
// orphans. Grounded on the teacher's tinfo.Threadinfo_t (per-pid table
// guarded by one mutex, Alive/Killed/Isdoomed bookkeeping) generalized
// from biscuit's thread notes to whole process-like tasks, since this
// kernel has no separate thread/process distinction (spec.md §5 Non-goals).
package task

import (
	"fmt"
	"sync"

	"riscvkern/internal/accnt"
	"riscvkern/internal/fdtable"
	"riscvkern/internal/frame"
	"riscvkern/internal/kconfig"
	"riscvkern/internal/kerr"
	"riscvkern/internal/kpath"
	"riscvkern/internal/kstack"
	"riscvkern/internal/mmcache"
	"riscvkern/internal/trapframe"
	"riscvkern/internal/vm"
)

// Pid_t is a process/task identifier. Pid 1 is init and is never
// reaped; its exit would panic the kernel.
type Pid_t int

const InitPid Pid_t = 1

// State is a task's scheduling state.
type State int

const (
	Runnable State = iota
	Running
	Blocked
	Zombie
)

func (s State) String() string {
	switch s {
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Zombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// TCB is one task's control block.
type TCB struct {
	Pid  Pid_t
	Ppid Pid_t

	mu       sync.Mutex
	state    State
	killed   bool
	exitCode int

	MapSet     *vm.MapSet
	TF         *trapframe.Frame
	KStackSlot int
	KSP        uint64 // initial kernel stack pointer, loaded into sscratch on switch-in

	Children []Pid_t

	// Fds is this task's open-file-descriptor table and Cwd its
	// current working directory, per spec.md §6.3's per-process
	// descriptor and path-resolution state (fd.Fd_t/fd.Cwd_t on the
	// teacher's side).
	Fds *fdtable.Table
	Cwd *kpath.Cwd

	// Acct is this task's CPU accounting, consulted read-only by
	// internal/kdiag's profiling device.
	Acct accnt.Accnt

	// Stride-scheduling bookkeeping, per spec.md §5: each runnable task
	// has a ticket count and advances its pass by stride = Quantum /
	// Tickets every time it is scheduled; the scheduler always picks
	// the runnable task with the smallest pass, so tasks with more
	// tickets run proportionally more often without any timer
	// preemption (cooperative).
	tickets int
	stride  uint64
	pass    uint64

	waitCh chan struct{} // closed when this task becomes a Zombie
}

func (t *TCB) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *TCB) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Killed reports whether the task has been asked to die at its next
// opportunity — checked on syscall return and on every trap.
func (t *TCB) Killed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.killed
}

func (t *TCB) Kill() {
	t.mu.Lock()
	t.killed = true
	t.mu.Unlock()
}

// Table is the kernel-wide task table: every live TCB keyed by pid,
// guarded by one mutex, mirroring Threadinfo_t's single-lock design.
type Table struct {
	mu      sync.Mutex
	tasks   map[Pid_t]*TCB
	nextPid Pid_t
}

// Global is the kernel-wide task table, populated at boot.
var Global = NewTable()

func NewTable() *Table {
	return &Table{tasks: make(map[Pid_t]*TCB), nextPid: InitPid}
}

func (tb *Table) allocPid() Pid_t {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	p := tb.nextPid
	tb.nextPid++
	return p
}

// Get returns the TCB for pid, or nil.
func (tb *Table) Get(pid Pid_t) *TCB {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.tasks[pid]
}

func (tb *Table) insert(t *TCB) {
	tb.mu.Lock()
	tb.tasks[t.Pid] = t
	tb.mu.Unlock()
}

func (tb *Table) remove(pid Pid_t) {
	tb.mu.Lock()
	delete(tb.tasks, pid)
	tb.mu.Unlock()
}

// SpawnInit creates pid 1 directly from an ELF image — the only task
// created other than by Fork, per spec.md §5.
func (tb *Table) SpawnInit(alloc *frame.Allocator, cache *mmcache.Cache, image []byte) (*TCB, kerr.Err_t) {
	ms, entry, err := vm.FromELF(alloc, cache, image)
	if err != 0 {
		return nil, err
	}
	return tb.newTask(InitPid, 0, ms, entry, alloc)
}

func (tb *Table) newTask(pid, ppid Pid_t, ms *vm.MapSet, entry uint64, alloc *frame.Allocator) (*TCB, kerr.Err_t) {
	slot, sp, err := kstack.Allocate(ms.PT, alloc)
	if err != 0 {
		return nil, err
	}
	ustackTop := stackTop(ms)
	tf := &trapframe.Frame{Sepc: entry, Satp: ms.PT.SatpToken()}
	tf.X[trapframe.SP] = ustackTop

	t := &TCB{
		Pid: pid, Ppid: ppid, state: Runnable,
		MapSet: ms, TF: tf, KStackSlot: slot, KSP: sp,
		Fds: fdtable.New(), Cwd: kpath.NewRootCwd(),
		tickets: DefaultTickets,
		waitCh:  make(chan struct{}),
	}
	tb.mu.Lock()
	if pid >= tb.nextPid {
		tb.nextPid = pid + 1
	}
	tb.mu.Unlock()
	tb.insert(t)
	if parent := tb.Get(ppid); parent != nil {
		parent.mu.Lock()
		parent.Children = append(parent.Children, pid)
		parent.mu.Unlock()
	}
	return t, 0
}

// stackTop picks the user stack's initial SP: just below the highest
// mapped, non-Identical area's end, matching an exec-time stack placed
// right above the loaded image.
func stackTop(ms *vm.MapSet) uint64 {
	var top uint64
	for _, a := range ms.Areas {
		if end := a.End.Addr(); end > top {
			top = end
		}
	}
	return top + kconfig.PageSize
}

// Fork duplicates parent into a new runnable task, per spec.md §5/§8
// scenario 5: the child gets a fresh pid, a cloned MapSet (no CoW — see
// vm.MapSet.Clone), and a copy of the parent's trap frame so it resumes
// at the same PC with the syscall's return slot about to be
// overwritten with 0 by the caller.
func (tb *Table) Fork(alloc *frame.Allocator, parent *TCB) (*TCB, kerr.Err_t) {
	childMS, err := parent.MapSet.Clone()
	if err != 0 {
		return nil, err
	}
	pid := tb.allocPid()
	slot, sp, err := kstack.Allocate(childMS.PT, alloc)
	if err != 0 {
		return nil, err
	}
	childFds, err := parent.Fds.Clone()
	if err != 0 {
		return nil, err
	}
	childTF := *parent.TF
	child := &TCB{
		Pid: pid, Ppid: parent.Pid, state: Runnable,
		MapSet: childMS, TF: &childTF, KStackSlot: slot, KSP: sp,
		Fds: childFds, Cwd: &kpath.Cwd{Path: parent.Cwd.Path},
		tickets: DefaultTickets,
		waitCh:  make(chan struct{}),
	}
	tb.insert(child)
	parent.mu.Lock()
	parent.Children = append(parent.Children, pid)
	parent.mu.Unlock()
	return child, 0
}

// Exec replaces t's address space and register state with a freshly
// loaded ELF image, per spec.md §5/§6.3's execve. t's pid, ppid, and
// children are unaffected.
func (t *TCB) Exec(alloc *frame.Allocator, cache *mmcache.Cache, image []byte) kerr.Err_t {
	newMS, entry, err := vm.FromELF(alloc, cache, image)
	if err != 0 {
		return err
	}
	t.mu.Lock()
	oldMS := t.MapSet
	t.MapSet = newMS
	t.mu.Unlock()
	oldMS.Drop()

	slot, sp, err := kstack.Allocate(newMS.PT, alloc)
	if err != 0 {
		return err
	}
	t.KStackSlot = slot
	t.KSP = sp
	t.TF = &trapframe.Frame{Sepc: entry, Satp: newMS.PT.SatpToken()}
	t.TF.X[trapframe.SP] = stackTop(newMS)
	return 0
}

// Exit marks t a zombie, records its exit code, wakes any waiter, and
// reparents its children to init, per spec.md §5's orphan handling.
// Exiting pid 1 is a kernel programming error.
func (tb *Table) Exit(t *TCB, code int) {
	if t.Pid == InitPid {
		panic("task: init exited")
	}
	t.MapSet.Drop()
	t.Fds.CloseAll()

	t.mu.Lock()
	t.state = Zombie
	t.exitCode = code
	children := t.Children
	t.Children = nil
	t.mu.Unlock()
	close(t.waitCh)

	if initTask := tb.Get(InitPid); initTask != nil {
		initTask.mu.Lock()
		initTask.Children = append(initTask.Children, children...)
		initTask.mu.Unlock()
	}
	for _, c := range children {
		if ct := tb.Get(c); ct != nil {
			ct.mu.Lock()
			ct.Ppid = InitPid
			ct.mu.Unlock()
		}
	}
}

// Wait blocks parent until child pid exits, returning its exit code.
// pid -1 selects any child, matching spec.md §6.3's wait4 semantics.
func (tb *Table) Wait(parent *TCB, pid Pid_t) (Pid_t, int, kerr.Err_t) {
	parent.mu.Lock()
	candidates := append([]Pid_t(nil), parent.Children...)
	parent.mu.Unlock()

	if pid != -1 {
		found := false
		for _, c := range candidates {
			if c == pid {
				found = true
				break
			}
		}
		if !found {
			return 0, 0, kerr.ECHILD
		}
		candidates = []Pid_t{pid}
	}
	if len(candidates) == 0 {
		return 0, 0, kerr.ECHILD
	}

	// Poll-free wait: block on whichever child's channel closes first
	// isn't expressible generically over an arbitrary channel set
	// without reflect.Select, so a zombie-scan loop is used instead —
	// acceptable since task switches are cooperative, not interrupt
	// driven, and Wait always yields while a child is still alive.
	for {
		for _, c := range candidates {
			ct := tb.Get(c)
			if ct == nil {
				continue
			}
			if ct.State() == Zombie {
				ct.mu.Lock()
				code := ct.exitCode
				ct.mu.Unlock()
				tb.removeFromParent(parent, c)
				tb.remove(c)
				return c, code, 0
			}
		}
		<-firstReady(tb, candidates)
	}
}

func (tb *Table) removeFromParent(parent *TCB, pid Pid_t) {
	parent.mu.Lock()
	defer parent.mu.Unlock()
	for i, c := range parent.Children {
		if c == pid {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			return
		}
	}
}

// firstReady returns a channel that becomes readable once any
// candidate task's waitCh closes.
func firstReady(tb *Table, candidates []Pid_t) <-chan struct{} {
	out := make(chan struct{})
	var once sync.Once
	fire := func() { once.Do(func() { close(out) }) }
	live := false
	for _, c := range candidates {
		if ct := tb.Get(c); ct != nil {
			live = true
			go func(ch <-chan struct{}) { <-ch; fire() }(ct.waitCh)
		}
	}
	if !live {
		fire()
	}
	return out
}

// Stat is a read-only snapshot of one task's scheduling and
// accounting state, exposed for internal/kdiag's profiling device.
type Stat struct {
	Pid     Pid_t
	Ppid    Pid_t
	State   State
	Tickets int
	Pass    uint64
	Acct    accnt.Accnt
}

// Snapshot returns a Stat for every live task, for diagnostics.
func (tb *Table) Snapshot() []Stat {
	tb.mu.Lock()
	tasks := make([]*TCB, 0, len(tb.tasks))
	for _, t := range tb.tasks {
		tasks = append(tasks, t)
	}
	tb.mu.Unlock()

	out := make([]Stat, len(tasks))
	for i, t := range tasks {
		t.mu.Lock()
		out[i] = Stat{
			Pid: t.Pid, Ppid: t.Ppid, State: t.state,
			Tickets: t.tickets, Pass: t.pass,
			Acct: t.Acct.Snapshot(),
		}
		t.mu.Unlock()
	}
	return out
}

// String implements fmt.Stringer for diagnostic dumps, grounded on the
// teacher's Tnote_t fields surfaced in panic/kill diagnostics.
func (t *TCB) String() string {
	return fmt.Sprintf("pid=%d ppid=%d state=%s killed=%v", t.Pid, t.Ppid, t.State(), t.Killed())
}
