package task

// DefaultTickets is the ticket count a newly created task starts with;
// spec.md §5 leaves the default ticket count to the implementation —
// equal tickets for every task gives equal CPU shares until a future
// nice/priority syscall (out of scope) would adjust it.
const DefaultTickets = 100

// Quantum is the stride unit charged to a task's pass each time it is
// scheduled, following Waldspurger's stride scheduling: stride =
// Quantum / tickets, so a task with more tickets accrues pass more
// slowly and is picked more often.
const Quantum = 1 << 16

// Scheduler picks the runnable task with the smallest pass among those
// registered with it, per spec.md §5's cooperative stride scheduler: no
// timer interrupt preempts a running task, it only yields at syscalls
// that block (e.g. wait) or at exit.
type Scheduler struct {
	tb *Table
}

func NewScheduler(tb *Table) *Scheduler {
	return &Scheduler{tb: tb}
}

// Register computes t's stride from its ticket count and seeds its
// pass at zero so it is eligible for immediate selection.
func (s *Scheduler) Register(t *TCB) {
	t.mu.Lock()
	if t.tickets <= 0 {
		t.tickets = DefaultTickets
	}
	t.stride = Quantum / uint64(t.tickets)
	t.mu.Unlock()
}

// Pick returns the runnable task with the smallest pass, or nil if
// none are runnable, per spec.md §4.6's selection algorithm. On a tie
// it favors a task other than current, so that repeated yields among
// equal-pass tasks progress the ready set instead of always reselecting
// the same one. The caller must call Advance on the result before
// resuming it.
func (s *Scheduler) Pick(current *TCB) *TCB {
	s.tb.mu.Lock()
	cands := make([]*TCB, 0, len(s.tb.tasks))
	for _, t := range s.tb.tasks {
		cands = append(cands, t)
	}
	s.tb.mu.Unlock()

	var best *TCB
	var bestPass uint64
	for _, t := range cands {
		t.mu.Lock()
		runnable := t.state == Runnable
		pass := t.pass
		stride := t.stride
		t.mu.Unlock()
		if !runnable {
			continue
		}
		if stride == 0 {
			stride = Quantum / DefaultTickets
		}
		switch {
		case best == nil || pass < bestPass:
			best, bestPass = t, pass
		case pass == bestPass && best == current && t != current:
			best, bestPass = t, pass
		}
	}
	return best
}

// Advance charges t's stride to its pass after it has run one quantum,
// and records the dispatch in t.Acct so internal/kdiag's profiling
// device has real per-task counters to report.
func (s *Scheduler) Advance(t *TCB) {
	t.mu.Lock()
	if t.stride == 0 {
		t.stride = Quantum / DefaultTickets
	}
	t.pass += t.stride
	t.mu.Unlock()
	t.Acct.Ran(Quantum)
}

// Yield runs one stride-scheduling decision on behalf of current, which
// is voluntarily giving up the processor via sched_yield(2): current
// goes back to Runnable, the next task is Picked (tie-breaking away
// from current per §4.6), its pass is Advanced, and it is marked
// Running before being returned. Returns nil if no task is runnable at
// all, which cannot happen once current itself has been marked Runnable
// unless current is nil.
func (s *Scheduler) Yield(current *TCB) *TCB {
	if current != nil {
		current.setState(Runnable)
	}
	next := s.Pick(current)
	if next == nil {
		return nil
	}
	s.Advance(next)
	next.setState(Running)
	return next
}
