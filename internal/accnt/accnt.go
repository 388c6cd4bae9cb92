// Package accnt accumulates per-task CPU accounting, grounded on the
// teacher's accnt.Accnt_t: nanosecond counters updated with atomic
// adds rather than the TCB's own lock, since accounting updates
// happen on the hot scheduling path and must not contend with it.
package accnt

import (
	"sync/atomic"
)

// Accnt holds one task's accumulated CPU time.
type Accnt struct {
	Userns int64
	Sysns  int64
	Runs   int64 // number of times the scheduler has dispatched this task
}

// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt) Systadd(delta int64) {
	atomic.AddInt64(&a.Sysns, delta)
}

// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt) Utadd(delta int64) {
	atomic.AddInt64(&a.Userns, delta)
}

// Ran records one scheduler dispatch charging quantumNs of system
// time, per spec.md §8's scheduler-fairness property.
func (a *Accnt) Ran(quantumNs int64) {
	atomic.AddInt64(&a.Runs, 1)
	a.Systadd(quantumNs)
}

// Snapshot returns a consistent copy of the counters.
func (a *Accnt) Snapshot() Accnt {
	return Accnt{
		Userns: atomic.LoadInt64(&a.Userns),
		Sysns:  atomic.LoadInt64(&a.Sysns),
		Runs:   atomic.LoadInt64(&a.Runs),
	}
}
