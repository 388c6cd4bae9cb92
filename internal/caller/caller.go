// Package caller renders the call stack a kernel panic or task kill
// should report, grounded on the teacher's caller.Callerdump and
// Distinct_caller_t: format a frame list for diagnostics, and
// rate-limit repeated reports of the same call chain so a tight
// fault-and-retry loop doesn't flood the console.
package caller

import (
	"fmt"
	"runtime"
	"sync"
)

// Dump renders the call stack starting start frames up from Dump
// itself (0 is Dump, 1 its caller), one "file:line" per line,
// innermost first.
func Dump(start int) string {
	i := start
	s := ""
	for {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		i++
		if s == "" {
			s = fmt.Sprintf("%s:%d\n", f, l)
		} else {
			s += fmt.Sprintf("\t<-%s:%d\n", f, l)
		}
	}
	return s
}

// DistinctCaller tracks which call chains have already been reported,
// so spec.md §7's "kernel panic" and task-kill diagnostics print a
// given fault site's stack at most once.
type DistinctCaller struct {
	mu      sync.Mutex
	Enabled bool
	seen    map[uintptr]bool
}

func pchash(pcs []uintptr) uintptr {
	var ret uintptr
	for _, pc := range pcs {
		pc = pc*1103515245 + 12345
		ret ^= pc
	}
	return ret
}

// Distinct reports whether the immediate caller's call chain is new:
// the first time a chain is seen it is recorded and a formatted trace
// is returned alongside true; a chain seen before yields false.
func (dc *DistinctCaller) Distinct() (bool, string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if !dc.Enabled {
		return false, ""
	}
	if dc.seen == nil {
		dc.seen = make(map[uintptr]bool)
	}

	pcs := make([]uintptr, 30)
	got := runtime.Callers(3, pcs)
	if got == 0 {
		return false, ""
	}
	pcs = pcs[:got]
	h := pchash(pcs)
	if dc.seen[h] {
		return false, ""
	}
	dc.seen[h] = true

	frames := runtime.CallersFrames(pcs)
	out := ""
	for {
		fr, more := frames.Next()
		if out == "" {
			out = fmt.Sprintf("%s (%s:%d)\n", fr.Function, fr.File, fr.Line)
		} else {
			out += fmt.Sprintf("\t%s (%s:%d)\n", fr.Function, fr.File, fr.Line)
		}
		if !more || fr.Function == "runtime.goexit" {
			break
		}
	}
	return true, out
}

// Len reports how many distinct call chains have been recorded.
func (dc *DistinctCaller) Len() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return len(dc.seen)
}
