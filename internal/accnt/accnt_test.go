package accnt

import "testing"

func TestRanAccumulatesRunsAndSysns(t *testing.T) {
	a := &Accnt{}
	a.Ran(1000)
	a.Ran(1000)
	snap := a.Snapshot()
	if snap.Runs != 2 {
		t.Fatalf("Runs = %d, want 2", snap.Runs)
	}
	if snap.Sysns != 2000 {
		t.Fatalf("Sysns = %d, want 2000", snap.Sysns)
	}
}
