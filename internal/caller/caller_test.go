package caller

import "testing"

func TestDistinctCallerReportsOnce(t *testing.T) {
	dc := &DistinctCaller{Enabled: true}
	ok1, trace1 := dc.Distinct()
	if !ok1 || trace1 == "" {
		t.Fatalf("first call: ok=%v trace=%q, want reported", ok1, trace1)
	}
	ok2, _ := dc.Distinct()
	if ok2 {
		t.Fatal("second call from the same site should not be reported again")
	}
	if dc.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", dc.Len())
	}
}

func TestDistinctCallerDisabledNeverReports(t *testing.T) {
	dc := &DistinctCaller{}
	ok, _ := dc.Distinct()
	if ok {
		t.Fatal("disabled DistinctCaller should never report")
	}
}

func TestDumpProducesNonEmptyTrace(t *testing.T) {
	if Dump(0) == "" {
		t.Fatal("expected a non-empty stack dump")
	}
}
