package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRun(t *testing.T) {
	before := testutil.ToFloat64(ReconcileRuns.WithLabelValues("noop"))
	RecordRun("noop", 20*time.Millisecond)
	if got := testutil.ToFloat64(ReconcileRuns.WithLabelValues("noop")); got != before+1 {
		t.Fatalf("noop runs = %v, want %v", got, before+1)
	}
}

func TestRecordRejectionsSkipsZero(t *testing.T) {
	before := testutil.ToFloat64(RecordsRejected.WithLabelValues("range_violation"))
	RecordRejections(map[string]int{"range_violation": 3, "duplicate_title": 0})
	if got := testutil.ToFloat64(RecordsRejected.WithLabelValues("range_violation")); got != before+3 {
		t.Fatalf("range rejections = %v, want %v", got, before+3)
	}
}

func TestRecordSnapshot(t *testing.T) {
	RecordSnapshot(42, map[string]int{"lead": 7})
	if got := testutil.ToFloat64(CanonicalRecords); got != 42 {
		t.Fatalf("canonical records = %v", got)
	}
	if got := testutil.ToFloat64(DictionaryEntries.WithLabelValues("lead")); got != 7 {
		t.Fatalf("lead entries = %v", got)
	}
}
