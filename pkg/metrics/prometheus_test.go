package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordDay("complete")
	r.RecordDay("complete")
	r.RecordDay("failed")
	r.RecordIndex("VIX", "written")
	r.RecordIndexValue("SPX", "VIX", 21.5)

	if got := testutil.ToFloat64(r.days.WithLabelValues("complete")); got != 2 {
		t.Fatalf("expected 2 complete days, got %v", got)
	}
	if got := testutil.ToFloat64(r.indexValue.WithLabelValues("SPX", "VIX")); got != 21.5 {
		t.Fatalf("unexpected gauge %v", got)
	}
	if n, err := testutil.GatherAndCount(reg, "volpull_ingest_days_total"); err != nil || n != 2 {
		t.Fatalf("expected 2 series, got %d (%v)", n, err)
	}
}
