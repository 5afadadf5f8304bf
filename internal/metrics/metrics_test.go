package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Opened()
	m.Finalized()
	m.Discarded()
	m.Confirmed("applied")
	m.StoreError("upsert")
	m.Pending(3)
	m.Skipped("no_window")
	m.SetTracking(true)
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Opened()
	m.Opened()
	m.Discarded()
	m.StoreError("delete")
	m.SetTracking(true)

	if got := testutil.ToFloat64(m.SessionsOpened); got != 2 {
		t.Errorf("opened = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SessionsDiscarded); got != 1 {
		t.Errorf("discarded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StoreErrors.WithLabelValues("delete")); got != 1 {
		t.Errorf("store errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Tracking); got != 1 {
		t.Errorf("tracking = %v, want 1", got)
	}
}
