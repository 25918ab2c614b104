package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(WithRegistry(reg), WithNamespace("test"))

	m.DragStarted()
	m.DragStarted()
	m.DragEnded("success", time.Second)
	m.Stale("reply")
	m.Sent("motif", "enter")

	if v := testutil.ToFloat64(m.dragsStarted); v != 2 {
		t.Fatal(v)
	}
	if v := testutil.ToFloat64(m.activeDrags); v != 1 {
		t.Fatal(v)
	}
	if v := testutil.ToFloat64(m.dragsFinished.WithLabelValues("success")); v != 1 {
		t.Fatal(v)
	}
	if v := testutil.ToFloat64(m.staleEvents.WithLabelValues("reply")); v != 1 {
		t.Fatal(v)
	}
	if n := testutil.CollectAndCount(m.messagesSent); n != 1 {
		t.Fatal(n)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.DragStarted()
	m.DragEnded("cancel", 0)
	m.GrabFailed("pointer", "frozen")
	m.BrokerRecreated()
	m.DropSiteAdded()
	m.DropSiteRetry()
}
