package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestManagerCountsRuns(t *testing.T) {
	m := New()
	m.RunStarted()
	m.RunStarted()
	m.RunCompleted()
	m.RunFailed()
	m.RunRejected()

	if got := testutil.ToFloat64(m.runsStarted); got != 2 {
		t.Fatalf("runs started = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.runsCompleted); got != 1 {
		t.Fatalf("runs completed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.runsFailed); got != 1 {
		t.Fatalf("runs failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.runsRejected); got != 1 {
		t.Fatalf("runs rejected = %v, want 1", got)
	}
}

func TestManagerObserveStage(t *testing.T) {
	m := New()
	m.ObserveStage("normalize", 0.25, false)
	m.ObserveStage("render-blocks", 1.5, true)

	if got := testutil.ToFloat64(m.stageFailures.WithLabelValues("render-blocks")); got != 1 {
		t.Fatalf("render-blocks failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.stageFailures.WithLabelValues("normalize")); got != 0 {
		t.Fatalf("normalize failures = %v, want 0", got)
	}
}

func TestManagerNilSafe(t *testing.T) {
	var m *Manager
	m.RunStarted()
	m.ObserveStage("normalize", 1, true)
	m.RenderAttempt()
	m.VersionStored()
	if m.Registry() == nil {
		t.Fatal("expected non-nil registry from nil manager")
	}
}
