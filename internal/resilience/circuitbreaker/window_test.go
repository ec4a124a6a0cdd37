package circuitbreaker

import "testing"

func TestWindow_EvictsOldest(t *testing.T) {
	w := newWindow(3)

	w.record(outcome{failed: true})
	w.record(outcome{failed: true, slow: true})
	w.record(outcome{})

	calls, failureRate, slowRate := w.rates()
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if failureRate < 0.66 || failureRate > 0.67 {
		t.Fatalf("expected failure rate 2/3, got %f", failureRate)
	}
	if slowRate < 0.33 || slowRate > 0.34 {
		t.Fatalf("expected slow rate 1/3, got %f", slowRate)
	}

	// evicts the first failure
	w.record(outcome{})
	calls, failureRate, _ = w.rates()
	if calls != 3 {
		t.Fatalf("window must stay at capacity, got %d", calls)
	}
	if failureRate < 0.33 || failureRate > 0.34 {
		t.Fatalf("expected failure rate 1/3 after eviction, got %f", failureRate)
	}

	w.reset()
	if calls, _, _ := w.rates(); calls != 0 {
		t.Fatalf("expected empty window after reset, got %d", calls)
	}
}
