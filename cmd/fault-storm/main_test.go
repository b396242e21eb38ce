package main

import (
	"testing"
	"time"
)

func TestRoundTripsMatchBySeq(t *testing.T) {
	r := newRoundTrips()
	t0 := time.Unix(1000, 0)
	r.sent(1, t0)
	r.sent(2, t0.Add(10*time.Millisecond))
	r.sent(3, t0.Add(20*time.Millisecond))

	// The reply to 1 was dropped by the server.
	rtt, ok := r.received(2, t0.Add(15*time.Millisecond))
	if !ok || rtt != 5*time.Millisecond {
		t.Errorf("seq 2: got %v ok=%t, want 5ms", rtt, ok)
	}
	rtt, ok = r.received(3, t0.Add(27*time.Millisecond))
	if !ok || rtt != 7*time.Millisecond {
		t.Errorf("seq 3: got %v ok=%t, want 7ms", rtt, ok)
	}

	if _, ok := r.received(3, t0.Add(time.Second)); ok {
		t.Error("A duplicate result must not be counted twice")
	}
	if _, ok := r.received(99, t0); ok {
		t.Error("Unknown seq must be ignored")
	}
	if got := r.outstanding(); got != 1 {
		t.Errorf("Expected the dropped request outstanding, got %d", got)
	}
}
