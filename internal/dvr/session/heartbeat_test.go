package session

import (
	"testing"
	"time"
)

// TestTickMarksDeadAfterMissBudget exercises the liveness timer without
// waiting out the real 45s budget: it backdates lastHeartbeat directly and
// calls tick() once, the same unit the 1s ticker drives in heartbeatLoop.
func TestTickMarksDeadAfterMissBudget(t *testing.T) {
	s := New(Config{Host: "127.0.0.1", CmdPort: 1, MediaPort: 2})
	s.setLastHeartbeat(time.Now().Add(-(heartbeatMissBudget + time.Second)))

	if dead := s.tick(); !dead {
		t.Fatalf("expected tick to report dead after missing the heartbeat budget")
	}
	if s.State() != StateDead {
		t.Fatalf("state = %v, want dead", s.State())
	}
}

func TestTickStaysAliveWithinBudget(t *testing.T) {
	s := New(Config{Host: "127.0.0.1", CmdPort: 1, MediaPort: 2})
	s.setLastHeartbeat(time.Now())

	if dead := s.tick(); dead {
		t.Fatalf("expected tick to report alive within the heartbeat budget")
	}
	if s.State() == StateDead {
		t.Fatalf("state should not be dead yet")
	}
}
