package scheduler

import (
	"sync"
	"time"
)

// throttle tracks last-dispatch timestamps. Process-local and non-durable:
// after a restart the scheduler behaves as if no dispatch ever occurred.
type throttle struct {
	mu       sync.Mutex
	last     time.Time
	lastTeam map[string]time.Time
}

func newThrottle() *throttle {
	return &throttle{lastTeam: make(map[string]time.Time)}
}

// globalAllowed reports whether the global minimum dispatch interval has
// passed. Read-only; record marks the dispatch.
func (t *throttle) globalAllowed(now time.Time, minInterval time.Duration) bool {
	if minInterval <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last.IsZero() || now.Sub(t.last) >= minInterval
}

func (t *throttle) teamAllowed(team string, now time.Time, minInterval time.Duration) bool {
	if minInterval <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.lastTeam[team]
	return !ok || now.Sub(last) >= minInterval
}

// record notes a successful dispatch. Never called in dry-run, so planning
// does not advance the interval clocks.
func (t *throttle) record(team string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = now
	if team != "" {
		t.lastTeam[team] = now
	}
}
