package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer times one poll cycle (or any other measured section) for histogram
// observation. The zero value is unusable; start with NewTimer.
type Timer struct {
	start time.Time
}

// NewTimer starts timing now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time without recording it.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed seconds into the observer and
// returns the duration so callers can also log or print it.
func (t *Timer) ObserveDuration(h prometheus.Observer) time.Duration {
	d := t.Duration()
	h.Observe(d.Seconds())
	return d
}
