package metrics

import (
	"time"

	"github.com/cuemby/aof/pkg/store"
	"github.com/cuemby/aof/pkg/types"
)

// DefaultSampleInterval is how often the collector re-reads the task store.
const DefaultSampleInterval = 15 * time.Second

// Collector samples the task store and keeps the gauge metrics current.
// Counters are driven by the event notifier instead; the collector only
// covers state that must be observed, not counted.
type Collector struct {
	store    *store.Store
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector over the given store.
func NewCollector(st *store.Store, opts ...CollectorOption) *Collector {
	c := &Collector{
		store:    st,
		interval: DefaultSampleInterval,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithSampleInterval overrides the store sampling interval.
func WithSampleInterval(d time.Duration) CollectorOption {
	return func(c *Collector) { c.interval = d }
}

// Start begins sampling in the background. Call Stop to end it.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect samples the store once. Exported so a one-shot process (a single
// poll, a CLI command) can refresh the gauges without running the ticker.
func (c *Collector) Collect() {
	tasks, err := c.store.List()
	if err != nil {
		return
	}

	counts := make(map[types.Status]int)
	inWorkflow := 0
	liveLeases := 0
	now := time.Now().UTC()

	for _, t := range tasks {
		counts[t.Status]++
		if t.InWorkflow() {
			inWorkflow++
		}
		if t.Status == types.StatusInProgress && t.Lease != nil && t.Lease.ExpiresAt.After(now) {
			liveLeases++
		}
	}

	// Set every bucket, including empty ones, so gauges drop back to zero.
	for _, status := range types.AllStatuses() {
		TasksTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
	TasksInWorkflow.Set(float64(inWorkflow))
	LeasesActive.Set(float64(liveLeases))
}
