package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aof_tasks_total",
			Help: "Total number of tasks by status bucket",
		},
		[]string{"status"},
	)

	TasksInWorkflow = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aof_tasks_in_workflow_total",
			Help: "Total number of tasks currently inside a gated workflow",
		},
	)

	LeasesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aof_leases_active",
			Help: "Number of in-progress tasks holding a live lease",
		},
	)

	// Scheduler metrics
	PollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aof_poll_duration_seconds",
			Help:    "Scheduler poll duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DispatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aof_dispatches_total",
			Help: "Total number of tasks dispatched to agents",
		},
	)

	DispatchFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aof_dispatch_failures_total",
			Help: "Total number of failed spawn attempts",
		},
	)

	LeaseExpirationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aof_lease_expirations_total",
			Help: "Total number of leases reclaimed after expiry",
		},
	)

	DeadlettersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aof_deadletters_total",
			Help: "Total number of tasks moved to the deadletter bucket",
		},
	)

	SLAViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aof_sla_violations_total",
			Help: "Total number of SLA violations detected",
		},
	)

	// Protocol metrics
	ProtocolMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aof_protocol_messages_total",
			Help: "Total number of protocol messages received by type",
		},
		[]string{"type"},
	)

	ProtocolRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aof_protocol_rejections_total",
			Help: "Total number of protocol messages rejected",
		},
	)

	// Murmur metrics
	MurmurReviewsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aof_murmur_reviews_total",
			Help: "Total number of murmur review cycles triggered",
		},
	)
)

func init() {
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TasksInWorkflow)
	prometheus.MustRegister(LeasesActive)
	prometheus.MustRegister(PollDuration)
	prometheus.MustRegister(DispatchesTotal)
	prometheus.MustRegister(DispatchFailuresTotal)
	prometheus.MustRegister(LeaseExpirationsTotal)
	prometheus.MustRegister(DeadlettersTotal)
	prometheus.MustRegister(SLAViolationsTotal)
	prometheus.MustRegister(ProtocolMessagesTotal)
	prometheus.MustRegister(ProtocolRejectionsTotal)
	prometheus.MustRegister(MurmurReviewsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
