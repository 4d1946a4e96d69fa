/*
Package metrics provides Prometheus metrics collection and exposition for the
orchestration engine.

All metrics are registered on the default Prometheus registry at package init
and exposed through the promhttp handler. Two feeds keep them current:

  - Notifier returns an event-log notifier that increments the counters
    (dispatches, failures, lease expirations, deadletters, SLA violations,
    protocol messages, murmur reviews) as events flow through the log. Attach
    it with events.Logger.AddNotifier; the emitting packages never import
    metrics.
  - Collector samples the task store on a ticker and sets the gauges (task
    counts per status bucket, tasks inside a workflow, live leases). Collect
    is exported for one-shot refreshes from CLI commands.

# Metrics Catalog

Task state (gauges, set by the Collector):

	aof_tasks_total{status}        tasks per status bucket
	aof_tasks_in_workflow_total    tasks currently inside a gated workflow
	aof_leases_active              in-progress tasks holding a live lease

Scheduler (counters and histograms, driven by events and Poll):

	aof_poll_duration_seconds      scheduler poll duration
	aof_dispatches_total           tasks dispatched to agents
	aof_dispatch_failures_total    failed spawn attempts
	aof_lease_expirations_total    leases reclaimed after expiry
	aof_deadletters_total          tasks moved to deadletter
	aof_sla_violations_total       SLA violations detected

Protocol and murmur:

	aof_protocol_messages_total{type}  messages received by type
	aof_protocol_rejections_total      messages rejected before handling
	aof_murmur_reviews_total           murmur review cycles triggered

# HTTP Endpoints

Server binds /metrics (Prometheus text exposition), /health (component
health), /ready (critical components registered and healthy), and /live
(process liveness). Components report in through RegisterComponent and
UpdateComponent; the store and event log are the critical set for readiness.

# Usage

	logger := events.NewLogger(root)
	logger.AddNotifier(metrics.Notifier())

	collector := metrics.NewCollector(st)
	srv := metrics.NewServer(":9464", collector)
	if err := srv.Start(ctx); err != nil {
		return err
	}
*/
package metrics
