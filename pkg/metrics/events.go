package metrics

import (
	"github.com/cuemby/aof/pkg/events"
	"github.com/cuemby/aof/pkg/types"
)

// Notifier returns an event notifier that increments counters as engine
// events flow through the event log. Attach it with Logger.AddNotifier to
// instrument a process without coupling the emitting packages to metrics.
func Notifier() events.NotifierFunc {
	return func(ev types.Event) {
		switch ev.Type {
		case types.EventDispatchMatched:
			DispatchesTotal.Inc()
		case types.EventDispatchFailed:
			DispatchFailuresTotal.Inc()
		case types.EventLeaseExpired:
			LeaseExpirationsTotal.Inc()
		case types.EventTaskDeadletter:
			DeadlettersTotal.Inc()
		case types.EventSLAViolation:
			SLAViolationsTotal.Inc()
		case types.EventMurmurTriggered:
			MurmurReviewsTotal.Inc()
		case types.EventProtocolReceived:
			if t, ok := ev.Payload["type"].(string); ok {
				ProtocolMessagesTotal.WithLabelValues(t).Inc()
			}
		case types.EventProtocolRejected:
			ProtocolRejectionsTotal.Inc()
		}
	}
}
