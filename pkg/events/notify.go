package events

import (
	"sync"

	"github.com/cuemby/aof/pkg/log"
	"github.com/cuemby/aof/pkg/types"
)

// Notifier receives every emitted event. Implementations must not block:
// the logger calls Notify inline on the emitting goroutine.
type Notifier interface {
	Notify(types.Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(types.Event)

// Notify calls f.
func (f NotifierFunc) Notify(ev types.Event) { f(ev) }

// Subscriber is a channel that receives events from a Broker.
type Subscriber chan types.Event

// Broker fans events out to channel subscribers with per-subscriber
// buffering. Slow subscribers drop events rather than stalling emitters.
// It implements Notifier so it can hang directly off the event logger.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
}

// NewBroker creates an event broker.
func NewBroker() *Broker {
	return &Broker{subscribers: make(map[Subscriber]bool)}
}

// Subscribe creates a new subscription and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Notify broadcasts an event to all subscribers, skipping full buffers.
func (b *Broker) Notify(ev types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- ev:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// degradedEvents name the states that warrant an operator-visible line in
// addition to the event record.
var degradedEvents = map[types.EventType]string{
	types.EventTaskDeadletter: "inspect the task under tasks/deadletter/ and requeue or cancel it",
	types.EventSLAViolation:   "check the assigned agent's session or raise the task's SLA limit",
	types.EventMurmurCleaned:  "the team review was abandoned; the next trigger will open a fresh one",
	types.EventSessionForced:  "the agent session went stale and was force-completed",
}

// ConsoleNotifier writes human-readable operator lines for degraded-state
// events through pkg/log.
type ConsoleNotifier struct{}

// Notify logs degraded-state events with the recommended next action.
func (ConsoleNotifier) Notify(ev types.Event) {
	action, ok := degradedEvents[ev.Type]
	if !ok {
		return
	}
	logger := log.WithComponent("notify")
	logger.Warn().
		Str("event", string(ev.Type)).
		Str("task_id", ev.TaskID).
		Str("next_action", action).
		Fields(map[string]any{"payload": ev.Payload}).
		Msg("degraded state")
}
