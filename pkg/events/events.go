package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/aof/pkg/log"
	"github.com/cuemby/aof/pkg/types"
)

// Dir is the event stream directory relative to the data root.
const Dir = "events"

// Logger appends events to daily-rolled JSONL streams under <root>/events/
// and fans them out to registered notifiers. Event ids are monotonic within
// one day's file.
//
// Logging failures are swallowed: an event that cannot be written is
// reported through pkg/log but never fails the mutation that emitted it.
type Logger struct {
	dir string

	mu     sync.Mutex
	day    string
	nextID int64

	notifiers []Notifier
}

// NewLogger creates a logger writing under <root>/events.
func NewLogger(root string) *Logger {
	return &Logger{dir: filepath.Join(root, Dir)}
}

// AddNotifier registers a notifier for fan-out. Not safe to call
// concurrently with Emit.
func (l *Logger) AddNotifier(n Notifier) {
	l.notifiers = append(l.notifiers, n)
}

// Emit appends one event to today's stream and notifies subscribers.
// The returned event carries the assigned id and timestamp.
func (l *Logger) Emit(evType types.EventType, actor, taskID string, payload map[string]any) types.Event {
	now := time.Now().UTC()
	if payload == nil {
		payload = map[string]any{}
	}

	l.mu.Lock()
	day := now.Format("2006-01-02")
	if day != l.day {
		l.day = day
		l.nextID = l.lastID(day) + 1
	}
	ev := types.Event{
		EventID:   l.nextID,
		Type:      evType,
		Timestamp: now,
		Actor:     actor,
		TaskID:    taskID,
		Payload:   payload,
	}
	if err := l.append(day, ev); err != nil {
		logger := log.WithComponent("events")
		logger.Error().Err(err).
			Str("type", string(evType)).Msg("failed to append event")
	} else {
		l.nextID++
	}
	l.mu.Unlock()

	for _, n := range l.notifiers {
		n.Notify(ev)
	}
	return ev
}

// append writes one JSON line to the day's file.
func (l *Logger) append(day string, ev types.Event) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create events directory: %w", err)
	}
	path := filepath.Join(l.dir, day+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// lastID returns the highest event id already present in the day's file,
// or 0 when the file is missing or empty. Malformed lines are skipped.
func (l *Logger) lastID(day string) int64 {
	f, err := os.Open(filepath.Join(l.dir, day+".jsonl"))
	if err != nil {
		return 0
	}
	defer f.Close()

	var last int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev types.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if ev.EventID > last {
			last = ev.EventID
		}
	}
	return last
}

// ReadDay returns every parseable event in one day's stream, in file order.
func (l *Logger) ReadDay(day string) ([]types.Event, error) {
	f, err := os.Open(filepath.Join(l.dir, day+".jsonl"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}
	defer f.Close()

	var out []types.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev types.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, scanner.Err()
}
