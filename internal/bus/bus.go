// Package bus distributes domain events (presence recorded, late arrivals,
// security alerts, system updates) to subscribed observers. The event log is
// bounded, newest first; observers always receive a full consistent snapshot.
package bus

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a domain event.
type Kind string

// Event kinds surfaced by the core.
const (
	KindPresenceRecorded Kind = "presence-recorded"
	KindLateArrival      Kind = "late-arrival"
	KindSecurityAlert    Kind = "security-alert"
	KindSystemUpdate     Kind = "system-update"
)

// Severity ranks how urgently an event should be surfaced.
type Severity string

// Severity levels, lowest to highest.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is a single notification. Events are immutable after creation except
// for the Acknowledged flag.
type Event struct {
	ID           string         `json:"id"`
	Kind         Kind           `json:"kind"`
	Severity     Severity       `json:"severity"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Payload      map[string]any `json:"payload,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Acknowledged bool           `json:"acknowledged"`
}

// Observer receives the full event log snapshot on every change.
type Observer func(events []Event)

// DefaultCapacity bounds the in-memory event log.
const DefaultCapacity = 500

// Bus is the publish/subscribe event log.
type Bus struct {
	mu        sync.Mutex
	events    []Event // newest first
	capacity  int
	observers map[int]Observer
	nextObsID int
}

// New creates a bus holding at most capacity events. Non-positive capacity
// falls back to DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity:  capacity,
		observers: make(map[int]Observer),
	}
}

// Publish appends an event to the log and notifies all observers.
// Returns the created event.
func (b *Bus) Publish(kind Kind, severity Severity, title, message string, payload map[string]any) Event {
	event := Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Severity:  severity,
		Title:     title,
		Message:   message,
		Payload:   payload,
		CreatedAt: time.Now(),
	}

	b.mu.Lock()
	b.events = append([]Event{event}, b.events...)
	if len(b.events) > b.capacity {
		// Drop the oldest acknowledged events first; unseen alerts survive
		// the cap as long as anything acknowledged can go instead.
		b.events = trimOldest(b.events, b.capacity)
	}
	b.mu.Unlock()

	b.notify()
	return event
}

// trimOldest reduces the log to capacity, preferring to drop acknowledged
// events from the tail. Falls back to dropping the oldest outright if
// everything is unacknowledged.
func trimOldest(events []Event, capacity int) []Event {
	for len(events) > capacity {
		dropped := false
		for i := len(events) - 1; i >= 0; i-- {
			if events[i].Acknowledged {
				events = append(events[:i], events[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			events = events[:capacity]
		}
	}
	return events
}

// Subscribe registers an observer and returns its unsubscribe function.
// Unsubscribing more than once is a no-op.
func (b *Bus) Subscribe(obs Observer) func() {
	b.mu.Lock()
	id := b.nextObsID
	b.nextObsID++
	b.observers[id] = obs
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.observers, id)
			b.mu.Unlock()
		})
	}
}

// Snapshot returns a copy of the event log, newest first.
func (b *Bus) Snapshot() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Bus) snapshotLocked() []Event {
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// MarkRead flips the acknowledged flag on one event and republishes the
// snapshot. Returns false if the event does not exist.
func (b *Bus) MarkRead(eventID string) bool {
	b.mu.Lock()
	found := false
	for i := range b.events {
		if b.events[i].ID == eventID {
			b.events[i].Acknowledged = true
			found = true
			break
		}
	}
	b.mu.Unlock()

	if found {
		b.notify()
	}
	return found
}

// MarkAllRead acknowledges every event and republishes the snapshot.
func (b *Bus) MarkAllRead() {
	b.mu.Lock()
	for i := range b.events {
		b.events[i].Acknowledged = true
	}
	b.mu.Unlock()

	b.notify()
}

// UnreadCount returns the number of unacknowledged events.
func (b *Bus) UnreadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for i := range b.events {
		if !b.events[i].Acknowledged {
			n++
		}
	}
	return n
}

// EvictOlderThan removes acknowledged events older than the retention window.
// Unacknowledged events are retained regardless of age: an unseen alert is
// never silently dropped. Returns the number of evicted events.
func (b *Bus) EvictOlderThan(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	b.mu.Lock()
	kept := b.events[:0]
	evicted := 0
	for _, e := range b.events {
		if e.Acknowledged && e.CreatedAt.Before(cutoff) {
			evicted++
			continue
		}
		kept = append(kept, e)
	}
	b.events = kept
	b.mu.Unlock()

	if evicted > 0 {
		b.notify()
	}
	return evicted
}

// notify delivers the current snapshot to every observer. Each invocation is
// isolated: a panicking observer is logged and skipped, never preventing
// delivery to the others. The lock is not held during delivery, so observers
// may call back into the bus.
func (b *Bus) notify() {
	b.mu.Lock()
	snapshot := b.snapshotLocked()
	observers := make([]Observer, 0, len(b.observers))
	for _, obs := range b.observers {
		observers = append(observers, obs)
	}
	b.mu.Unlock()

	for _, obs := range observers {
		b.deliver(obs, snapshot)
	}
}

func (b *Bus) deliver(obs Observer, snapshot []Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bus: observer panicked: %v", r)
		}
	}()
	obs(snapshot)
}
