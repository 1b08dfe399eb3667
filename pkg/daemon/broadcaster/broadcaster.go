// Package broadcaster manages subscribers and distributes acquisition and
// instrument events.
package broadcaster

import (
	"sync"

	"github.com/google/uuid"
)

// EventType represents the type of event.
type EventType int

const (
	EventScan EventType = iota
	EventState
	EventFinished
)

func (t EventType) String() string {
	switch t {
	case EventScan:
		return "scan"
	case EventState:
		return "state"
	case EventFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event is one notification. Scan events fill the scan fields, state
// events fill From and To, and finished events fill Path, NumSpectra,
// Reason and Error.
type Event struct {
	Type      EventType
	SessionID string

	Index             int
	RetentionTime     float64
	TIC               float64
	BasePeakMass      float64
	BasePeakIntensity float64

	From string
	To   string

	Path       string
	NumSpectra int
	Reason     string
	Error      string
}

// Subscriber represents a client subscribed to events.
type Subscriber struct {
	ID string
	// SessionID restricts scan and finished events to one session. State
	// events are always delivered.
	SessionID string
	Events    chan *Event
}

// Broadcaster manages subscribers and distributes events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool
	dropped     uint64
}

// New creates a new Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe creates a new subscription. An empty sessionID receives every
// event.
func (b *Broadcaster) Subscribe(sessionID string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscriber{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Events:    make(chan *Event, 100),
	}

	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// Notify sends an event to all matching subscribers. Slow subscribers lose
// events rather than block the sender.
func (b *Broadcaster) Notify(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		if !matches(sub, &ev) {
			continue
		}
		e := ev
		select {
		case sub.Events <- &e:
		default:
			b.dropped++
		}
	}
}

func matches(sub *Subscriber, ev *Event) bool {
	if ev.Type == EventState || sub.SessionID == "" {
		return true
	}
	return sub.SessionID == ev.SessionID
}

// Close closes the broadcaster and all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns the number of events lost to full subscriber channels.
func (b *Broadcaster) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
