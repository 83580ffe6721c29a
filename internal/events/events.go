// Package events delivers reconciliation notifications to observers.
//
// Observers either register a callback with Subscribe or take a buffered
// channel with Channel. Publishing never blocks: a channel whose buffer is
// full drops the event and the drop is counted.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies the type of an event
type Kind string

const (
	KindImported   Kind = "imported"
	KindProgress   Kind = "progress"
	KindMatched    Kind = "matched"
	KindError      Kind = "error"
	KindCompleted  Kind = "completed"
	KindReconciled Kind = "reconciled"
)

// Event is a single notification
type Event struct {
	Kind        Kind
	StatementID string
	ItemID      string
	Processed   int
	Total       int
	Message     string
	Payload     interface{}
	Err         error
	Time        time.Time
}

// Observer receives published events
type Observer func(Event)

// Publisher is the sending side used by the engine components
type Publisher interface {
	Publish(Event)
}

// Bus fans events out to callback observers and channel subscribers
type Bus struct {
	mu        sync.RWMutex
	nextID    int
	observers map[int]Observer
	channels  map[int]chan Event
	dropped   atomic.Int64
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{
		observers: make(map[int]Observer),
		channels:  make(map[int]chan Event),
	}
}

// Subscribe registers a callback and returns a function that removes it.
// Callbacks run synchronously on the publishing goroutine.
func (b *Bus) Subscribe(fn Observer) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.observers[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.observers, id)
	}
}

// Channel returns a buffered channel receiving every event and a cancel
// function that unregisters and closes it.
func (b *Bus) Channel(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.channels[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.channels, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to all observers
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, fn := range b.observers {
		fn(e)
	}
	for _, ch := range b.channels {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the number of events discarded because a channel was full
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}

// Discard is a Publisher that ignores all events
var Discard Publisher = nopPublisher{}
