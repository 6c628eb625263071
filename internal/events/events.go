// Package events fans queue lifecycle notifications out to subscribers.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/neptunelabs/fsi-client/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventItemStarted    EventType = "item_started"
	EventItemFinished   EventType = "item_finished"
	EventEntryProcessed EventType = "entry_processed"
	EventRunFinished    EventType = "run_finished"
)

// Outcome of an item or a batch entry.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
	OutcomeAborted Outcome = "aborted"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
	RunID     string
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// NewBase stamps an event of type t for run.
func NewBase(t EventType, runID string) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now(), RunID: runID}
}

// RunEvent marks the start or end of a queue run.
type RunEvent struct {
	BaseEvent
	Items    int
	Errors   int
	Duration time.Duration
	Outcome  Outcome
}

// ItemEvent marks the start or end of one queue item.
type ItemEvent struct {
	BaseEvent
	Index   int // 1-based
	Count   int
	Task    string // rendered task text
	Outcome Outcome
	Err     error
}

// EntryEvent reports one entry handled by a batch operation.
type EntryEvent struct {
	BaseEvent
	Op      string
	Path    string
	Outcome Outcome
	Bytes   int64
	Err     error
}

// Bus manages event subscriptions and publishing
type Bus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64
}

// NewBus creates a bus whose subscriber channels hold bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (b *Bus) Subscribe(eventType EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (b *Bus) SubscribeAll() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return ch
	}
	b.all = append(b.all, ch)
	return ch
}

// Publish hands event to every matching subscriber. A full subscriber channel
// drops the event rather than stall the queue. Publishing on a nil or closed
// bus is a no-op.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subscribers[event.Type()] {
		b.send(ch, event)
	}
	for _, ch := range b.all {
		b.send(ch, event)
	}
}

func (b *Bus) send(ch chan Event, event Event) {
	select {
	case ch <- event:
	default:
		if n := b.droppedEvents.Add(1); n%100 == 1 {
			log.Debug().Int64("dropped", n).Str("type", string(event.Type())).Msg("event subscriber too slow")
		}
	}
}

// Unsubscribe removes ch from every subscription and closes it.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for t, subs := range b.subscribers {
		for i, sub := range subs {
			if sub == ch {
				b.subscribers[t] = append(subs[:i], subs[i+1:]...)
				close(sub)
				return
			}
		}
	}
	for i, sub := range b.all {
		if sub == ch {
			b.all = append(b.all[:i], b.all[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close shuts down the bus and closes all channels
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	for _, ch := range b.all {
		close(ch)
	}
}

// Dropped returns the number of events lost to full subscriber buffers.
func (b *Bus) Dropped() int64 {
	return b.droppedEvents.Load()
}
