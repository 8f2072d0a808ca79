package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventRolloutDispatched EventType = "rollout.dispatched"
	EventRolloutFailed     EventType = "rollout.failed"
	EventInstanceSucceeded EventType = "instance.succeeded"
	EventInstanceFailed    EventType = "instance.failed"
	EventInstanceReclaimed EventType = "instance.reclaimed"
	EventInstanceBorrowed  EventType = "instance.borrowed"
	EventArtifactRequeued  EventType = "artifact.requeued"
	EventArtifactApplied   EventType = "artifact.applied"
	EventArtifactTornDown  EventType = "artifact.torn_down"
)

// Event represents something that happened to an artifact
type Event struct {
	ID         string
	Type       EventType
	Timestamp  time.Time
	ArtifactID string
	Message    string
	Metadata   map[string]string
}

// New builds an event for an artifact
func New(typ EventType, artID, message string) *Event {
	return &Event{
		ID:         uuid.New().String(),
		Type:       typ,
		Timestamp:  time.Now(),
		ArtifactID: artID,
		Message:    message,
		Metadata:   map[string]string{},
	}
}

// With adds a metadata entry and returns the event
func (e *Event) With(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	e.Metadata[key] = value
	return e
}

// Publisher is implemented by Broker. Components take a Publisher so tests
// can pass nil or a recorder.
type Publisher interface {
	Publish(event *Event)
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish hands an event to the distribution loop. Events are dropped when
// the buffer is full; the loops that publish must never stall on observers.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	default:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
