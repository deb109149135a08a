// Package events carries record store change notifications to observers
// inside the process.
package events

import (
	"sync"
	"time"

	"pricememory/internal/core"
)

type Type string

const (
	PurchaseCreated Type = "purchase.created"
	PurchaseDeleted Type = "purchase.deleted"
)

// Event describes one committed mutation of the store.
type Event struct {
	Type       Type
	PurchaseID string
	// Purchase is set for PurchaseCreated.
	Purchase *core.Purchase
	At       time.Time
}

// Handler observes events synchronously, inside Publish.
type Handler func(Event)

// Subscription is a buffered stream of events. Receivers must call
// Close when done.
type Subscription struct {
	C <-chan Event

	ch     chan Event
	broker *Broker
	once   sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() { s.broker.unsubscribe(s) })
}

// Broker fans events out to handlers and subscriptions. Publish never
// blocks: a subscription whose buffer is full already has pending
// events and skips the new one.
type Broker struct {
	mu       sync.RWMutex
	handlers []Handler
	subs     map[*Subscription]struct{}
	closed   bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[*Subscription]struct{})}
}

// Observe registers h to run on every published event.
func (b *Broker) Observe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Broker) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	s := &Subscription{C: ch, ch: ch, broker: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

func (b *Broker) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

func (b *Broker) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, h := range b.handlers {
		h(evt)
	}
	for s := range b.subs {
		select {
		case s.ch <- evt:
		default:
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription. Later publishes are dropped.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}
