package events

import (
	"testing"
	"time"
)

func TestBrokerDeliversToHandlersBeforeReturning(t *testing.T) {
	b := NewBroker()
	var got []Event
	b.Observe(func(e Event) { got = append(got, e) })

	b.Publish(Event{Type: PurchaseCreated, PurchaseID: "a"})

	if len(got) != 1 || got[0].PurchaseID != "a" {
		t.Fatalf("handler not called synchronously: %v", got)
	}
	if got[0].At.IsZero() {
		t.Fatalf("expected timestamp to be filled")
	}
}

func TestBrokerSubscription(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe(4)
	defer sub.Close()

	b.Publish(Event{Type: PurchaseDeleted, PurchaseID: "x"})

	select {
	case e := <-sub.C:
		if e.Type != PurchaseDeleted || e.PurchaseID != "x" {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestBrokerFullSubscriptionDoesNotBlock(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe(1)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: PurchaseCreated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Publish blocked on a full subscriber")
	}
	if len(sub.C) != 1 {
		t.Fatalf("expected one buffered event, got %d", len(sub.C))
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe(1)
	if b.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber")
	}
	sub.Close()
	sub.Close()
	if b.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers after close")
	}
	if _, ok := <-sub.C; ok {
		t.Fatalf("expected closed channel")
	}
	b.Publish(Event{Type: PurchaseCreated})
}

func TestBrokerClose(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe(1)
	b.Close()
	if _, ok := <-sub.C; ok {
		t.Fatalf("expected closed channel after broker close")
	}
	sub.Close()

	late := b.Subscribe(1)
	if _, ok := <-late.C; ok {
		t.Fatalf("expected closed channel for subscription after close")
	}
	late.Close()
}
