package channel

import (
	"testing"
	"time"
)

func TestBroadcasterDropOldestDiscardsOnFullBuffer(t *testing.T) {
	b := NewBroadcasterWithPolicy(1, DropOldest)
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Publish(Event{Kind: EventDataUpdate, SourceChannel: 1})
	b.Publish(Event{Kind: EventDataUpdate, SourceChannel: 2})

	select {
	case evt := <-ch:
		if evt.SourceChannel != 2 {
			t.Fatalf("expected the newer event to survive, got SourceChannel=%d", evt.SourceChannel)
		}
	default:
		t.Fatal("expected one buffered event")
	}
}

func TestBroadcasterBlockWaitsForDrain(t *testing.T) {
	b := NewBroadcasterWithPolicy(1, Block)
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Publish(Event{Kind: EventDataUpdate, SourceChannel: 1})

	done := make(chan struct{})
	go func() {
		b.Publish(Event{Kind: EventDataUpdate, SourceChannel: 2})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Publish should block while the subscriber's buffer is full")
	case <-time.After(20 * time.Millisecond):
	}

	<-ch // drain the first event, unblocking the second Publish

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish did not unblock after the buffer drained")
	}
}

func TestBroadcasterDefaultPolicyIsBlock(t *testing.T) {
	b := NewBroadcaster(1)
	if b.policy != Block {
		t.Fatalf("expected the default overflow policy to be Block, got %v", b.policy)
	}
}

func TestBroadcasterUnsubscribeStopsBlockedPublish(t *testing.T) {
	b := NewBroadcasterWithPolicy(1, Block)
	ch, unsub := b.Subscribe()
	_ = ch

	b.Publish(Event{Kind: EventDataUpdate, SourceChannel: 1})

	done := make(chan struct{})
	go func() {
		b.Publish(Event{Kind: EventDataUpdate, SourceChannel: 2})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	unsub()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish did not unblock after the subscriber unsubscribed")
	}
}

func TestBroadcasterSubscriberCount(t *testing.T) {
	b := NewBroadcaster(4)
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
	_, unsub := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", b.SubscriberCount())
	}
	unsub()
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", b.SubscriberCount())
	}
}
