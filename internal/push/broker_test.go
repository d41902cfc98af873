package push

import (
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBroker()
	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()

	b.Publish(Event{Type: TypeStateChange, Data: "x"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Type != TypeStateChange {
				t.Fatalf("subscriber %d got type %q; want %q", i, evt.Type, TypeStateChange)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received event", i)
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	id, ch := b.Subscribe()
	b.Unsubscribe(id)

	if _, open := <-ch; open {
		t.Fatalf("channel still open after Unsubscribe")
	}
	if b.ListenerCount() != 0 {
		t.Fatalf("ListenerCount() = %d; want 0", b.ListenerCount())
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroker()
	_, ch := b.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBufSize*2; i++ {
			b.Publish(Event{Type: TypeStateChange, Data: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish blocked on a slow subscriber")
	}

	if got := len(ch); got != subscriberBufSize {
		t.Fatalf("buffered events = %d; want %d with the rest dropped", got, subscriberBufSize)
	}
}

func TestUnsubscribeTwiceIsSafe(t *testing.T) {
	b := NewBroker()
	id, _ := b.Subscribe()
	b.Unsubscribe(id)
	b.Unsubscribe(id)
}
