package push

import (
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 64

// Event types pushed to UI listeners.
const (
	TypeStateChange    = "url-change-state"
	TypeTrackingResult = "set-tracking-result"
)

// Event is a single outbound message to the UI layer.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broker fans out events to all subscribed listeners.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[int64]chan Event)}
}

// Subscribe registers a listener. The channel is buffered; slow consumers
// have events dropped rather than blocking the engine.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to every listener. Non-blocking.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ListenerCount returns the number of active listeners.
func (b *Broker) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
