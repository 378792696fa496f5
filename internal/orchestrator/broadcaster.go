package orchestrator

import (
	"sync"
)

// subscriberBuffer is the per-subscriber channel capacity. When a slow
// subscriber falls this far behind, its oldest pending event is dropped
// to make room for the newest.
const subscriberBuffer = 100

// Broadcaster fans events out to any number of subscribers. Publishing
// never blocks: each subscriber has its own bounded queue, so a slow
// subscriber loses its oldest events rather than stalling the producer
// or other subscribers.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscription is a handle to one subscriber's event stream.
type Subscription struct {
	ch     chan Event
	cancel func()
	once   sync.Once
}

// Events returns the stream channel. It is closed when the subscription
// is closed or the broadcaster shuts down.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unregisters the subscriber and closes its channel. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Subscribe registers a new subscriber. Subscribers start from the next
// published event; there is no replay.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return &Subscription{ch: ch, cancel: func() {}}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return &Subscription{
		ch: ch,
		cancel: func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		},
	}
}

// Publish delivers the event to every subscriber without blocking.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Full buffer: drop the oldest pending event, then deliver
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Close shuts the broadcaster down. Every subscriber channel is closed
// so streams observe end-of-stream; later publishes are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// SubscriberCount reports the number of live subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
