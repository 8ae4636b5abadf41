// Package eventbus fans published values out to in-process subscribers
// (SSE connections, the liveness monitor, tests). Delivery is
// fire-and-forget: a subscriber whose buffer is full misses values rather
// than blocking the publisher or the other subscribers.
package eventbus

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

type Bus[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]chan T
}

func New[T any]() *Bus[T] {
	return &Bus[T]{
		subscribers: make(map[string]chan T),
	}
}

// Subscribe registers a new subscriber with its own buffer and returns its
// id together with the receive channel.
func (b *Bus[T]) Subscribe(bufSize int) (string, <-chan T) {
	id := ulid.Make().String()
	ch := make(chan T, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus[T]) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Publish delivers v to every current subscriber.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- v:
		default:
			// buffer full, drop for this subscriber
		}
	}
}
