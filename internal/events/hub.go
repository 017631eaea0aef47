package events

import (
	"context"
	"sync"

	"github.com/zulandar/concierge/internal/messaging"
)

// subscriberBuffer is the per-subscriber queue depth. A subscriber that falls
// further behind misses events rather than stalling publishers.
const subscriberBuffer = 64

// Hub fans events out to in-process subscribers such as SSE streams.
// It implements messaging.EventPublisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan messaging.Event
	nextID int
	closed bool
}

var _ messaging.EventPublisher = (*Hub)(nil)

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan messaging.Event)}
}

// Publish delivers evt to every subscriber without blocking.
func (h *Hub) Publish(ctx context.Context, evt messaging.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel.
func (h *Hub) Subscribe() (<-chan messaging.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan messaging.Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later subscribers get a closed
// channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

// Fanout publishes to several publishers, returning the first error.
type Fanout []messaging.EventPublisher

// Publish sends evt to every publisher in order.
func (f Fanout) Publish(ctx context.Context, evt messaging.Event) error {
	var first error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil && first == nil {
			first = err
		}
	}
	return first
}
