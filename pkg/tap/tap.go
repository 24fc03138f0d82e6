package tap

import "sync"

// Hub fans values out to subscribers. A slow subscriber drops its oldest
// buffered value rather than blocking the publisher, so event-path callers
// can publish without caring who is listening.
type Hub[T any] struct {
	buffer int

	mu   sync.Mutex
	subs map[chan T]struct{}
}

func NewHub[T any](buffer int) *Hub[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub[T]{
		buffer: buffer,
		subs:   make(map[chan T]struct{}),
	}
}

// Subscribe registers a listener. The returned cancel func closes the
// channel and may be called more than once.
func (h *Hub[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers v to every subscriber without blocking.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		// Full buffer: evict the oldest value and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Subscribers reports the live listener count.
func (h *Hub[T]) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
