package bus

import (
	"context"
	"sync"
)

type Handler func(Event)

// MessageBus fans capture events out to subscribers. Handlers run one
// after another on the Dispatch goroutine, so a subscriber sees events in
// the order they were published.
type MessageBus struct {
	Events chan Event

	mu       sync.RWMutex
	handlers []namedHandler
}

type namedHandler struct {
	name string
	fn   Handler
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{Events: make(chan Event, bufSize)}
}

func (b *MessageBus) Subscribe(name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, namedHandler{name: name, fn: fn})
}

// Publish queues ev, waiting for buffer space unless ctx is done.
func (b *MessageBus) Publish(ctx context.Context, ev Event) bool {
	select {
	case b.Events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Dispatch delivers queued events until ctx is done, then flushes what
// is still buffered.
func (b *MessageBus) Dispatch(ctx context.Context) {
	for {
		select {
		case ev := <-b.Events:
			b.deliver(ev)
		case <-ctx.Done():
			b.drain()
			return
		}
	}
}

func (b *MessageBus) drain() {
	for {
		select {
		case ev := <-b.Events:
			b.deliver(ev)
		default:
			return
		}
	}
}

func (b *MessageBus) deliver(ev Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()
	for _, h := range handlers {
		h.fn(ev)
	}
}
