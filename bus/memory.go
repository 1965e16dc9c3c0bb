package bus

import (
	"context"
	"sync"
)

// MemoryBus dispatches events synchronously to registered handlers.
// Publish returns the first handler error, which makes pipeline tests
// deterministic without a broker.
type MemoryBus struct {
	mu        sync.Mutex
	handlers  map[string][]Handler
	published []Event
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a topic.
func (b *MemoryBus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.Attempt <= 0 {
		ev.Attempt = 1
	}

	b.mu.Lock()
	b.published = append(b.published, ev)
	handlers := append([]Handler(nil), b.handlers[ev.Topic]...)
	b.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// Published returns every event published so far, in order.
func (b *MemoryBus) Published() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.published...)
}
