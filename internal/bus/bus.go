// Package bus is the in-process publish/subscribe sink through which
// change and lifecycle events reach subscribers.
package bus

import (
	"sync"

	"github.com/iwalton3/jellyfin-web-jmp/pkg/shim"
)

// Bus accepts events for delivery to subscribers.
type Bus interface {
	Publish(evt shim.BusEvent)
}

// Memory is a synchronous in-process Bus. Subscribers are invoked in
// registration order on the publisher's goroutine.
type Memory struct {
	mu   sync.Mutex
	subs []func(shim.BusEvent)
}

// NewMemory creates an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{}
}

// Subscribe adds a subscriber for all events.
func (b *Memory) Subscribe(fn func(shim.BusEvent)) {
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
}

// Publish delivers an event to every subscriber.
func (b *Memory) Publish(evt shim.BusEvent) {
	b.mu.Lock()
	subs := make([]func(shim.BusEvent), len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, fn := range subs {
		fn(evt)
	}
}
