// Package eventbus is the in-process publish/subscribe registry a replica's
// model and view talk through. Subscriptions are keyed by (scope, kind).
package eventbus

import (
	"sync"

	"github.com/prudhvinik1/syncboard/internal/models"
)

type Handler func(models.Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus dispatches synchronously, in subscription order. The registry lock is
// released before handlers run, so a handler may publish or subscribe.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[models.Topic][]subscription
}

func New() *Bus {
	return &Bus{subs: make(map[models.Topic][]subscription)}
}

// Subscribe registers handler for events of kind published in scope.
// The returned function removes it; calling it more than once is harmless.
func (b *Bus) Subscribe(scope models.Scope, kind models.EventKind, handler Handler) func() {
	topic := models.Topic{Scope: scope, Kind: kind}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

// Publish delivers ev to every handler subscribed to (scope, ev.Kind()).
func (b *Bus) Publish(scope models.Scope, ev models.Event) {
	topic := models.Topic{Scope: scope, Kind: ev.Kind()}

	b.mu.RLock()
	handlers := make([]Handler, len(b.subs[topic]))
	for i, s := range b.subs[topic] {
		handlers[i] = s.handler
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Subscribers returns the number of handlers registered for a topic.
func (b *Bus) Subscribers(scope models.Scope, kind models.EventKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[models.Topic{Scope: scope, Kind: kind}])
}

func (b *Bus) remove(topic models.Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			// copy so a dispatch already holding the old slice is unaffected
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, topic)
			} else {
				b.subs[topic] = next
			}
			return
		}
	}
}
