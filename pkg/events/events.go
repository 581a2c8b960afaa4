// Package events carries variant-change notifications from the page into
// widgets. A Bus is injected per page; there is no global registry.
package events

import "sync"

// VariantChange announces that the section's selected variant changed.
type VariantChange struct {
	SectionID string
	VariantID string
	// Price is the variant's one-time price in minor units when the page knows
	// it. Zero leaves it to be derived from the resolved plans.
	Price int64
}

type VariantChangeHandler func(VariantChange)

// Bus is the publish/subscribe contract widgets depend on.
type Bus interface {
	// SubscribeVariantChange registers h and returns its unsubscribe function.
	// Calling the returned function more than once is a no-op.
	SubscribeVariantChange(h VariantChangeHandler) (unsubscribe func())
	PublishVariantChange(ev VariantChange)
}

// LocalBus is an in-process Bus. Handlers run synchronously on the publisher's
// goroutine, in subscription order.
type LocalBus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]VariantChangeHandler
	order    []uint64
}

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[uint64]VariantChangeHandler)}
}

func (b *LocalBus) SubscribeVariantChange(h VariantChangeHandler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[id] = h
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *LocalBus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *LocalBus) PublishVariantChange(ev VariantChange) {
	b.mu.RLock()
	hs := make([]VariantChangeHandler, 0, len(b.order))
	for _, id := range b.order {
		hs = append(hs, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
}

// Subscribers reports how many handlers are registered.
func (b *LocalBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
