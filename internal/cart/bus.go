package cart

import "sync"

// Bus is an in-process refresh signal shared by everything that renders the
// cart. Publish coalesces: a subscriber that has not drained its channel sees
// at most one pending signal.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[int]chan struct{}
}

// NewBus constructs an empty refresh bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan struct{})}
}

// Subscribe registers a listener. The returned cancel func must be called
// when the listener goes away.
func (b *Bus) Subscribe() (<-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan struct{}, 1)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
	return ch, cancel
}

// Publish notifies every subscriber without blocking.
func (b *Bus) Publish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
