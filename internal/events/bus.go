package events

import (
	"sort"
	"sync"

	"github.com/paywall-labs/paywall-go/internal/models"
)

// Lifecycle event names
const (
	Ready            = "ready"
	ProductChanged   = "product_changed"
	PaymentSuccess   = "payment_success"
	PaymentFailure   = "payment_failure"
	UpsellSuccess    = "upsell_success"
	UpsellFailure    = "upsell_failure"
	ProviderNotFound = "provider_not_found"
)

// Event is a named point-in-time notification. Fan-out only, no persistence.
type Event struct {
	Name     string
	Provider models.ProviderKind
	Data     map[string]any
	Err      error
}

// Handler receives a lifecycle event
type Handler func(Event)

type subscriber struct {
	seq int
	fn  Handler
}

// Bus is a named multi-listener fan-out channel. Invocation order equals
// registration order; Subscribe returns a disposer.
type Bus struct {
	mu   sync.Mutex
	seq  int
	subs map[string][]subscriber
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscriber)}
}

// Subscribe registers fn for the named event and returns its disposer.
// Disposing twice is a no-op.
func (b *Bus) Subscribe(name string, fn Handler) func() {
	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[name] = append(b.subs[name], subscriber{seq: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[name]
			for i, sub := range list {
				if sub.seq == id {
					b.subs[name] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Emit delivers the event to all listeners registered for its name,
// synchronously, in registration order. Listeners added during delivery do
// not receive the in-flight event.
func (b *Bus) Emit(ev Event) {
	b.mu.Lock()
	list := make([]subscriber, len(b.subs[ev.Name]))
	copy(list, b.subs[ev.Name])
	b.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	for _, sub := range list {
		sub.fn(ev)
	}
}
